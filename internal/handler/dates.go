package handler

import (
	"fmt"
	"strings"
	"time"
)

// parseDate accepts a calendar date or an RFC 3339 timestamp. Empty means
// no date.
func parseDate(field, v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s: expected YYYY-MM-DD, got %q", field, v)
	}
	t = t.UTC()
	return &t, nil
}
