// Package service holds the use cases behind the HTTP API: it validates
// input, calls the stores and the pure pipeline computations, and records
// metrics for the writes.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// ValidationError is a rejected input; nothing was written.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FailedWrite is one write of a batch that did not go through.
type FailedWrite struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// PartialFailureError reports a batch where some writes were applied and
// some failed. Applied writes are not rolled back. StatusErrors lists, by
// site id, sites whose milestones were written but whose status could not
// be brought in line with them.
type PartialFailureError struct {
	Applied      []string      `json:"applied"`
	Failed       []FailedWrite `json:"failed"`
	StatusErrors []FailedWrite `json:"status_errors,omitempty"`
}

func (e *PartialFailureError) hasFailures() bool {
	return len(e.Failed) > 0 || len(e.StatusErrors) > 0
}

func (e *PartialFailureError) Error() string {
	var parts []string
	if len(e.Failed) > 0 {
		ids := make([]string, 0, len(e.Failed))
		for _, f := range e.Failed {
			ids = append(ids, f.ID)
		}
		parts = append(parts, fmt.Sprintf("%d of %d writes failed: %s",
			len(e.Failed), len(e.Failed)+len(e.Applied), strings.Join(ids, ", ")))
	}
	if len(e.StatusErrors) > 0 {
		ids := make([]string, 0, len(e.StatusErrors))
		for _, f := range e.StatusErrors {
			ids = append(ids, f.ID)
		}
		parts = append(parts, "site status not updated: "+strings.Join(ids, ", "))
	}
	return strings.Join(parts, "; ")
}

// IsValidation reports whether err is a rejected input, including the
// move planning sentinels.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, pipeline.ErrInvalidStage) ||
		errors.Is(err, pipeline.ErrCrossStudyMove) ||
		errors.Is(err, pipeline.ErrNoOpMove)
}

// storeErr maps store sentinels onto service errors; anything else is
// passed through wrapped.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		return &ValidationError{Field: "site_number", Message: "site number already exists in this study"}
	}
	return fmt.Errorf("%s: %w", what, err)
}
