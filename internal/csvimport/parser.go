// Package csvimport validates bulk site uploads and renders site exports.
package csvimport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sahasand/site-tracker/internal/model"
)

const (
	colSiteNumber = "site number"
	colSiteName   = "site name"
	colPI         = "principal investigator"
	colCountry    = "country"
	colRegion     = "region"
	colTarget     = "target enrollment"
)

var requiredHeaders = []string{colSiteNumber, colSiteName, colPI, colCountry}

var lineBreak = regexp.MustCompile(`\r?\n`)

// RowData is what a row would create.
type RowData struct {
	SiteNumber            string `json:"site_number"`
	Name                  string `json:"name"`
	PrincipalInvestigator string `json:"principal_investigator"`
	Country               string `json:"country"`
	Region                string `json:"region"`
	TargetEnrollment      int    `json:"target_enrollment"`
}

// ParsedRow is one data row with its validation outcome. RowNumber is the
// 1-based line in the file, so the first data row is 2.
type ParsedRow struct {
	RowNumber int      `json:"row_number"`
	Data      RowData  `json:"data"`
	Errors    []string `json:"errors"`
	IsValid   bool     `json:"is_valid"`
}

type ParseResult struct {
	Rows         []ParsedRow `json:"rows"`
	ValidCount   int         `json:"valid_count"`
	InvalidCount int         `json:"invalid_count"`
}

// Parse validates CSV text against the site numbers already in the study.
// Blank lines are ignored; a file without at least a header and one row
// yields an empty result.
func Parse(content string, existing []string) ParseResult {
	var records [][]string
	for _, line := range lineBreak.Split(content, -1) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, splitLine(line))
	}
	return ParseRecords(records, existing)
}

// ParseRecords validates pre-split records; the first record is the header.
// Used for spreadsheet uploads.
func ParseRecords(records [][]string, existing []string) ParseResult {
	result := ParseResult{Rows: []ParsedRow{}}
	if len(records) < 2 {
		return result
	}

	headerIdx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		headerIdx[normalizeHeader(h)] = i
	}

	var missing []string
	for _, h := range requiredHeaders {
		if _, ok := headerIdx[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		result.Rows = append(result.Rows, ParsedRow{
			RowNumber: 1,
			Errors:    []string{"Missing required columns: " + strings.Join(missing, ", ")},
		})
		result.InvalidCount = 1
		return result
	}

	seen := make(map[string]struct{})
	existingSet := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		existingSet[strings.ToLower(n)] = struct{}{}
	}

	for i, values := range records[1:] {
		get := func(col string) string {
			idx, ok := headerIdx[col]
			if !ok || idx >= len(values) {
				return ""
			}
			return strings.TrimSpace(values[idx])
		}

		row := ParsedRow{
			RowNumber: i + 2,
			Data: RowData{
				SiteNumber:            get(colSiteNumber),
				Name:                  get(colSiteName),
				PrincipalInvestigator: get(colPI),
				Country:               get(colCountry),
				Region:                get(colRegion),
			},
			Errors: []string{},
		}
		d := &row.Data

		if d.SiteNumber == "" {
			row.Errors = append(row.Errors, "Site Number is required")
		}
		if d.Name == "" {
			row.Errors = append(row.Errors, "Site Name is required")
		}
		if d.PrincipalInvestigator == "" {
			row.Errors = append(row.Errors, "Principal Investigator is required")
		}
		if d.Country == "" {
			row.Errors = append(row.Errors, "Country is required")
		}

		if d.SiteNumber != "" {
			key := strings.ToLower(d.SiteNumber)
			if _, dup := seen[key]; dup {
				row.Errors = append(row.Errors, fmt.Sprintf("Duplicate Site Number %q in file", d.SiteNumber))
			} else if _, exists := existingSet[key]; exists {
				row.Errors = append(row.Errors, fmt.Sprintf("Site Number %q already exists in this study", d.SiteNumber))
			} else {
				seen[key] = struct{}{}
			}
		}

		if d.Country != "" && !model.IsKnownCountry(d.Country) {
			row.Errors = append(row.Errors, fmt.Sprintf("Invalid country %q. Use one of: %s...", d.Country, strings.Join(model.Countries[:5], ", ")))
		}

		if raw := get(colTarget); raw != "" {
			// unparseable enrollment falls back to 0 without an error
			if n, ok := leadingInt(raw); ok {
				if n < 0 {
					row.Errors = append(row.Errors, "Target Enrollment must be a positive number")
				}
				d.TargetEnrollment = n
			}
		}

		row.IsValid = len(row.Errors) == 0
		if row.IsValid {
			result.ValidCount++
		} else {
			result.InvalidCount++
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

// ValidSiteInputs turns the valid rows into create inputs for studyID.
func ValidSiteInputs(rows []ParsedRow, studyID string) []model.CreateSiteInput {
	var out []model.CreateSiteInput
	for _, r := range rows {
		if !r.IsValid {
			continue
		}
		in := model.CreateSiteInput{
			StudyID:               studyID,
			SiteNumber:            r.Data.SiteNumber,
			Name:                  r.Data.Name,
			PrincipalInvestigator: r.Data.PrincipalInvestigator,
			Country:               r.Data.Country,
			TargetEnrollment:      r.Data.TargetEnrollment,
		}
		if r.Data.Region != "" {
			region := r.Data.Region
			in.Region = &region
		}
		out = append(out, in)
	}
	return out
}

// normalizeHeader makes "Site_Number", "site-number" and " Site Number "
// the same column.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	return strings.NewReplacer("_", " ", "-", " ").Replace(h)
}

// splitLine splits one CSV line, honouring double quotes and "" escapes.
// Fields are trimmed.
func splitLine(line string) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cur.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}

// leadingInt reads an optionally signed run of leading digits, ignoring
// whatever follows, so "25 sites" is 25.
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
