package csvimport

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/sahasand/site-tracker/internal/model"
)

const dateLayout = "2006-01-02"

// ExportSite is a site with what the export needs beside it. Study is only
// read when the export includes study columns.
type ExportSite struct {
	model.Site
	Milestones []model.Milestone
	Study      *model.Study
}

// SampleCSV is the downloadable import template.
func SampleCSV() string {
	return `Site Number,Site Name,Principal Investigator,Country,Region,Target Enrollment
001,Mayo Clinic Rochester,Dr. Sarah Johnson,United States,Midwest,25
002,Berlin University Hospital,Dr. Hans Mueller,Germany,,30
003,Toronto General,Dr. Emily Chen,Canada,Ontario,20`
}

func exportHeaders(includeStudy bool) []string {
	h := []string{
		"Site Number",
		"Site Name",
		"Principal Investigator",
		"Country",
		"Region",
		"Status",
		"Target Enrollment",
		"Current Enrollment",
	}
	if includeStudy {
		h = append(h, "Study", "Protocol Number")
	}
	for _, t := range model.MilestoneOrder {
		h = append(h, t.Label())
	}
	return h
}

// milestoneCell is the completion date of a completed milestone, otherwise
// its raw status.
func milestoneCell(ms []model.Milestone, t model.MilestoneType) string {
	m := model.FindMilestone(ms, t)
	if m == nil {
		return ""
	}
	if m.Status == model.MilestoneCompleted && m.ActualDate != nil {
		return m.ActualDate.Format(dateLayout)
	}
	return string(m.Status)
}

func exportRow(s ExportSite, includeStudy bool) []string {
	region := ""
	if s.Region != nil {
		region = *s.Region
	}
	row := []string{
		s.SiteNumber,
		s.Name,
		s.PrincipalInvestigator,
		s.Country,
		region,
		string(s.Status),
		strconv.Itoa(s.TargetEnrollment),
		strconv.Itoa(s.CurrentEnrollment),
	}
	if includeStudy {
		name, protocol := "", ""
		if s.Study != nil {
			name, protocol = s.Study.Name, s.Study.ProtocolNumber
		}
		row = append(row, name, protocol)
	}
	for _, t := range model.MilestoneOrder {
		row = append(row, milestoneCell(s.Milestones, t))
	}
	return row
}

// SitesToCSV renders sites with one column per milestone. Records end in
// \n and the last one has no trailing newline.
func SitesToCSV(sites []ExportSite, includeStudy bool) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders(includeStudy)); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range sites {
		if err := w.Write(exportRow(s, includeStudy)); err != nil {
			return "", fmt.Errorf("write csv row %s: %w", s.SiteNumber, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

const sheetName = "Sites"

// SitesToXLSX renders the same table as SitesToCSV into a workbook with a
// bold, frozen header row.
func SitesToXLSX(sites []ExportSite, includeStudy bool) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	headers := exportHeaders(includeStudy)
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for r, s := range sites {
		for c, v := range exportRow(s, includeStudy) {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			var value any = v
			// enrollment columns stay numeric
			if c == 6 {
				value = s.TargetEnrollment
			} else if c == 7 {
				value = s.CurrentEnrollment
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadXLSX returns the rows of the first sheet of an uploaded workbook, for
// ParseRecords.
func ReadXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse workbook: %w", err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	out := rows[:0]
	for _, r := range rows {
		if strings.TrimSpace(strings.Join(r, "")) == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
