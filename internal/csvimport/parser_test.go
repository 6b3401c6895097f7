package csvimport_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahasand/site-tracker/internal/csvimport"
)

func TestParse_SampleIsValid(t *testing.T) {
	res := csvimport.Parse(csvimport.SampleCSV(), nil)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, 3, res.ValidCount)
	assert.Equal(t, 0, res.InvalidCount)

	first := res.Rows[0]
	assert.Equal(t, 2, first.RowNumber)
	assert.Equal(t, "001", first.Data.SiteNumber)
	assert.Equal(t, "Mayo Clinic Rochester", first.Data.Name)
	assert.Equal(t, 25, first.Data.TargetEnrollment)
	assert.Equal(t, "", res.Rows[1].Data.Region)
}

func TestParse_TooShort(t *testing.T) {
	for _, content := range []string{"", "Site Number,Site Name,Principal Investigator,Country", "\n\n  \n"} {
		res := csvimport.Parse(content, nil)
		assert.Empty(t, res.Rows)
		assert.Equal(t, 0, res.ValidCount)
		assert.Equal(t, 0, res.InvalidCount)
	}
}

func TestParse_MissingColumns(t *testing.T) {
	res := csvimport.Parse("Site Number,Name,Country\n001,A,Germany", nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 1, res.Rows[0].RowNumber)
	assert.False(t, res.Rows[0].IsValid)
	assert.Equal(t, []string{"Missing required columns: site name, principal investigator"}, res.Rows[0].Errors)
	assert.Equal(t, 1, res.InvalidCount)
}

func TestParse_HeaderNormalisation(t *testing.T) {
	content := "SITE_NUMBER, site-name ,Principal_Investigator,Country,target-enrollment\r\n7,Clinic,Dr. A,France,12\r\n"
	res := csvimport.Parse(content, nil)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0].IsValid)
	assert.Equal(t, 12, res.Rows[0].Data.TargetEnrollment)
}

func TestParse_RowValidation(t *testing.T) {
	content := `Site Number,Site Name,Principal Investigator,Country,Region,Target Enrollment
001,Alpha,Dr. A,Germany,,10
001,Beta,Dr. B,Germany,,10
EX-1,Gamma,Dr. C,Germany,,10
002,Delta,Dr. D,,,
003,Epsilon,Dr. E,Atlantis,,
004,Zeta,Dr. F,Other,,-5
005,Eta,Dr. G,Japan,,lots
006,"Theta, ""North""",Dr. H,Canada,"Ontario, East",8

,,,`
	res := csvimport.Parse(content, []string{"ex-1"})
	require.Len(t, res.Rows, 9)

	byRow := map[int]csvimport.ParsedRow{}
	for _, r := range res.Rows {
		byRow[r.RowNumber] = r
	}

	assert.True(t, byRow[2].IsValid)
	assert.Equal(t, []string{`Duplicate Site Number "001" in file`}, byRow[3].Errors)
	assert.Equal(t, []string{`Site Number "EX-1" already exists in this study`}, byRow[4].Errors)
	assert.Equal(t, []string{"Country is required"}, byRow[5].Errors)
	assert.Equal(t, []string{`Invalid country "Atlantis". Use one of: United States, Germany, United Kingdom, France, Spain...`}, byRow[6].Errors)
	assert.Equal(t, []string{"Target Enrollment must be a positive number"}, byRow[7].Errors)

	assert.True(t, byRow[8].IsValid)
	assert.Equal(t, 0, byRow[8].Data.TargetEnrollment)

	theta := byRow[9]
	assert.True(t, theta.IsValid)
	assert.Equal(t, `Theta, "North"`, theta.Data.Name)
	assert.Equal(t, "Ontario, East", theta.Data.Region)
	assert.Equal(t, 8, theta.Data.TargetEnrollment)

	empty := byRow[10]
	assert.ElementsMatch(t, []string{
		"Site Number is required",
		"Site Name is required",
		"Principal Investigator is required",
		"Country is required",
	}, empty.Errors)

	assert.Equal(t, 3, res.ValidCount)
	assert.Equal(t, 6, res.InvalidCount)
}

func TestParse_DuplicateIsCaseInsensitive(t *testing.T) {
	content := "Site Number,Site Name,Principal Investigator,Country\nab-1,A,Dr,Spain\nAB-1,B,Dr,Spain"
	res := csvimport.Parse(content, nil)
	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].IsValid)
	assert.False(t, res.Rows[1].IsValid)
}

func TestParse_LeadingIntegerEnrollment(t *testing.T) {
	content := "Site Number,Site Name,Principal Investigator,Country,Target Enrollment\n1,A,Dr,Spain,25 patients"
	res := csvimport.Parse(content, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 25, res.Rows[0].Data.TargetEnrollment)
}

func TestValidSiteInputs(t *testing.T) {
	content := `Site Number,Site Name,Principal Investigator,Country,Region,Target Enrollment
001,Alpha,Dr. A,Germany,Bavaria,10
002,Beta,Dr. B,,,
003,Gamma,Dr. C,Other,,`
	res := csvimport.Parse(content, nil)

	inputs := csvimport.ValidSiteInputs(res.Rows, "study-1")
	require.Len(t, inputs, 2)
	assert.Equal(t, "study-1", inputs[0].StudyID)
	assert.Equal(t, "001", inputs[0].SiteNumber)
	require.NotNil(t, inputs[0].Region)
	assert.Equal(t, "Bavaria", *inputs[0].Region)
	assert.Equal(t, 10, inputs[0].TargetEnrollment)
	assert.Equal(t, "003", inputs[1].SiteNumber)
	assert.Nil(t, inputs[1].Region)
}

func TestParseRecords(t *testing.T) {
	res := csvimport.ParseRecords([][]string{
		{"Site Number", "Site Name", "Principal Investigator", "Country"},
		{"1", "A", "Dr", "Italy"},
		{"2", "B"},
	}, nil)
	require.Len(t, res.Rows, 2)
	assert.True(t, res.Rows[0].IsValid)
	assert.Contains(t, res.Rows[1].Errors, "Country is required")
}
