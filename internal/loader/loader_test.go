package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Yile-Xu/penn-world-tables/pkg/core"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoader_LoadDir_Basic(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gdp.csv", `country_code,year,variable_code,value,unit
USA,2010,gdp_nominal_lcu,100,mil_lcu
KOR,2010,gdp_nominal_lcu,250.5,mil_lcu
`)

	obs, diags, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, obs, 2)

	assert.Equal(t, core.RawObservation{
		Country:  "USA",
		Year:     2010,
		Variable: "gdp_nominal_lcu",
		Value:    100,
		Unit:     "mil_lcu",
		Source:   "gdp",
	}, obs[0])
}

func TestLoader_LoadDir_UnknownCountryExcluded(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gdp.csv", `country_code,year,variable_code,value,unit
XXX,2010,gdp_nominal_lcu,100,mil_lcu
USA,2010,gdp_nominal_lcu,100,mil_lcu
`)

	obs, diags, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "USA", obs[0].Country)

	require.Len(t, diags, 1)
	assert.Equal(t, core.StageLoad, diags[0].Stage)
	assert.Equal(t, core.SeverityWarning, diags[0].Severity)
	assert.Equal(t, "XXX", diags[0].Country)
	assert.Contains(t, diags[0].Reason, "unknown country code")
}

func TestLoader_LoadDir_MalformedRowsDropped(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gdp.csv", `country_code,year,variable_code,value,unit
USA,2010,gdp_nominal_lcu,not_a_number,mil_lcu
USA,banana,gdp_nominal_lcu,100,mil_lcu
USA,2011,gdp_nominal_lcu,NaN,mil_lcu
USA,2012,gdp_nominal_lcu,100,mil_lcu
`)

	obs, diags, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 2012, obs[0].Year)

	require.Len(t, diags, 3)
	for _, d := range diags {
		assert.Equal(t, core.SeverityError, d.Severity)
		assert.Contains(t, d.Reason, "malformed observation")
	}
}

func TestLoader_LoadDir_LaterSourceWins(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a_gdp.csv", `country_code,year,variable_code,value,unit
USA,2010,gdp_nominal_lcu,100,mil_lcu
`)
	writeSource(t, dir, "b_gdp.csv", `country_code,year,variable_code,value,unit
USA,2010,gdp_nominal_lcu,110,mil_lcu
`)

	obs, diags, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 110.0, obs[0].Value)
	assert.Equal(t, "b_gdp", obs[0].Source)

	require.Len(t, diags, 1)
	assert.Equal(t, core.SeverityWarning, diags[0].Severity)
	assert.Contains(t, diags[0].Reason, `overrides value 100 from source "a_gdp"`)
}

func TestLoader_LoadDir_EqualDuplicateIsSilent(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.csv", `country_code,year,variable_code,value,unit
USA,2010,pop,300,mil_persons
`)
	writeSource(t, dir, "b.csv", `country_code,year,variable_code,value,unit
USA,2010,pop,300,mil_persons
`)

	obs, diags, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Empty(t, diags)
}

func TestLoader_LoadFile_MissingColumnFatal(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gdp.csv", `country_code,year,value,unit
USA,2010,100,mil_lcu
`)

	_, _, err := New(nil).LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required column "variable_code"`)
}

func TestLoader_LoadDir_EmptyDirFatal(t *testing.T) {
	_, _, err := New(nil).LoadDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source tables")
}

func TestLoader_XLSXMatchesCSV(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "gdp.csv", `country_code,year,variable_code,value,unit
USA,2010,gdp_nominal_lcu,100,mil_lcu
KOR,2011,pop,51.5,mil_persons
`)

	xlsxDir := t.TempDir()
	wb := excelize.NewFile()
	rows := [][]any{
		{"country_code", "year", "variable_code", "value", "unit"},
		{"USA", 2010, "gdp_nominal_lcu", 100, "mil_lcu"},
		{"KOR", 2011, "pop", 51.5, "mil_persons"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, wb.SaveAs(filepath.Join(xlsxDir, "gdp.xlsx")))

	csvObs, _, err := New(nil).LoadDir(dir)
	require.NoError(t, err)
	xlsxObs, _, err := New(nil).LoadDir(xlsxDir)
	require.NoError(t, err)

	require.Len(t, xlsxObs, len(csvObs))
	for i := range csvObs {
		csvObs[i].Source = ""
		xlsxObs[i].Source = ""
		assert.Equal(t, csvObs[i], xlsxObs[i])
	}
}

func TestValidCountryCode(t *testing.T) {
	assert.True(t, ValidCountryCode("USA"))
	assert.True(t, ValidCountryCode("KOR"))
	assert.False(t, ValidCountryCode("usa"))
	assert.False(t, ValidCountryCode("ZZZ"))
	assert.False(t, ValidCountryCode(""))
}
