package loader

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"epf-data/internal/model"
	"epf-data/internal/registry"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func utc(h int) time.Time {
	return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func entry(t *testing.T, c model.Category, files ...string) registry.Entry {
	t.Helper()
	s, err := model.DefaultSchema(c)
	require.NoError(t, err)
	return registry.Entry{Category: c, Files: files, Schema: s}
}

const pricesCSV = "\ufeff\"MTU (UTC)\",\"Area\",\"Sequence\",\"Day-ahead Price (EUR/MWh)\"\n" +
	"\"01/01/2024 01:00:00 - 01/01/2024 02:00:00\",\"BZN|DE-LU\",\"Sequence Sequence 1\",\"20.5\"\n" +
	"\"01/01/2024 00:00:00 - 01/01/2024 01:00:00\",\"BZN|DE-LU\",\"Sequence Sequence 1\",\"39.91\"\n" +
	"\"01/01/2024 00:00:00 - 01/01/2024 01:00:00\",\"BZN|DE-LU\",\"Sequence Sequence 2\",\"1.0\"\n" +
	"\"01/01/2024 02:00:00 - 01/01/2024 03:00:00\",\"BZN|DE-LU\",\"Sequence Sequence 1\",\"n/e\"\n"

func TestLoadPricesFiltersSequenceAndSorts(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices_2024.csv", pricesCSV)

	s, st, err := New().LoadWithStats(context.Background(), entry(t, model.CategoryPrices, path))
	require.NoError(t, err)

	assert.Equal(t, []string{"da_price_eur_mwh"}, s.Columns)
	assert.Equal(t, []string{"EUR/MWh"}, s.Units)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, utc(0), s.Records[0].Start)
	assert.Equal(t, utc(1), s.Records[0].End)
	assert.Equal(t, 39.91, s.Records[0].Values[0])
	assert.Equal(t, 20.5, s.Records[1].Values[0])
	assert.True(t, math.IsNaN(s.Records[2].Values[0]))
	assert.Equal(t, 1, st.Filtered)
	assert.Equal(t, time.Hour, s.Resolution())
}

func TestLoadConsumptionMinuteLayout(t *testing.T) {
	body := "MTU (UTC),Actual Total Load (MW)\n" +
		"01/01/2024 00:00 - 01/01/2024 00:15,41000\n" +
		"01/01/2024 00:15 - 01/01/2024 00:30,-\n" +
		"01/01/2024 00:30 - 01/01/2024 00:45, 40500.5\n"
	path := writeFile(t, t.TempDir(), "load.csv", body)

	s, err := New().Load(context.Background(), entry(t, model.CategoryConsumption, path))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, 15*time.Minute, s.Resolution())
	assert.Equal(t, []bool{true}, s.NonNegative)
	assert.Equal(t, []int{1}, s.MissingCounts())
	assert.Equal(t, 40500.5, s.Records[2].Values[0])
}

func TestLoadProductionPivotsProductionType(t *testing.T) {
	body := "MTU (UTC),Area,Production Type,Generation (MW)\n" +
		"01/01/2024 00:00:00 - 01/01/2024 01:00:00,DE,Wind Onshore,12000\n" +
		"01/01/2024 00:00:00 - 01/01/2024 01:00:00,DE,Solar,0\n" +
		"01/01/2024 00:00:00 - 01/01/2024 01:00:00,DE,Nuclear,0\n" +
		"01/01/2024 01:00:00 - 01/01/2024 02:00:00,DE,Solar,5\n"
	path := writeFile(t, t.TempDir(), "gen.csv", body)

	s, err := New().Load(context.Background(), entry(t, model.CategoryProduction, path))
	require.NoError(t, err)
	// allowed-list order, only values that occur
	assert.Equal(t, []string{"actual_generation_mw_solar", "actual_generation_mw_wind_onshore"}, s.Columns)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{0, 12000}, s.Records[0].Values)
	assert.Equal(t, 5.0, s.Records[1].Values[0])
	assert.True(t, math.IsNaN(s.Records[1].Values[1]))
}

func TestLoadCapacitiesCoverWholeYears(t *testing.T) {
	body := "Year,Production Type,Installed Capacity (MW)\n" +
		"2024,Solar,82000\n2023,Solar,67000\n2024,Wind Offshore,8500\n"
	path := writeFile(t, t.TempDir(), "cap.csv", body)

	s, err := New().Load(context.Background(), entry(t, model.CategoryCapacities, path))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), s.Records[0].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), s.Records[0].End)
	assert.Equal(t, []string{"installed_capacity_mw_solar", "installed_capacity_mw_wind_offshore"}, s.Columns)
	assert.True(t, math.IsNaN(s.Records[0].Values[1]))
}

func TestLoadWeatherInstantsGetHourlyLength(t *testing.T) {
	schema := model.Schema{
		TimeColumn:  "datetime_utc",
		TimeKind:    model.TimeInstant,
		TimeLayouts: []string{time.RFC3339, "2006-01-02 15:04:05"},
		Resolution:  time.Hour,
		Values:      []model.ValueColumn{{Source: "temperature_2m", Name: "temperature_2m"}},
		Pivot:       &model.Pivot{Column: "city"},
	}
	body := "datetime_utc,latitude,longitude,temperature_2m,city\n" +
		"2024-01-01 00:00:00,52.52,13.41,1.5,Berlin\n" +
		"2024-01-01 01:00:00,52.52,13.41,1.0,Berlin\n" +
		"2024-01-01T00:00:00Z,53.55,9.99,3.0,Hamburg\n"
	path := writeFile(t, t.TempDir(), "weather.csv", body)

	s, err := New().LoadFile(context.Background(), model.CategoryWeatherForecast, path, schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"temperature_2m_berlin", "temperature_2m_hamburg"}, s.Columns)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, utc(1), s.Records[0].End)
	assert.Equal(t, []float64{1.5, 3.0}, s.Records[0].Values)
}

func TestLoadCollapsesIdenticalDuplicatesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", pricesCSV)
	b := writeFile(t, dir, "b.csv", pricesCSV)

	s, st, err := New().LoadWithStats(context.Background(), entry(t, model.CategoryPrices, a, b))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, st.Merged)
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Records[i].Start.After(s.Records[i-1].Start))
	}
}

func TestLoadRejectsConflictingDuplicate(t *testing.T) {
	body := "MTU (UTC),Actual Total Load (MW)\n" +
		"01/01/2024 00:00 - 01/01/2024 01:00,100\n" +
		"01/01/2024 00:00 - 01/01/2024 01:00,101\n"
	path := writeFile(t, t.TempDir(), "load.csv", body)

	_, err := New().Load(context.Background(), entry(t, model.CategoryConsumption, path))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrParse)
	var me *model.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 3, me.Line)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		xlsx [][]any
		kind model.ErrorKind
		line int
	}{
		{"missing value column", "MTU (UTC),Load\n01/01/2024 00:00 - 01/01/2024 01:00,1\n", nil, model.KindSchemaMismatch, 0},
		{"bad number", "MTU (UTC),Actual Total Load (MW)\n01/01/2024 00:00 - 01/01/2024 01:00,1\n01/01/2024 01:00 - 01/01/2024 02:00,1,5\n", nil, model.KindParse, 3},
		{"bad timestamp", "MTU (UTC),Actual Total Load (MW)\n2024-01-01 - 2024-01-02,1\n", nil, model.KindParse, 2},
		{"end before start", "MTU (UTC),Actual Total Load (MW)\n01/01/2024 01:00 - 01/01/2024 00:00,1\n", nil, model.KindParse, 2},
		{"non numeric", "MTU (UTC),Actual Total Load (MW)\n01/01/2024 00:00 - 01/01/2024 01:00,lots\n", nil, model.KindParse, 2},
		{"overlap", "MTU (UTC),Actual Total Load (MW)\n01/01/2024 00:00 - 01/01/2024 01:00,1\n01/01/2024 00:30 - 01/01/2024 01:30,2\n", nil, model.KindParse, 3},
		{"xlsx without time column", "", [][]any{
			{"Wrong Time", "Actual Total Load (MW)"},
			{"01/01/2024 00:00 - 01/01/2024 01:00", 1},
		}, model.KindSchemaMismatch, 0},
		{"xlsx non numeric", "", [][]any{
			{"MTU (UTC)", "Actual Total Load (MW)"},
			{"01/01/2024 00:00 - 01/01/2024 01:00", "lots"},
		}, model.KindParse, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			if tt.xlsx != nil {
				path = writeWorkbook(t, t.TempDir(), "load.xlsx", "Sheet1", tt.xlsx)
			} else {
				path = writeFile(t, t.TempDir(), "load.csv", tt.body)
			}
			_, err := New().Load(context.Background(), entry(t, model.CategoryConsumption, path))
			require.Error(t, err)
			assert.Equal(t, tt.kind, model.KindOf(err))
			var me *model.Error
			require.True(t, errors.As(err, &me))
			assert.Equal(t, tt.line, me.Line)
			assert.Equal(t, path, me.Path)
		})
	}
}

func TestLoadWithoutFilesIsNotFound(t *testing.T) {
	_, err := New().Load(context.Background(), entry(t, model.CategoryPrices))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLoadIsIdempotent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", pricesCSV)
	l := New()
	first, err := l.Load(context.Background(), entry(t, model.CategoryPrices, path))
	require.NoError(t, err)
	second, err := l.Load(context.Background(), entry(t, model.CategoryPrices, path))
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("reload differs (-first +second):\n%s", diff)
	}
}

func TestLoadHonorsCanceledContext(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prices.csv", pricesCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Load(ctx, entry(t, model.CategoryPrices, path))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadXLSXWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "load.xlsx")
	f := excelize.NewFile()
	// the first sheet has no time column and is skipped
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "notes"))
	_, err := f.NewSheet("Data")
	require.NoError(t, err)
	rows := [][]any{
		{"MTU (UTC)", "Actual Total Load (MW)"},
		{"01/01/2024 01:00 - 01/01/2024 02:00", 42000},
		{"01/01/2024 00:00 - 01/01/2024 01:00", "n/e"},
	}
	for i, r := range rows {
		cellA, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Data", cellA, &r))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	s, err := New().Load(context.Background(), entry(t, model.CategoryConsumption, path))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, utc(0), s.Records[0].Start)
	assert.True(t, math.IsNaN(s.Records[0].Values[0]))
	assert.Equal(t, 42000.0, s.Records[1].Values[0])
}

func writeWorkbook(t *testing.T, dir, name, sheet string, rows [][]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f := excelize.NewFile()
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}
