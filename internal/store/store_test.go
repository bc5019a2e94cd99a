package store

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"epf-data/internal/model"
	"epf-data/internal/preprocess"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *model.Dataset {
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Dataset{
		Name:    "dataset",
		Step:    time.Hour,
		Index:   []time.Time{t0, t0.Add(time.Hour), t0.Add(3 * time.Hour)},
		Columns: []string{"actual_load_mw", "da_price_eur_mwh"},
		Values: [][]float64{
			{500.0, 45.2},
			{math.NaN(), -0.1 + 0.2},
			{1e-300, 1234567.890123456789},
		},
		Meta: model.DatasetMeta{Categories: []model.Category{model.CategoryConsumption, model.CategoryPrices}},
	}
}

func TestCSVRoundTripIsLossless(t *testing.T) {
	ds := sampleDataset()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "start_ts_utc,actual_load_mw,da_price_eur_mwh", lines[0])
	assert.Equal(t, "2023-01-01T00:00:00Z,500,45.2", lines[1])
	assert.Equal(t, "2023-01-01T01:00:00Z,,0.1", lines[2])

	got, err := ReadCSV(&buf, "dataset")
	require.NoError(t, err)
	assert.True(t, ds.Equal(got), "round trip changed the table")
}

func TestReadCSVRejectsForeignHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("time,a\n2023-01-01T00:00:00Z,1\n"), "x")
	assert.ErrorIs(t, err, model.ErrSchemaMismatch)

	_, err = ReadCSV(strings.NewReader("start_ts_utc,a\n2023-01-01T00:00:00Z,abc\n"), "x")
	assert.ErrorIs(t, err, model.ErrParse)
}

func TestParquetRoundTripIsLossless(t *testing.T) {
	ds := sampleDataset()
	path := filepath.Join(t.TempDir(), "dataset.parquet")
	require.NoError(t, WriteParquet(path, ds))

	got, err := ReadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, "dataset", got.Name)
	assert.Equal(t, time.Hour, got.Step)
	assert.True(t, ds.Equal(got), "round trip changed the table")
}

func TestParquetRoundTripKeepsColumnsOfEmptyDataset(t *testing.T) {
	ds := &model.Dataset{Name: "d", Step: time.Hour, Columns: []string{"da_price_eur_mwh", "actual_load_mw"}}
	path := filepath.Join(t.TempDir(), "d.parquet")
	require.NoError(t, WriteParquet(path, ds))

	got, err := ReadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, ds.Columns, got.Columns)
	assert.Equal(t, 0, got.Rows())
	assert.True(t, ds.Equal(got), "round trip changed the table")
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQL(ctx, SQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ds := sampleDataset()
	ds.Meta.RunID = uuid.NewString()
	require.NoError(t, db.Save(ctx, ds))
	// saving again replaces rather than duplicates
	require.NoError(t, db.Save(ctx, ds))

	got, err := db.Load(ctx, "dataset")
	require.NoError(t, err)
	assert.True(t, ds.Equal(got))
	assert.Equal(t, ds.Meta.RunID, got.Meta.RunID)

	list, err := db.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Rows)
	assert.Equal(t, ds.Columns, list[0].Columns)

	_, err = db.Load(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestOpenSQLRejectsUnknownBackend(t *testing.T) {
	_, err := OpenSQL(context.Background(), Backend("oracle"), "")
	assert.Error(t, err)
}

func TestSaveWritesManifestAndReadsBack(t *testing.T) {
	ctx := context.Background()
	for _, format := range []Format{FormatCSV, FormatParquet} {
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()
			ds := sampleDataset()
			ds.Step = 30 * time.Minute
			ds.Meta.Fill = "nan"
			ds.Meta.FillOverrides = map[model.Category]string{model.CategoryPrices: "ffill"}
			rep := &preprocess.Report{Rows: 3}

			m, err := Save(ctx, ds, rep, SaveOptions{Dir: dir, Format: format})
			require.NoError(t, err)
			_, err = uuid.Parse(m.RunID)
			require.NoError(t, err)
			assert.Equal(t, "30m0s", m.Step)
			assert.Equal(t, 3, m.Rows)

			manifests, err := ListManifests(dir)
			require.NoError(t, err)
			require.Len(t, manifests, 1)
			assert.Equal(t, m.RunID, manifests[0].RunID)
			assert.Equal(t, 3, manifests[0].Report.Rows)

			got, err := Open(ctx, dir, "dataset", nil)
			require.NoError(t, err)
			assert.Equal(t, 30*time.Minute, got.Step)
			assert.True(t, ds.Equal(got))
			assert.Equal(t, "ffill", got.Meta.FillOverrides[model.CategoryPrices])
		})
	}
}

func TestSaveSQLNeedsDatabase(t *testing.T) {
	_, err := Save(context.Background(), sampleDataset(), nil, SaveOptions{Dir: t.TempDir(), Format: FormatSQL})
	assert.Error(t, err)
}

func TestOpenUnknownDatasetIsNotFound(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), "nope", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
