package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"epf-data/internal/config"
	"epf-data/internal/metrics"
	"epf-data/internal/model"
	"epf-data/internal/openmeteo"
	"epf-data/internal/sample"
	"epf-data/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	_, err := sample.Generate(filepath.Join(root, "raw"), sample.Options{
		Days:   2,
		Seed:   1,
		Cities: openmeteo.DefaultCities()[:2],
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.RawDataRoot = filepath.Join(root, "raw")
	cfg.PreprocessedDataRoot = filepath.Join(root, "preprocessed")
	return cfg
}

func TestPreprocessWritesDatasetAndManifest(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Workers = 3
	cfg.Fill.Policy = "ffill"
	// yearly capacities would otherwise stretch an outer grid over the whole year
	cfg.Join, cfg.Anchor = "left", "prices"
	m := metrics.New()

	r, err := New(cfg, WithMetrics(m), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	res, err := r.Preprocess(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 48, res.Dataset.Rows())
	// 3 capacity + 1 load + 1 price + 3 generation + 2*23 weather columns
	assert.Len(t, res.Dataset.Columns, 3+1+1+3+2*23)
	assert.Equal(t, "installed_capacity_mw_solar", res.Dataset.Columns[0])
	assert.Equal(t, model.AllCategories(), res.Dataset.Meta.Categories)

	_, err = os.Stat(filepath.Join(cfg.PreprocessedDataRoot, "dataset.csv"))
	require.NoError(t, err)
	got, err := store.Open(context.Background(), cfg.PreprocessedDataRoot, "dataset", nil)
	require.NoError(t, err)
	assert.True(t, res.Dataset.Equal(got))
	assert.Equal(t, res.Manifest.RunID, got.Meta.RunID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 48.0, testutil.ToFloat64(m.RowsWritten))
	assert.Equal(t, 192.0, testutil.ToFloat64(m.RecordsLoaded.WithLabelValues("consumption")))
}

func TestPreprocessSubsetToSQLite(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Categories = []string{"prices", "consumption"}
	cfg.Output.Format = "sql"
	cfg.Output.SQLBackend = "sqlite"
	cfg.Output.SQLDSN = filepath.Join(t.TempDir(), "epf.db")
	cfg.Output.Name = "prices_load"

	r, err := New(cfg)
	require.NoError(t, err)
	res, err := r.Preprocess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"actual_load_mw", "da_price_eur_mwh"}, res.Dataset.Columns)

	db, err := store.OpenSQL(context.Background(), store.SQLite, cfg.Output.SQLDSN)
	require.NoError(t, err)
	defer db.Close()
	got, err := store.Open(context.Background(), cfg.PreprocessedDataRoot, "prices_load", db)
	require.NoError(t, err)
	assert.True(t, res.Dataset.Equal(got))
}

func TestLoadAllKeepsOrderAndReportsNotFound(t *testing.T) {
	cfg := sampleConfig(t)
	cfg.Workers = 4
	r, err := New(cfg)
	require.NoError(t, err)

	cats := []model.Category{model.CategoryWeatherForecast, model.CategoryPrices}
	series, err := r.LoadAll(context.Background(), cats)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, model.CategoryWeatherForecast, series[0].Category)
	assert.Equal(t, model.CategoryPrices, series[1].Category)

	require.NoError(t, os.RemoveAll(filepath.Join(cfg.RawDataRoot, "prices")))
	m := metrics.New()
	r, err = New(cfg, WithMetrics(m))
	require.NoError(t, err)
	_, err = r.LoadAll(context.Background(), cats)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadErrors.WithLabelValues("prices", "NOT_FOUND")))
}

func TestGapsOnFinerStep(t *testing.T) {
	cfg := sampleConfig(t)
	r, err := New(cfg)
	require.NoError(t, err)
	gaps, err := r.Gaps(context.Background(), model.CategoryPrices, 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestPreprocessOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Join, cfg.Anchor = "left", "prices"
	cfg.Fill.PerCategory = map[string]string{"capacities": "ffill"}
	r, err := New(cfg)
	require.NoError(t, err)
	opts, err := r.PreprocessOptions()
	require.NoError(t, err)
	assert.Equal(t, model.CategoryPrices, opts.Anchor)
	assert.Equal(t, time.Hour, opts.Step)
	assert.Len(t, opts.PerCategoryFill, 1)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Join = "cross"
	_, err := New(cfg)
	assert.Error(t, err)
}
