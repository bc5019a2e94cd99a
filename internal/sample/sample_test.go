package sample

import (
	"context"
	"os"
	"testing"
	"time"

	"epf-data/internal/loader"
	"epf-data/internal/model"
	"epf-data/internal/openmeteo"
	"epf-data/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	return Options{
		Days:      2,
		Seed:      7,
		Cities:    openmeteo.DefaultCities()[:2],
		Variables: []string{"temperature_2m", "wind_speed_10m"},
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(t.TempDir(), smallOptions())
	require.NoError(t, err)
	b, err := Generate(t.TempDir(), smallOptions())
	require.NoError(t, err)

	for _, c := range model.AllCategories() {
		require.Len(t, a[c], 1, c)
		x, err := os.ReadFile(a[c][0])
		require.NoError(t, err)
		y, err := os.ReadFile(b[c][0])
		require.NoError(t, err)
		assert.Equal(t, x, y, "category %s differs", c)
	}
}

func TestGeneratedFilesLoad(t *testing.T) {
	root := t.TempDir()
	opts := smallOptions()
	_, err := Generate(root, opts)
	require.NoError(t, err)

	weather, err := model.DefaultSchema(model.CategoryWeatherForecast)
	require.NoError(t, err)
	weather.Values = nil
	for _, v := range opts.Variables {
		weather.Values = append(weather.Values, model.ValueColumn{Source: v, Name: v})
	}
	reg := registry.New(root, registry.WithSchema(model.CategoryWeatherForecast, weather))
	l := loader.New()

	want := map[model.Category]int{
		model.CategoryPrices:          48,
		model.CategoryConsumption:     48 * 4,
		model.CategoryProduction:      48,
		model.CategoryCapacities:      1,
		model.CategoryWeatherForecast: 48,
	}
	for c, n := range want {
		e, err := reg.Lookup(c)
		require.NoError(t, err, c)
		s, err := l.Load(context.Background(), e)
		require.NoError(t, err, c)
		assert.Equal(t, n, s.Len(), c)
	}

	e, err := reg.Lookup(model.CategoryProduction)
	require.NoError(t, err)
	s, err := l.Load(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"actual_generation_mw_solar",
		"actual_generation_mw_wind_offshore",
		"actual_generation_mw_wind_onshore",
	}, s.Columns)
	assert.Equal(t, time.Hour, s.Resolution())
}
