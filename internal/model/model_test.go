package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatchesThroughWrapping(t *testing.T) {
	base := &Error{Kind: KindParse, Category: CategoryPrices, Path: "a.csv", Line: 3, Column: "x", Value: "abc"}
	wrapped := fmt.Errorf("load prices: %w", base)

	assert.True(t, errors.Is(wrapped, ErrParse))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindParse, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Contains(t, base.Error(), "a.csv:3")
	assert.Contains(t, base.Error(), `value "abc"`)
}

func TestParseCategories(t *testing.T) {
	cats, err := ParseCategories([]string{"prices", "consumption"})
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryPrices, CategoryConsumption}, cats)

	_, err = ParseCategories([]string{"gas"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ParseCategories([]string{"prices", "prices"})
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "wind_offshore", Slug("Wind Offshore"))
	assert.Equal(t, "solar", Slug("Solar"))
	assert.Equal(t, "frankfurt_am_main", Slug("Frankfurt (am Main)"))
}

func TestDefaultSchemasValidate(t *testing.T) {
	for _, c := range AllCategories() {
		s, err := DefaultSchema(c)
		require.NoError(t, err, c)
		assert.NoError(t, s.Validate(), c)
	}
	_, err := DefaultSchema("gas")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchemaIsMissing(t *testing.T) {
	s, _ := DefaultSchema(CategoryPrices)
	for _, tok := range []string{"", "n/e", "-"} {
		assert.True(t, s.IsMissing(tok), tok)
	}
	assert.False(t, s.IsMissing("0"))
}

func TestDatasetEqualTreatsNaNAsEqual(t *testing.T) {
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Dataset{Name: "d", Step: time.Hour, Index: []time.Time{t0}, Columns: []string{"x"}, Values: [][]float64{{math.NaN()}}}
	b := &Dataset{Name: "d", Step: time.Hour, Index: []time.Time{t0}, Columns: []string{"x"}, Values: [][]float64{{math.NaN()}}}
	assert.True(t, a.Equal(b))

	b.Values[0][0] = 1
	assert.False(t, a.Equal(b))
}

func TestRawSeriesResolution(t *testing.T) {
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &RawSeries{Records: []Record{
		{Start: t0, End: t0.Add(time.Hour)},
		{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
		{Start: t0.Add(2 * time.Hour), End: t0.Add(2*time.Hour + 15*time.Minute)},
	}}
	assert.Equal(t, time.Hour, s.Resolution())
	start, end := s.Span()
	assert.Equal(t, t0, start)
	assert.Equal(t, t0.Add(2*time.Hour+15*time.Minute), end)
}
