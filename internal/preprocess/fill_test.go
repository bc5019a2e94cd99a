package preprocess

import (
	"math"
	"testing"
	"time"

	"epf-data/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func assertFloats(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: want NaN, got %v", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func TestFillers(t *testing.T) {
	tests := []struct {
		policy FillPolicy
		limit  int
		in     []float64
		want   []float64
		filled int
	}{
		{FillNaN, 0, []float64{1, nan, 3}, []float64{1, nan, 3}, 0},
		{FillForward, 0, []float64{nan, 1, nan, nan, 4, nan}, []float64{nan, 1, 1, 1, 4, 4}, 3},
		{FillForward, 1, []float64{1, nan, nan, 4}, []float64{1, 1, nan, 4}, 1},
		{FillInterpolate, 0, []float64{nan, 0, nan, nan, 3, nan}, []float64{nan, 0, 1, 2, 3, nan}, 2},
		{FillInterpolate, 1, []float64{0, nan, nan, 3}, []float64{0, 1, nan, 3}, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f, err := FillerFor(tt.policy)
			require.NoError(t, err)
			col := append([]float64(nil), tt.in...)
			assert.Equal(t, tt.filled, f.Fill(col, tt.limit))
			assertFloats(t, tt.want, col)
		})
	}
}

func TestParseFill(t *testing.T) {
	p, err := ParseFill("")
	require.NoError(t, err)
	assert.Equal(t, FillNaN, p)
	_, err = ParseFill("mean")
	assert.Error(t, err)
}

func TestFindGaps(t *testing.T) {
	s := hourly(model.CategoryPrices, "p", false, t0, 1, 2)
	s.Records = append(s.Records, model.Record{Start: t0.Add(4 * time.Hour), End: t0.Add(5 * time.Hour), Values: []float64{3}})

	assert.Equal(t, []time.Time{t0.Add(2 * time.Hour), t0.Add(3 * time.Hour)}, FindGaps(s, time.Hour))
	assert.True(t, HasGaps(s, time.Hour))
	assert.False(t, HasGaps(prices(1, 2, 3), time.Hour))
	assert.Nil(t, FindGaps(nil, time.Hour))

	// 15 minute steps inside hourly records are covered
	assert.Len(t, FindGaps(prices(1, 2), 15*time.Minute), 0)
}
