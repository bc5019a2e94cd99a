package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"epf-data/internal/model"
)

// DaySpread is the intraday range of a price column on one UTC day.
type DaySpread struct {
	Day    time.Time `json:"day"`
	Count  int       `json:"count"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Spread float64   `json:"spread"`
	// StorageValue is what a 1 MW / 1 MWh store with perfect foresight earns that day
	// (lossless, starting half full rounded up, ending at any state of charge).
	StorageValue float64 `json:"storage_value"`
}

// DailySpread groups a column by UTC day. Days without a valid value are skipped.
func DailySpread(ds *model.Dataset, column string) ([]DaySpread, error) {
	ci := ds.ColumnIndex(column)
	if ci < 0 {
		return nil, &model.Error{Kind: model.KindNotFound, Column: column, Msg: fmt.Sprintf("dataset %q has no such column", ds.Name)}
	}
	var (
		out  []DaySpread
		day  time.Time
		vals []float64
	)
	flush := func() {
		if len(vals) == 0 {
			return
		}
		d := DaySpread{Day: day, Count: len(vals), Min: math.Inf(1), Max: math.Inf(-1)}
		for _, v := range vals {
			d.Min = math.Min(d.Min, v)
			d.Max = math.Max(d.Max, v)
		}
		d.Spread = d.Max - d.Min
		d.StorageValue = storageValue(vals, ds.Step.Hours())
		out = append(out, d)
	}
	for r, ts := range ds.Index {
		d := ts.UTC().Truncate(24 * time.Hour)
		if !d.Equal(day) {
			flush()
			day, vals = d, vals[:0]
		}
		if v := ds.Values[r][ci]; !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	flush()
	return out, nil
}

// RankBySpread sorts days by spread, widest first.
func RankBySpread(days []DaySpread) []DaySpread {
	out := append([]DaySpread(nil), days...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Spread > out[j].Spread })
	return out
}

// storageValue is a DP over a discretized state of charge with dispatch in {-1, 0, +1} MW.
func storageValue(prices []float64, dt float64) float64 {
	if len(prices) == 0 || dt <= 0 || dt > 1 {
		return 0
	}
	steps := int(math.Round(1.0 / dt))
	if steps < 1 {
		steps = 1
	}
	negInf := math.Inf(-1)
	dp := make([]float64, steps+1)
	next := make([]float64, steps+1)
	for i := range dp {
		dp[i] = negInf
	}
	dp[int(math.Round(0.5*float64(steps)))] = 0

	for _, price := range prices {
		for i := range next {
			next[i] = negInf
		}
		for soc := 0; soc <= steps; soc++ {
			if math.IsInf(dp[soc], -1) {
				continue
			}
			next[soc] = math.Max(next[soc], dp[soc])
			if soc < steps {
				next[soc+1] = math.Max(next[soc+1], dp[soc]-price*dt)
			}
			if soc > 0 {
				next[soc-1] = math.Max(next[soc-1], dp[soc]+price*dt)
			}
		}
		dp, next = next, dp
	}
	best := negInf
	for _, v := range dp {
		best = math.Max(best, v)
	}
	return best
}
