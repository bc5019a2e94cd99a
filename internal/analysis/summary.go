// Package analysis computes descriptive statistics of raw series and preprocessed datasets.
package analysis

import (
	"math"
	"sort"
	"time"

	"epf-data/internal/model"
)

// ColumnSummary is a per-column overview. Stats cover non-missing cells only
// and are NaN when the column has none.
type ColumnSummary struct {
	Column  string  `json:"column"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	P05     float64 `json:"p05"`
	P95     float64 `json:"p95"`
}

// SeriesSummary describes one loaded category.
type SeriesSummary struct {
	Category   model.Category  `json:"category"`
	Records    int             `json:"records"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Resolution string          `json:"resolution"`
	Columns    []ColumnSummary `json:"columns"`
}

func Summarize(ds *model.Dataset) []ColumnSummary {
	out := make([]ColumnSummary, len(ds.Columns))
	for i, name := range ds.Columns {
		out[i] = summarizeColumn(name, ds.Column(i))
	}
	return out
}

func SummarizeSeries(s *model.RawSeries) SeriesSummary {
	sum := SeriesSummary{Category: s.Category, Records: s.Len(), Resolution: s.Resolution().String()}
	sum.Start, sum.End = s.Span()
	for i, name := range s.Columns {
		col := make([]float64, s.Len())
		for r, rec := range s.Records {
			col[r] = rec.Values[i]
		}
		sum.Columns = append(sum.Columns, summarizeColumn(name, col))
	}
	return sum
}

func summarizeColumn(name string, col []float64) ColumnSummary {
	s := ColumnSummary{Column: name}
	vals := make([]float64, 0, len(col))
	sum := 0.0
	for _, v := range col {
		if math.IsNaN(v) {
			s.Missing++
			continue
		}
		vals = append(vals, v)
		sum += v
	}
	s.Count = len(vals)
	if s.Count == 0 {
		s.Min, s.Max, s.Mean, s.P05, s.P95 = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	sort.Float64s(vals)
	s.Min = vals[0]
	s.Max = vals[len(vals)-1]
	s.Mean = sum / float64(len(vals))
	s.P05 = percentileSorted(vals, 0.05)
	s.P95 = percentileSorted(vals, 0.95)
	return s
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
