package model

import (
	"math"
	"time"
)

// Record is one interval row of a raw series. Values line up with RawSeries.Columns;
// missing cells are NaN.
type Record struct {
	Start  time.Time
	End    time.Time
	Values []float64
}

func (r Record) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// RawSeries is the typed, time-indexed content of one category as read from its files.
// Records are sorted by Start with unique starts. Treat as read-only.
type RawSeries struct {
	Category Category
	Sources  []string
	Columns  []string
	Units    []string
	// NonNegative marks physically non-negative columns, parallel to Columns.
	NonNegative []bool
	Records     []Record
}

func (s *RawSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Span returns the first start and the last end of the series.
func (s *RawSeries) Span() (time.Time, time.Time) {
	if s.Len() == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Records[0].Start, s.Records[len(s.Records)-1].End
}

// Resolution is the most common record length (ties go to the shorter one).
func (s *RawSeries) Resolution() time.Duration {
	counts := map[time.Duration]int{}
	for _, r := range s.Records {
		counts[r.Duration()]++
	}
	var best time.Duration
	bestN := 0
	for d, n := range counts {
		if n > bestN || (n == bestN && d < best) {
			best, bestN = d, n
		}
	}
	return best
}

// MissingCounts returns the number of NaN cells per column.
func (s *RawSeries) MissingCounts() []int {
	out := make([]int, len(s.Columns))
	for _, r := range s.Records {
		for i, v := range r.Values {
			if math.IsNaN(v) {
				out[i]++
			}
		}
	}
	return out
}

// ColumnIndex returns the index of name in Columns, or -1.
func (s *RawSeries) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
