// Package preprocess aligns raw category series onto one time grid and cleans them.
package preprocess

import (
	"fmt"
	"math"
	"sort"
	"time"

	"epf-data/internal/model"
)

type JoinMode string

const (
	JoinOuter JoinMode = "outer"
	JoinInner JoinMode = "inner"
	// JoinLeft keeps the range of the Anchor category.
	JoinLeft JoinMode = "left"
)

const DefaultStep = time.Hour

type Options struct {
	Name   string
	Step   time.Duration
	Join   JoinMode
	Anchor model.Category
	// Start and End clip the grid to [Start, End) when set.
	Start *time.Time
	End   *time.Time

	Fill            FillPolicy
	FillLimit       int
	PerCategoryFill map[model.Category]FillPolicy
	DropIncomplete  bool
}

// ColumnReport counts what happened to one output column.
type ColumnReport struct {
	Column   string         `json:"column"`
	Category model.Category `json:"category"`
	Fill     FillPolicy     `json:"fill"`
	Observed int            `json:"observed"`
	Clipped  int            `json:"clipped"`
	Filled   int            `json:"filled"`
	Missing  int            `json:"missing"`
}

type Report struct {
	Rows        int            `json:"rows"`
	DroppedRows int            `json:"dropped_rows"`
	Columns     []ColumnReport `json:"columns"`
}

type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Join == "" {
		opts.Join = JoinOuter
	}
	if opts.Fill == "" {
		opts.Fill = FillNaN
	}
	return &Engine{opts: opts}
}

func (e *Engine) Options() Options { return e.opts }

// Run aligns the series onto the grid and applies range validation and the fill policy.
// Inputs are never modified.
func (e *Engine) Run(series ...*model.RawSeries) (*model.Dataset, *Report, error) {
	ordered, err := e.order(series)
	if err != nil {
		return nil, nil, err
	}
	step := e.opts.Step
	for _, s := range ordered {
		if err := checkGranularity(s, step); err != nil {
			return nil, nil, err
		}
	}
	lo, hi, err := e.gridRange(ordered)
	if err != nil {
		return nil, nil, err
	}

	rows := int(hi.Sub(lo) / step)
	index := make([]time.Time, rows)
	for i := range index {
		index[i] = lo.Add(time.Duration(i) * step)
	}

	var (
		columns []string
		cols    [][]float64
		report  = &Report{}
		applied map[model.Category]string
	)
	for _, s := range ordered {
		policy := e.opts.Fill
		if p, ok := e.opts.PerCategoryFill[s.Category]; ok && p != "" {
			policy = p
		}
		if policy != e.opts.Fill {
			if applied == nil {
				applied = map[model.Category]string{}
			}
			applied[s.Category] = string(policy)
		}
		filler, err := FillerFor(policy)
		if err != nil {
			return nil, nil, err
		}
		for ci, name := range s.Columns {
			col := resample(s, ci, lo, rows, step)
			cr := ColumnReport{Column: name, Category: s.Category, Fill: policy}
			for i, v := range col {
				if math.IsNaN(v) {
					continue
				}
				cr.Observed++
				if ci < len(s.NonNegative) && s.NonNegative[ci] && v < 0 {
					col[i] = math.NaN()
					cr.Clipped++
				}
			}
			cr.Filled = filler.Fill(col, e.opts.FillLimit)
			columns = append(columns, name)
			cols = append(cols, col)
			report.Columns = append(report.Columns, cr)
		}
	}

	values := make([][]float64, 0, rows)
	kept := make([]time.Time, 0, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, len(cols))
		complete := true
		for c := range cols {
			row[c] = cols[c][r]
			if math.IsNaN(row[c]) {
				complete = false
			}
		}
		if e.opts.DropIncomplete && !complete {
			report.DroppedRows++
			continue
		}
		values = append(values, row)
		kept = append(kept, index[r])
	}
	for c := range report.Columns {
		for _, row := range values {
			if math.IsNaN(row[c]) {
				report.Columns[c].Missing++
			}
		}
	}
	report.Rows = len(kept)

	cats := make([]model.Category, len(ordered))
	for i, s := range ordered {
		cats[i] = s.Category
	}
	ds := &model.Dataset{
		Name:    e.opts.Name,
		Step:    step,
		Index:   kept,
		Columns: columns,
		Values:  values,
		Meta: model.DatasetMeta{
			Categories:    cats,
			Join:          string(e.opts.Join),
			Fill:          string(e.opts.Fill),
			FillOverrides: applied,
		},
	}
	return ds, report, nil
}

// order sorts series by category rank and rejects empty input, empty series and repeated categories.
func (e *Engine) order(series []*model.RawSeries) ([]*model.RawSeries, error) {
	if len(series) == 0 {
		return nil, model.Alignment("no series to align")
	}
	ordered := make([]*model.RawSeries, 0, len(series))
	seen := map[model.Category]bool{}
	for _, s := range series {
		if s.Len() == 0 {
			cat := model.Category("")
			if s != nil {
				cat = s.Category
			}
			err := model.Alignment("series has no records")
			err.Category = cat
			return nil, err
		}
		if seen[s.Category] {
			err := model.Alignment("category given more than once")
			err.Category = s.Category
			return nil, err
		}
		seen[s.Category] = true
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Category.Rank() < ordered[j].Category.Rank()
	})
	if e.opts.Join == JoinLeft && !seen[e.opts.Anchor] {
		return nil, model.Alignment("anchor category %q is not among the series", e.opts.Anchor)
	}
	switch e.opts.Join {
	case JoinOuter, JoinInner, JoinLeft:
	default:
		return nil, fmt.Errorf("unknown join mode %q", e.opts.Join)
	}
	return ordered, nil
}

// checkGranularity accepts records that sit inside one bucket or cover whole aligned buckets.
func checkGranularity(s *model.RawSeries, step time.Duration) error {
	for _, r := range s.Records {
		d := r.Duration()
		if d <= step {
			if r.End.After(r.Start.Truncate(step).Add(step)) {
				err := model.Alignment("record %s-%s straddles a %s boundary",
					r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), step)
				err.Category = s.Category
				return err
			}
			continue
		}
		if d%step != 0 || !r.Start.Equal(r.Start.Truncate(step)) {
			err := model.Alignment("record %s-%s of length %s does not cover whole %s buckets",
				r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), d, step)
			err.Category = s.Category
			return err
		}
	}
	return nil
}

func span(s *model.RawSeries, step time.Duration) (time.Time, time.Time) {
	first, last := s.Span()
	lo := first.Truncate(step)
	hi := last.Truncate(step)
	if hi.Before(last) {
		hi = hi.Add(step)
	}
	return lo, hi
}

func (e *Engine) gridRange(ordered []*model.RawSeries) (time.Time, time.Time, error) {
	step := e.opts.Step
	var lo, hi time.Time
	switch e.opts.Join {
	case JoinOuter:
		type iv struct{ lo, hi time.Time }
		spans := make([]iv, len(ordered))
		for i, s := range ordered {
			spans[i].lo, spans[i].hi = span(s, step)
		}
		sort.Slice(spans, func(i, j int) bool { return spans[i].lo.Before(spans[j].lo) })
		lo, hi = spans[0].lo, spans[0].hi
		for _, sp := range spans[1:] {
			if sp.lo.After(hi) {
				return time.Time{}, time.Time{}, model.Alignment("series are disjoint: nothing covers %s to %s",
					hi.Format(time.RFC3339), sp.lo.Format(time.RFC3339))
			}
			if sp.hi.After(hi) {
				hi = sp.hi
			}
		}
	case JoinInner:
		for i, s := range ordered {
			l, h := span(s, step)
			if i == 0 || l.After(lo) {
				lo = l
			}
			if i == 0 || h.Before(hi) {
				hi = h
			}
		}
		if !lo.Before(hi) {
			return time.Time{}, time.Time{}, model.Alignment("series do not overlap")
		}
	case JoinLeft:
		for _, s := range ordered {
			if s.Category == e.opts.Anchor {
				lo, hi = span(s, step)
			}
		}
	}

	if e.opts.Start != nil {
		if st := e.opts.Start.UTC().Truncate(step); st.After(lo) {
			lo = st
		}
	}
	if e.opts.End != nil {
		end := e.opts.End.UTC()
		en := end.Truncate(step)
		if en.Before(end) {
			en = en.Add(step)
		}
		if en.Before(hi) {
			hi = en
		}
	}
	if !lo.Before(hi) {
		return time.Time{}, time.Time{}, model.Alignment("empty time range %s to %s",
			lo.Format(time.RFC3339), hi.Format(time.RFC3339))
	}
	return lo, hi, nil
}

// resample puts column ci of s on the grid: finer records are averaged into their bucket,
// coarser records are held across every bucket they cover.
func resample(s *model.RawSeries, ci int, lo time.Time, rows int, step time.Duration) []float64 {
	sum := make([]float64, rows)
	n := make([]int, rows)
	for _, r := range s.Records {
		v := r.Values[ci]
		if math.IsNaN(v) {
			continue
		}
		if r.Duration() <= step {
			b := int(r.Start.Truncate(step).Sub(lo) / step)
			if r.Start.Before(lo) || b >= rows {
				continue
			}
			sum[b] += v
			n[b]++
			continue
		}
		for t := r.Start; t.Before(r.End); t = t.Add(step) {
			if t.Before(lo) {
				continue
			}
			b := int(t.Sub(lo) / step)
			if b >= rows {
				break
			}
			sum[b] += v
			n[b]++
		}
	}
	out := make([]float64, rows)
	for i := range out {
		if n[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum[i] / float64(n[i])
	}
	return out
}
