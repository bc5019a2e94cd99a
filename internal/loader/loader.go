// Package loader reads the raw files of a category into a typed, time-indexed series.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"epf-data/internal/model"
	"epf-data/internal/registry"

	"go.uber.org/zap"
)

// Loader turns registry entries into RawSeries. A Loader is safe for concurrent use.
type Loader struct {
	logger *zap.Logger
}

type Option func(*Loader)

func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

func New(opts ...Option) *Loader {
	l := &Loader{logger: zap.NewNop()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Stats describes one Load call.
type Stats struct {
	Files    int
	Rows     int
	Filtered int // rows dropped by the row filter or an unlisted pivot value
	Merged   int // rows whose values repeated an earlier row with the same start
}

// Load reads every file of the entry and returns one series sorted by start.
func (l *Loader) Load(ctx context.Context, e registry.Entry) (*model.RawSeries, error) {
	s, _, err := l.LoadWithStats(ctx, e)
	return s, err
}

// LoadFile reads a single file outside the registry.
func (l *Loader) LoadFile(ctx context.Context, c model.Category, path string, s model.Schema) (*model.RawSeries, error) {
	return l.Load(ctx, registry.Entry{Category: c, Dir: filepath.Dir(path), Files: []string{path}, Schema: s})
}

func (l *Loader) LoadWithStats(ctx context.Context, e registry.Entry) (*model.RawSeries, Stats, error) {
	var st Stats
	if len(e.Files) == 0 {
		return nil, st, model.NotFound(e.Category, e.Dir, "no raw files")
	}
	if err := e.Schema.Validate(); err != nil {
		return nil, st, &model.Error{Kind: model.KindSchemaMismatch, Category: e.Category, Msg: "invalid schema", Err: err}
	}

	acc := newAccumulator(e.Category, e.Schema)
	for _, path := range e.Files {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		if err := acc.readFile(ctx, path, &st); err != nil {
			return nil, st, err
		}
		st.Files++
		l.logger.Debug("read raw file",
			zap.String("category", string(e.Category)),
			zap.String("path", path),
			zap.Int("rows", st.Rows),
		)
	}

	series, err := acc.series()
	if err != nil {
		return nil, st, err
	}
	l.logger.Info("loaded category",
		zap.String("category", string(e.Category)),
		zap.Int("files", st.Files),
		zap.Int("records", series.Len()),
		zap.Int("filtered", st.Filtered),
		zap.Int("merged", st.Merged),
		zap.Ints("missing", series.MissingCounts()),
		zap.Duration("resolution", series.Resolution()),
	)
	return series, st, nil
}

// cell is one row's time range and its values keyed by output column.
type cell struct {
	start, end time.Time
	path       string
	line       int
	values     map[string]float64
}

type accumulator struct {
	category model.Category
	schema   model.Schema
	byStart  map[int64]*cell
	pivots   map[string]bool
}

func newAccumulator(c model.Category, s model.Schema) *accumulator {
	return &accumulator{category: c, schema: s, byStart: map[int64]*cell{}, pivots: map[string]bool{}}
}

func (a *accumulator) parseErr(path string, line int, column, value, msg string, err error) *model.Error {
	return &model.Error{Kind: model.KindParse, Category: a.category, Path: path, Line: line, Column: column, Value: value, Msg: msg, Err: err}
}

func (a *accumulator) readFile(ctx context.Context, path string, st *Stats) error {
	t, err := readTable(path, a.schema.TimeColumn)
	if err != nil {
		line := 0
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			line = pe.Line
		}
		return a.parseErr(path, line, "", "", "unreadable file", err)
	}

	index := map[string]int{}
	for i, h := range t.header {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	var missing []string
	for _, col := range a.schema.RequiredColumns() {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &model.Error{
			Kind:     model.KindSchemaMismatch,
			Category: a.category,
			Path:     path,
			Msg:      fmt.Sprintf("missing columns %s", strings.Join(quoteAll(missing), ", ")),
		}
	}

	filterIdx := -1
	if a.schema.Filter != nil {
		if i, ok := index[a.schema.Filter.Column]; ok {
			filterIdx = i
		}
	}
	pivotIdx := -1
	if a.schema.Pivot != nil {
		pivotIdx = index[a.schema.Pivot.Column]
	}
	timeIdx := index[a.schema.TimeColumn]

	for n, r := range t.rows {
		if n%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if t.strict && len(r.cells) != len(t.header) {
			return a.parseErr(path, r.line, "", "", fmt.Sprintf("expected %d fields, got %d", len(t.header), len(r.cells)), nil)
		}
		get := func(i int) string {
			if i < 0 || i >= len(r.cells) {
				return ""
			}
			return strings.TrimSpace(r.cells[i])
		}

		if filterIdx >= 0 && !contains(a.schema.Filter.Allowed, get(filterIdx)) {
			st.Filtered++
			continue
		}
		pivot := ""
		if pivotIdx >= 0 {
			pivot = get(pivotIdx)
			if pivot == "" {
				return a.parseErr(path, r.line, a.schema.Pivot.Column, "", "empty pivot value", nil)
			}
			if !a.schema.PivotAllowed(pivot) {
				st.Filtered++
				continue
			}
		}

		raw := get(timeIdx)
		start, end, err := parseTime(a.schema, raw)
		if err != nil {
			return a.parseErr(path, r.line, a.schema.TimeColumn, raw, "bad timestamp", err)
		}

		values := make(map[string]float64, len(a.schema.Values))
		for _, v := range a.schema.Values {
			text := get(index[v.Source])
			f, err := a.parseValue(text)
			if err != nil {
				return a.parseErr(path, r.line, v.Source, text, "not a number", err)
			}
			values[model.ColumnName(v, pivot)] = f
		}
		if pivot != "" {
			a.pivots[pivot] = true
		}
		merged, err := a.add(path, r.line, start, end, values)
		if err != nil {
			return err
		}
		if merged {
			st.Merged++
		}
		st.Rows++
	}
	return nil
}

func (a *accumulator) parseValue(text string) (float64, error) {
	if a.schema.IsMissing(text) {
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("infinite value")
	}
	return f, nil
}

// add stores a row. A repeated start must agree on its end and on every value both rows carry.
func (a *accumulator) add(path string, line int, start, end time.Time, values map[string]float64) (bool, error) {
	key := start.UnixNano()
	c, ok := a.byStart[key]
	if !ok {
		a.byStart[key] = &cell{start: start, end: end, path: path, line: line, values: values}
		return false, nil
	}
	if !c.end.Equal(end) {
		return false, a.parseErr(path, line, a.schema.TimeColumn, "",
			fmt.Sprintf("start %s repeats %s:%d with a different end", start.Format(time.RFC3339), c.path, c.line), nil)
	}
	merged := false
	for col, v := range values {
		prev, seen := c.values[col]
		if !seen {
			c.values[col] = v
			continue
		}
		if !sameValue(prev, v) {
			return false, a.parseErr(path, line, col, "",
				fmt.Sprintf("start %s conflicts with %s:%d (%v vs %v)", start.Format(time.RFC3339), c.path, c.line, prev, v), nil)
		}
		merged = true
	}
	return merged, nil
}

// series orders columns and records and closes instant records at the series resolution.
func (a *accumulator) series() (*model.RawSeries, error) {
	out := &model.RawSeries{Category: a.category}
	for _, pv := range a.pivotOrder() {
		for _, v := range a.schema.Values {
			out.Columns = append(out.Columns, model.ColumnName(v, pv))
			out.Sources = append(out.Sources, v.Source)
			out.Units = append(out.Units, v.Unit)
			out.NonNegative = append(out.NonNegative, v.NonNegative)
		}
	}

	cells := make([]*cell, 0, len(a.byStart))
	for _, c := range a.byStart {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].start.Before(cells[j].start) })

	if a.schema.TimeKind == model.TimeInstant {
		res := instantResolution(cells, a.schema.Resolution)
		if res <= 0 {
			return nil, &model.Error{Kind: model.KindParse, Category: a.category, Msg: "cannot infer record length of instant series"}
		}
		for _, c := range cells {
			c.end = c.start.Add(res)
		}
	}

	for i, c := range cells {
		if i > 0 && c.start.Before(cells[i-1].end) {
			p := cells[i-1]
			return nil, a.parseErr(c.path, c.line, a.schema.TimeColumn, "",
				fmt.Sprintf("record overlaps %s:%d", p.path, p.line), nil)
		}
		rec := model.Record{Start: c.start, End: c.end, Values: make([]float64, len(out.Columns))}
		for j, col := range out.Columns {
			if v, ok := c.values[col]; ok {
				rec.Values[j] = v
			} else {
				rec.Values[j] = math.NaN()
			}
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// pivotOrder lists the seen pivot values: allowed-list order when the schema has one, sorted otherwise.
// Without a pivot it returns a single empty value.
func (a *accumulator) pivotOrder() []string {
	if a.schema.Pivot == nil {
		return []string{""}
	}
	var out []string
	if len(a.schema.Pivot.Allowed) > 0 {
		for _, v := range a.schema.Pivot.Allowed {
			if a.pivots[v] {
				out = append(out, v)
			}
		}
		return out
	}
	for v := range a.pivots {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// instantResolution is the smallest gap between consecutive starts, or fallback for a single row.
func instantResolution(cells []*cell, fallback time.Duration) time.Duration {
	var res time.Duration
	for i := 1; i < len(cells); i++ {
		d := cells[i].start.Sub(cells[i-1].start)
		if res == 0 || d < res {
			res = d
		}
	}
	if res == 0 {
		return fallback
	}
	return res
}

func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func quoteAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strconv.Quote(s)
	}
	return out
}
