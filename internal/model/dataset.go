package model

import (
	"math"
	"time"
)

// DatasetMeta describes how a dataset was produced. It is persisted in the run manifest.
type DatasetMeta struct {
	RunID      string     `json:"run_id" yaml:"run_id"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	Categories []Category `json:"categories" yaml:"categories"`
	Join       string     `json:"join" yaml:"join"`
	Fill       string     `json:"fill" yaml:"fill"`

	// FillOverrides names the categories filled with a policy other than Fill.
	FillOverrides map[Category]string `json:"fill_overrides,omitempty" yaml:"fill_overrides,omitempty"`
}

// Dataset is the cleaned, time-aligned union of raw series on a common grid.
// Index holds bucket starts (UTC, strictly increasing); Values is row-major and
// uses NaN for cells left missing by the fill policy.
type Dataset struct {
	Name    string
	Step    time.Duration
	Index   []time.Time
	Columns []string
	Values  [][]float64
	Meta    DatasetMeta
}

func (d *Dataset) Rows() int {
	if d == nil {
		return 0
	}
	return len(d.Index)
}

// ColumnIndex returns the index of name in Columns, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column copies one column out of the table.
func (d *Dataset) Column(i int) []float64 {
	out := make([]float64, len(d.Values))
	for r, row := range d.Values {
		out[r] = row[i]
	}
	return out
}

// Equal compares two tables cell by cell, treating NaN as equal to NaN.
// Meta is not compared.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Name != o.Name || d.Step != o.Step || len(d.Index) != len(o.Index) || len(d.Columns) != len(o.Columns) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	for r := range d.Index {
		if !d.Index[r].Equal(o.Index[r]) {
			return false
		}
		if len(d.Values[r]) != len(o.Values[r]) {
			return false
		}
		for c := range d.Values[r] {
			a, b := d.Values[r][c], o.Values[r][c]
			if math.IsNaN(a) && math.IsNaN(b) {
				continue
			}
			if a != b {
				return false
			}
		}
	}
	return true
}
