package models

import (
	"math"
	"time"
)

// CategoryInfo describes a raw data category and what the registry finds for it.
type CategoryInfo struct {
	Name       string   `json:"name"`
	Dir        string   `json:"dir"`
	Available  bool     `json:"available"`
	Files      []string `json:"files"`
	TimeColumn string   `json:"time_column"`
	Resolution string   `json:"resolution,omitempty"`
	Columns    []string `json:"columns"`
	Error      string   `json:"error,omitempty"`
}

// ColumnStats mirrors analysis.ColumnSummary; statistics are null when a column has no values.
type ColumnStats struct {
	Column  string   `json:"column"`
	Count   int      `json:"count"`
	Missing int      `json:"missing"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Mean    *float64 `json:"mean"`
	P05     *float64 `json:"p05"`
	P95     *float64 `json:"p95"`
}

// CategorySummaryResponse is the result of loading one category.
type CategorySummaryResponse struct {
	Category   string        `json:"category"`
	Records    int           `json:"records"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Resolution string        `json:"resolution"`
	Columns    []ColumnStats `json:"columns"`
}

type GapsResponse struct {
	Category string      `json:"category"`
	Step     string      `json:"step"`
	Count    int         `json:"count"`
	Missing  []time.Time `json:"missing"`
}

// DatasetResponse is a dataset's shape, statistics and first rows.
type DatasetResponse struct {
	Name      string        `json:"name"`
	RunID     string        `json:"run_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Step      string        `json:"step"`
	Rows      int           `json:"rows"`
	Columns   []string      `json:"columns"`
	Stats     []ColumnStats `json:"stats"`
	Preview   []PreviewRow  `json:"preview"`
}

type PreviewRow struct {
	Start  time.Time  `json:"start_ts_utc"`
	Values []*float64 `json:"values"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Float turns NaN into a JSON null.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
