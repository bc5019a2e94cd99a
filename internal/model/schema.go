package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeKind says how the time column of a raw file encodes a record's interval.
type TimeKind string

const (
	// TimeInterval is ENTSO-E style "<start> - <end>" text.
	TimeInterval TimeKind = "interval"
	// TimeInstant is a single timestamp; the record length is the series resolution.
	TimeInstant TimeKind = "instant"
	// TimeYear is a calendar year; the record covers [Jan 1, next Jan 1) UTC.
	TimeYear TimeKind = "year"
)

// ValueColumn maps a source column to a typed output column.
type ValueColumn struct {
	Source      string
	Name        string
	Unit        string
	NonNegative bool
}

// RowFilter keeps only rows whose Column is in Allowed.
// The filter column is optional in the file; when absent every row is kept.
type RowFilter struct {
	Column  string
	Allowed []string
}

// Pivot widens long rows into one column per pivot value.
// An empty Allowed list accepts every value.
type Pivot struct {
	Column  string
	Allowed []string
}

// Schema is the explicit descriptor a raw file is checked against at load time.
type Schema struct {
	TimeColumn  string
	TimeKind    TimeKind
	TimeLayouts []string
	// Resolution is the record length of an instant series that has a single row.
	Resolution time.Duration
	Values     []ValueColumn
	Filter     *RowFilter
	Pivot      *Pivot
	Missing    []string
}

// DefaultMissingTokens are cell values treated as missing in ENTSO-E and pandas exports.
var DefaultMissingTokens = []string{"", "n/e", "-", "N/A", "nan", "NaN"}

func (s Schema) Validate() error {
	if s.TimeColumn == "" {
		return errors.New("TimeColumn is required")
	}
	switch s.TimeKind {
	case TimeInterval, TimeInstant:
		if len(s.TimeLayouts) == 0 {
			return errors.New("TimeLayouts must not be empty")
		}
	case TimeYear:
	default:
		return fmt.Errorf("unknown TimeKind %q", s.TimeKind)
	}
	if s.TimeKind == TimeInstant && s.Resolution <= 0 {
		return errors.New("instant series need Resolution > 0")
	}
	if len(s.Values) == 0 {
		return errors.New("at least one value column is required")
	}
	seen := map[string]bool{}
	for _, v := range s.Values {
		if v.Source == "" || v.Name == "" {
			return errors.New("value columns need Source and Name")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate value column %q", v.Name)
		}
		seen[v.Name] = true
	}
	if s.Pivot != nil && s.Pivot.Column == "" {
		return errors.New("pivot column is required")
	}
	return nil
}

// RequiredColumns lists the source columns that must appear in a file header.
func (s Schema) RequiredColumns() []string {
	cols := []string{s.TimeColumn}
	for _, v := range s.Values {
		cols = append(cols, v.Source)
	}
	if s.Pivot != nil {
		cols = append(cols, s.Pivot.Column)
	}
	return cols
}

// IsMissing reports whether a trimmed cell is one of the schema's missing tokens.
func (s Schema) IsMissing(cell string) bool {
	tokens := s.Missing
	if tokens == nil {
		tokens = DefaultMissingTokens
	}
	for _, t := range tokens {
		if cell == t {
			return true
		}
	}
	return false
}

// PivotAllowed reports whether v is accepted by the schema's pivot.
func (s Schema) PivotAllowed(v string) bool {
	if s.Pivot == nil || len(s.Pivot.Allowed) == 0 {
		return true
	}
	return contains(s.Pivot.Allowed, v)
}

// ColumnName returns the output name of value column v for a pivot value (or "" without pivot).
func ColumnName(v ValueColumn, pivotValue string) string {
	if pivotValue == "" {
		return v.Name
	}
	return v.Name + "_" + Slug(pivotValue)
}

// Slug lower-cases s and joins words with underscores ("Wind Offshore" -> "wind_offshore").
func Slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "_")
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// RenewableProductionTypes are the ENTSO-E production types the forecasting features use.
var RenewableProductionTypes = []string{"Solar", "Wind Offshore", "Wind Onshore"}

// WeatherVariables are the Open-Meteo hourly variables requested for every city.
var WeatherVariables = []string{
	"temperature_2m", "dew_point_2m", "relative_humidity_2m", "rain", "showers", "snowfall", "snow_depth",
	"cloud_cover", "cloud_cover_low", "cloud_cover_mid", "cloud_cover_high",
	"wind_speed_10m", "wind_speed_120m", "wind_speed_80m", "wind_speed_180m",
	"wind_direction_10m", "wind_direction_80m", "wind_direction_180m", "wind_direction_120m",
	"wind_gusts_10m", "direct_radiation", "diffuse_radiation", "shortwave_radiation",
}

// ENTSO-E transparency exports write "dd/mm/yyyy HH:MM[:SS]" on both sides of the interval.
const (
	entsoeLayoutSeconds = "02/01/2006 15:04:05"
	entsoeLayoutMinutes = "02/01/2006 15:04"
)

// DefaultSchema returns the raw file schema of a category.
func DefaultSchema(c Category) (Schema, error) {
	switch c {
	case CategoryPrices:
		return Schema{
			TimeColumn:  "MTU (UTC)",
			TimeKind:    TimeInterval,
			TimeLayouts: []string{entsoeLayoutSeconds, entsoeLayoutMinutes},
			Values: []ValueColumn{
				{Source: "Day-ahead Price (EUR/MWh)", Name: "da_price_eur_mwh", Unit: "EUR/MWh"},
			},
			Filter: &RowFilter{Column: "Sequence", Allowed: []string{"Sequence Sequence 1"}},
		}, nil
	case CategoryConsumption:
		return Schema{
			TimeColumn:  "MTU (UTC)",
			TimeKind:    TimeInterval,
			TimeLayouts: []string{entsoeLayoutMinutes, entsoeLayoutSeconds},
			Values: []ValueColumn{
				{Source: "Actual Total Load (MW)", Name: "actual_load_mw", Unit: "MW", NonNegative: true},
			},
		}, nil
	case CategoryProduction:
		return Schema{
			TimeColumn:  "MTU (UTC)",
			TimeKind:    TimeInterval,
			TimeLayouts: []string{entsoeLayoutSeconds, entsoeLayoutMinutes},
			Values: []ValueColumn{
				{Source: "Generation (MW)", Name: "actual_generation_mw", Unit: "MW", NonNegative: true},
			},
			Pivot: &Pivot{Column: "Production Type", Allowed: RenewableProductionTypes},
		}, nil
	case CategoryCapacities:
		return Schema{
			TimeColumn: "Year",
			TimeKind:   TimeYear,
			Values: []ValueColumn{
				{Source: "Installed Capacity (MW)", Name: "installed_capacity_mw", Unit: "MW", NonNegative: true},
			},
			Pivot: &Pivot{Column: "Production Type", Allowed: RenewableProductionTypes},
		}, nil
	case CategoryWeatherForecast:
		values := make([]ValueColumn, 0, len(WeatherVariables))
		for _, v := range WeatherVariables {
			values = append(values, ValueColumn{Source: v, Name: v})
		}
		return Schema{
			TimeColumn:  "datetime_utc",
			TimeKind:    TimeInstant,
			TimeLayouts: []string{time.RFC3339, "2006-01-02 15:04:05-07:00", "2006-01-02 15:04:05", "2006-01-02T15:04"},
			Resolution:  time.Hour,
			Values:      values,
			Pivot:       &Pivot{Column: "city"},
		}, nil
	default:
		return Schema{}, NotFound(c, "", "no schema for category")
	}
}
