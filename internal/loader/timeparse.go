package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"epf-data/internal/model"
)

// parseTime reads the time cell of a row into [start, end).
// For instant series end is zero; the loader fills it once the resolution is known.
func parseTime(s model.Schema, cell string) (time.Time, time.Time, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("empty timestamp")
	}
	switch s.TimeKind {
	case model.TimeInterval:
		// newer ENTSO-E exports append the zone, e.g. "... - 01/01/2023 01:00:00 (UTC)"
		cell = strings.TrimSpace(strings.TrimSuffix(cell, "(UTC)"))
		parts := strings.Split(cell, " - ")
		if len(parts) != 2 {
			return time.Time{}, time.Time{}, fmt.Errorf("expected \"<start> - <end>\"")
		}
		start, err := parseLayouts(s.TimeLayouts, parts[0])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end, err := parseLayouts(s.TimeLayouts, parts[1])
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("interval end is not after start")
		}
		return start, end, nil
	case model.TimeInstant:
		t, err := parseLayouts(s.TimeLayouts, cell)
		return t, time.Time{}, err
	case model.TimeYear:
		// spreadsheets may hand back "2023.0"
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil || f != float64(int(f)) || f < 1900 || f > 2200 {
			return time.Time{}, time.Time{}, fmt.Errorf("not a calendar year")
		}
		y := int(f)
		return time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(y+1, 1, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unsupported time kind %q", s.TimeKind)
	}
}

// parseLayouts tries each layout in order; values without a zone are UTC.
func parseLayouts(layouts []string, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp matches none of %d layouts", len(layouts))
}
