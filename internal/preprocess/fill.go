package preprocess

import (
	"fmt"
	"math"
)

type FillPolicy string

const (
	FillNaN         FillPolicy = "nan"
	FillForward     FillPolicy = "ffill"
	FillInterpolate FillPolicy = "interpolate"
)

// Filler replaces NaN cells of one column in place and returns how many it filled.
// limit caps the length of a filled run (0 = unlimited); longer runs are filled up to the cap.
type Filler interface {
	Name() string
	Fill(col []float64, limit int) int
}

func ParseFill(s string) (FillPolicy, error) {
	switch p := FillPolicy(s); p {
	case FillNaN, FillForward, FillInterpolate:
		return p, nil
	case "":
		return FillNaN, nil
	default:
		return "", fmt.Errorf("unknown fill policy %q", s)
	}
}

// FillerFor returns the Filler implementing p.
func FillerFor(p FillPolicy) (Filler, error) {
	switch p {
	case FillNaN, "":
		return nanRetention{}, nil
	case FillForward:
		return forwardFill{}, nil
	case FillInterpolate:
		return linearInterpolation{}, nil
	default:
		return nil, fmt.Errorf("unknown fill policy %q", p)
	}
}

// nanRetention leaves gaps as NaN.
type nanRetention struct{}

func (nanRetention) Name() string                   { return string(FillNaN) }
func (nanRetention) Fill(col []float64, _ int) int { return 0 }

// forwardFill carries the last valid value forward. Leading gaps stay NaN.
type forwardFill struct{}

func (forwardFill) Name() string { return string(FillForward) }

func (forwardFill) Fill(col []float64, limit int) int {
	filled := 0
	last := math.NaN()
	run := 0
	for i, v := range col {
		if !math.IsNaN(v) {
			last, run = v, 0
			continue
		}
		if math.IsNaN(last) {
			continue
		}
		run++
		if limit > 0 && run > limit {
			continue
		}
		col[i] = last
		filled++
	}
	return filled
}

// linearInterpolation draws a line between the valid neighbours of each interior gap.
// Leading and trailing gaps stay NaN.
type linearInterpolation struct{}

func (linearInterpolation) Name() string { return string(FillInterpolate) }

func (linearInterpolation) Fill(col []float64, limit int) int {
	filled := 0
	prev := -1
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			a, b := col[prev], v
			span := float64(i - prev)
			for j := prev + 1; j < i; j++ {
				if limit > 0 && j-prev > limit {
					break
				}
				col[j] = a + (b-a)*float64(j-prev)/span
				filled++
			}
		}
		prev = i
	}
	return filled
}
