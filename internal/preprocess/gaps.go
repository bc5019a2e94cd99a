package preprocess

import (
	"time"

	"epf-data/internal/model"
)

// FindGaps returns the grid starts on step between the first and the last record start of s
// that no record covers. A nil or empty series has no gaps.
func FindGaps(s *model.RawSeries, step time.Duration) []time.Time {
	if s.Len() == 0 || step <= 0 {
		return nil
	}
	var missing []time.Time
	first := s.Records[0].Start
	last := s.Records[len(s.Records)-1].Start
	i := 0
	for t := first; !t.After(last); t = t.Add(step) {
		for i < len(s.Records) && !s.Records[i].End.After(t) {
			i++
		}
		if i < len(s.Records) && !s.Records[i].Start.After(t) {
			continue
		}
		missing = append(missing, t)
	}
	return missing
}

// HasGaps reports whether FindGaps would return anything.
func HasGaps(s *model.RawSeries, step time.Duration) bool {
	return len(FindGaps(s, step)) > 0
}
