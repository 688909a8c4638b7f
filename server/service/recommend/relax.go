package recommend

import (
	"github.com/hrygo/likewise/store"
)

// Relaxation tuning.
const (
	PopularityRelaxFactor = 0.6
	YearRelaxWindow       = 10
)

// BuildRelaxations returns the filter ladder tried in order, each step
// looser than the previous: the base filter, the popularity floor at 60%,
// no popularity floor, the year bounds widened by ten years, and no year
// bounds. Steps identical to an earlier one are dropped. The type filter is
// never relaxed.
func BuildRelaxations(base store.RecommendationFilters) []store.RecommendationFilters {
	steps := []store.RecommendationFilters{base}

	current := base
	if current.PopMin != nil {
		lowered := *current.PopMin * PopularityRelaxFactor
		current.PopMin = &lowered
		steps = append(steps, current)

		current.PopMin = nil
		steps = append(steps, current)
	}

	if current.YearMin != nil || current.YearMax != nil {
		if current.YearMin != nil {
			widened := *current.YearMin - YearRelaxWindow
			current.YearMin = &widened
		}
		if current.YearMax != nil {
			widened := *current.YearMax + YearRelaxWindow
			current.YearMax = &widened
		}
		steps = append(steps, current)

		current.YearMin, current.YearMax = nil, nil
		steps = append(steps, current)
	}

	seen := make(map[string]bool, len(steps))
	deduped := steps[:0]
	for _, f := range steps {
		key := f.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, f)
	}
	return deduped
}
