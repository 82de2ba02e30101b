package suggest

import "sort"

// RankSuggestions returns a copy sorted by ImpactScore descending, then by
// priority and title so equal scores order stably.
func RankSuggestions(suggestions []Suggestion) []Suggestion {
	sorted := make([]Suggestion, len(suggestions))
	copy(sorted, suggestions)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Title < b.Title
	})
	return sorted
}

// ComputeImpact calculates an impact score for a suggestion.
// Formula: (affectedSessions * frequency * timeSaved) / effort
//
// Parameters:
//   - affectedSessions: number of sessions affected by this issue
//   - frequency: how often the issue occurs (0.0-1.0)
//   - timeSaved: estimated minutes saved per session once addressed
//   - effort: estimated minutes of effort to address it
//
// Returns 0 if effort is zero.
func ComputeImpact(affectedSessions int, frequency float64, timeSaved float64, effort float64) float64 {
	if effort <= 0 {
		return 0
	}
	return (float64(affectedSessions) * frequency * timeSaved) / effort
}
