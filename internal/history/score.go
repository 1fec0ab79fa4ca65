package history

import (
	"math"

	"sitegrade/internal/phase"
)

// OverallScore is the rounded unweighted mean of scores, or nil when no
// scored phase has completed.
func OverallScore(scores map[phase.Phase]float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, score := range scores {
		sum += score
	}
	mean := math.Round(sum / float64(len(scores)))
	return &mean
}

// LatestScores collects the most recent successful score of each scored
// phase. results must be in chronological order.
func LatestScores(results []PhaseResult) map[phase.Phase]float64 {
	scores := make(map[phase.Phase]float64)
	for _, result := range results {
		if result.Failed() || result.Score == nil || !result.Phase.IsScored() {
			continue
		}
		scores[result.Phase] = *result.Score
	}
	return scores
}

// Completed drops error-tagged results and keeps the latest successful
// result per phase, in phase order.
func Completed(results []PhaseResult) []PhaseResult {
	latest := make(map[phase.Phase]PhaseResult)
	for _, result := range results {
		if result.Failed() {
			continue
		}
		latest[result.Phase] = result
	}
	out := make([]PhaseResult, 0, len(latest))
	for _, p := range phase.All() {
		if result, ok := latest[p]; ok {
			out = append(out, result)
		}
	}
	return out
}
