package report

import (
	"time"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/validator"
)

// Document is the format-neutral report model.
type Document struct {
	EvaluationID string            `json:"evaluation_id" yaml:"evaluation_id"`
	UserID       string            `json:"user_id" yaml:"user_id"`
	URL          string            `json:"url" yaml:"url"`
	EvaluatedAt  time.Time         `json:"evaluated_at" yaml:"evaluated_at"`
	GeneratedAt  time.Time         `json:"generated_at" yaml:"generated_at"`
	OverallScore *float64          `json:"overall_score,omitempty" yaml:"overall_score,omitempty"`
	Summary      validator.Summary `json:"summary" yaml:"summary"`
	Phases       []Section         `json:"phases" yaml:"phases"`
}

// Section is one completed phase.
type Section struct {
	Phase     phase.Phase              `json:"phase" yaml:"phase"`
	Title     string                   `json:"title" yaml:"title"`
	Score     *float64                 `json:"score,omitempty" yaml:"score,omitempty"`
	Narrative string                   `json:"narrative" yaml:"narrative"`
	Ratings   []validator.MetricRating `json:"ratings,omitempty" yaml:"ratings,omitempty"`
}

func buildDocument(eval history.Evaluation, results []history.PhaseResult, now time.Time) Document {
	completed := history.Completed(results)
	doc := Document{
		EvaluationID: eval.ID,
		UserID:       eval.UserID,
		URL:          eval.URL,
		EvaluatedAt:  eval.CreatedAt.UTC(),
		GeneratedAt:  now.UTC(),
		OverallScore: history.OverallScore(history.LatestScores(completed)),
		Phases:       make([]Section, 0, len(completed)),
	}
	var all []validator.MetricRating
	for _, result := range completed {
		doc.Phases = append(doc.Phases, Section{
			Phase:     result.Phase,
			Title:     result.Phase.Title(),
			Score:     result.Score,
			Narrative: result.Narrative,
			Ratings:   result.Ratings,
		})
		all = append(all, result.Ratings...)
	}
	doc.Summary = validator.Summarize(all)
	return doc
}
