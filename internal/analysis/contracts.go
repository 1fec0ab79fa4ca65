package analysis

import (
	"context"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/snapshot"
	"sitegrade/internal/validator"
)

// AnalyzeRequest is the input for one phase narrative. Screenshot is only
// set for Vision; Prior and OverallScore are only set for Overall.
type AnalyzeRequest struct {
	URL          string
	Phase        phase.Phase
	Metrics      snapshot.Value
	Ratings      []validator.MetricRating
	History      []history.Turn
	Screenshot   []byte
	Prior        []history.PhaseResult
	OverallScore *float64
}

// ScoreRequest is the input for a phase score.
type ScoreRequest struct {
	Phase      phase.Phase
	Metrics    snapshot.Value
	Ratings    []validator.MetricRating
	Narrative  string
	Screenshot []byte
}

// ChatRequest is one user chat message with the evaluation context.
type ChatRequest struct {
	URL     string
	Phase   phase.Phase
	Results []history.PhaseResult
	History []history.Turn
	Message string
}

// Analyzer writes the narrative for a phase.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (string, error)
}

// Scorer rates a scored phase on a 0-100 scale.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (float64, error)
}

// Advisor answers chat messages about an evaluation.
type Advisor interface {
	Reply(ctx context.Context, req ChatRequest) (string, error)
}
