package history

import (
	"time"

	"sitegrade/internal/phase"
	"sitegrade/internal/snapshot"
	"sitegrade/internal/validator"
)

// Evaluation is one URL submission and the snapshot captured for it.
type Evaluation struct {
	ID            string
	UserID        string
	URL           string
	Metrics       snapshot.Value
	ScreenshotRef string
	CreatedAt     time.Time
}

// PhaseResult records the outcome of one phase. Score is nil for unscored
// phases. Error is set for error-tagged results that did not advance the
// session.
type PhaseResult struct {
	ID            string
	EvaluationID  string
	UserID        string
	Phase         phase.Phase
	Narrative     string
	Metrics       snapshot.Value
	Ratings       []validator.MetricRating
	Score         *float64
	ScreenshotRef string
	Error         string
	CreatedAt     time.Time
}

// Failed reports whether the result is error-tagged.
func (r PhaseResult) Failed() bool {
	return r.Error != ""
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one chat message. Phase is the phase the session was on when the
// turn was written, or phase.None before Vision.
type Turn struct {
	ID           string
	EvaluationID string
	UserID       string
	Role         Role
	Phase        phase.Phase
	Content      string
	CreatedAt    time.Time
}

// Report is a generated report file.
type Report struct {
	ID           string
	EvaluationID string
	UserID       string
	Format       string
	Path         string
	Bytes        int64
	CreatedAt    time.Time
}
