package workflow

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/snapshot"
)

// SessionState is a point-in-time copy of a live session.
type SessionState struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	EvaluationID  string                  `json:"evaluation_id"`
	URL           string                  `json:"url"`
	Snapshot      snapshot.Snapshot       `json:"-"`
	ScreenshotRef string                  `json:"screenshot_ref,omitempty"`
	Results       []history.PhaseResult   `json:"results"`
	CurrentPhase  phase.Phase             `json:"current_phase"`
	PhaseScores   map[phase.Phase]float64 `json:"phase_scores"`
	OverallScore  *float64                `json:"overall_score,omitempty"`
	Streaming     bool                    `json:"streaming"`
	Complete      bool                    `json:"complete"`
	StartedAt     time.Time               `json:"started_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func (s SessionState) clone() SessionState {
	out := s
	out.Snapshot.Screenshot = slices.Clone(s.Snapshot.Screenshot)
	out.Results = make([]history.PhaseResult, len(s.Results))
	for i, r := range s.Results {
		r.Ratings = slices.Clone(r.Ratings)
		if r.Score != nil {
			score := *r.Score
			r.Score = &score
		}
		out.Results[i] = r
	}
	out.PhaseScores = maps.Clone(s.PhaseScores)
	if out.PhaseScores == nil {
		out.PhaseScores = map[phase.Phase]float64{}
	}
	if s.OverallScore != nil {
		overall := *s.OverallScore
		out.OverallScore = &overall
	}
	return out
}

// NextPhase reports the phase the next Advance will run.
func (s SessionState) NextPhase() (phase.Phase, bool) {
	if s.Complete {
		return phase.None, false
	}
	return phase.Next(s.CurrentPhase)
}

// Outcome is the result of one Advance. Result is set for every phase except
// Recommendations, which returns Stream instead.
type Outcome struct {
	Phase        phase.Phase          `json:"phase"`
	Result       *history.PhaseResult `json:"result,omitempty"`
	OverallScore *float64             `json:"overall_score,omitempty"`
	Stream       *Relay               `json:"-"`
}

// PhaseError is an error-tagged phase attempt. The session stays on its
// previous phase.
type PhaseError struct {
	Phase  phase.Phase
	Result history.PhaseResult
	Err    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Reply is the assistant's answer to a chat message.
type Reply struct {
	Message string       `json:"message"`
	Phase   phase.Phase  `json:"phase"`
	Turn    history.Turn `json:"-"`
}

// session is the single-writer owner of one SessionState. busy is held by an
// in-flight Advance (and by an open recommendation relay).
type session struct {
	mu        sync.Mutex
	state     SessionState
	turns     []history.Turn
	busy      bool
	abandoned bool
	relay     *Relay
	lastUsed  time.Time
}
