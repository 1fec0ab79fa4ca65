package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"sitegrade/internal/analysis"
	"sitegrade/internal/history"
	"sitegrade/internal/logging"
	"sitegrade/internal/phase"
	"sitegrade/internal/projector"
	"sitegrade/internal/recommend"
	"sitegrade/internal/services"
	"sitegrade/internal/snapshot"
	"sitegrade/internal/validator"
)

// Advance runs the next phase of session id. Concurrent advances of one
// session are rejected with services.ErrConflict. A collaborator failure
// returns a *PhaseError and leaves the session on its previous phase.
func (m *Manager) Advance(ctx context.Context, id string) (Outcome, error) {
	if m.collab.Analyzer == nil || m.collab.Scorer == nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "workflow", "advance", "analyzer and scorer are required", nil)
	}
	sess, err := m.lookup(id)
	if err != nil {
		return Outcome{}, err
	}

	sess.mu.Lock()
	switch {
	case sess.abandoned:
		sess.mu.Unlock()
		return Outcome{}, services.Wrap(services.ErrNotFound, "workflow", "advance", "session "+id+" was abandoned", nil)
	case sess.busy:
		sess.mu.Unlock()
		return Outcome{}, services.Wrap(services.ErrConflict, "workflow", "advance", "an advance is already in progress", nil)
	}
	next, ok := sess.state.NextPhase()
	if !ok {
		sess.mu.Unlock()
		return Outcome{}, services.Wrap(services.ErrValidation, "workflow", "advance", "evaluation is complete", nil)
	}
	sess.busy = true
	sess.touch(m.now())
	view := sess.state.clone()
	turns := slices.Clone(sess.turns)
	sess.mu.Unlock()

	ctx = m.sessionContext(ctx, view, next)
	if next == phase.Recommendations {
		return m.advanceRecommendations(ctx, sess, view, turns)
	}
	return m.runPhase(ctx, sess, view, turns, next)
}

func (m *Manager) runPhase(ctx context.Context, sess *session, view SessionState, turns []history.Turn, next phase.Phase) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)
	start := m.now()
	subset := projector.Project(next, view.Snapshot.Metrics)
	logger.Info("phase started",
		logging.String("from_phase", view.CurrentPhase.String()),
		logging.Int("payload_bytes", projector.Size(subset)),
		logging.String(logging.FieldEventType, "phase_start"),
	)
	if err := projector.Validate(subset); err != nil {
		return m.failPhase(ctx, sess, view, next, snapshot.Null(), nil, err, start)
	}
	ratings := validator.RatePhase(next, subset)

	callCtx, cancel := m.collaboratorContext(ctx)
	defer cancel()

	req := analysis.AnalyzeRequest{
		URL:     view.URL,
		Phase:   next,
		Metrics: subset,
		Ratings: ratings,
		History: history.Bound(turns, next, m.historyLimits()),
	}
	switch next {
	case phase.Vision:
		req.Screenshot = view.Snapshot.Screenshot
	case phase.Overall:
		req.Prior = history.Completed(view.Results)
		req.OverallScore = view.OverallScore
	}
	narrative, err := m.collab.Analyzer.Analyze(callCtx, req)
	if err != nil {
		return m.failPhase(ctx, sess, view, next, subset, ratings, asCollaborator(err, "analyze", next.String()), start)
	}

	var score *float64
	if next.IsScored() {
		value, err := m.collab.Scorer.Score(callCtx, analysis.ScoreRequest{
			Phase:      next,
			Metrics:    subset,
			Ratings:    ratings,
			Narrative:  narrative,
			Screenshot: req.Screenshot,
		})
		if err != nil {
			return m.failPhase(ctx, sess, view, next, subset, ratings, asCollaborator(err, "score", next.String()), start)
		}
		if math.IsNaN(value) || value < 0 || value > 100 {
			cause := services.Wrap(services.ErrCollaborator, "workflow", "score", fmt.Sprintf("score %v outside [0,100]", value), nil)
			return m.failPhase(ctx, sess, view, next, subset, ratings, cause, start)
		}
		score = &value
	}

	now := m.now().UTC()
	result := history.PhaseResult{
		ID:           uuid.NewString(),
		EvaluationID: view.EvaluationID,
		UserID:       view.UserID,
		Phase:        next,
		Narrative:    narrative,
		Metrics:      subset,
		Ratings:      ratings,
		Score:        score,
		CreatedAt:    now,
	}
	if next == phase.Vision {
		result.ScreenshotRef = view.ScreenshotRef
	}
	turn := history.Turn{
		ID:           uuid.NewString(),
		EvaluationID: view.EvaluationID,
		UserID:       view.UserID,
		Role:         history.RoleAssistant,
		Phase:        next,
		Content:      narrative,
		CreatedAt:    now,
	}
	if err := m.persist(ctx, result, turn); err != nil {
		sess.release()
		m.setLastError(err)
		logging.ErrorWithContext(logger, "phase result not persisted", "phase_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the phase did not advance"),
			logging.String(logging.FieldErrorHint, "check database access and retry the advance"),
		)
		return Outcome{}, err
	}

	overall := m.commit(sess, result, turn, false)
	attrs := []logging.Attr{
		logging.Duration("phase_duration", m.now().Sub(start)),
		logging.Int("ratings", len(ratings)),
		logging.String(logging.FieldEventType, "phase_complete"),
	}
	if score != nil {
		attrs = append(attrs, logging.Float64("score", *score))
	}
	if overall != nil {
		attrs = append(attrs, logging.Float64("overall_score", *overall))
	}
	logger.Info("phase completed", logging.Args(attrs...)...)
	return Outcome{Phase: next, Result: &result, OverallScore: overall}, nil
}

func (m *Manager) advanceRecommendations(ctx context.Context, sess *session, view SessionState, turns []history.Turn) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)
	start := m.now()
	logger.Info("phase started",
		logging.String("from_phase", view.CurrentPhase.String()),
		logging.String(logging.FieldEventType, "phase_start"),
	)
	req := recommend.Request{
		URL:          view.URL,
		Results:      history.Completed(view.Results),
		OverallScore: view.OverallScore,
		History:      history.Bound(turns, phase.Recommendations, m.historyLimits()),
	}
	stream, err := recommend.Open(ctx, m.streamOptions(), m.collab.Recommender, m.collab.Fetcher, req)
	if err != nil {
		if ctx.Err() != nil {
			sess.release()
			return Outcome{}, err
		}
		return m.failPhase(ctx, sess, view, phase.Recommendations, snapshot.Object(nil), nil, err, start)
	}

	finishCtx := context.WithoutCancel(ctx)
	relay := newRelay(stream, func(s *recommend.Stream, sawDone bool) (history.PhaseResult, error) {
		return m.finishRecommendations(finishCtx, sess, view, s, sawDone, start)
	})

	sess.mu.Lock()
	if sess.abandoned {
		sess.busy = false
		sess.mu.Unlock()
		relay.Stop()
		stream.Close()
		return Outcome{}, services.Wrap(services.ErrNotFound, "workflow", "advance", "session "+view.ID+" was abandoned", nil)
	}
	sess.relay = relay
	sess.state.Streaming = true
	sess.mu.Unlock()

	relay.start()
	return Outcome{Phase: phase.Recommendations, OverallScore: view.OverallScore, Stream: relay}, nil
}

// finishRecommendations runs on the relay goroutine once the stream is
// drained, before Done is forwarded.
func (m *Manager) finishRecommendations(ctx context.Context, sess *session, view SessionState, stream *recommend.Stream, sawDone bool, start time.Time) (history.PhaseResult, error) {
	logger := logging.WithContext(ctx, m.logger)

	sess.mu.Lock()
	abandoned := sess.abandoned
	sess.relay = nil
	sess.state.Streaming = false
	sess.mu.Unlock()
	if abandoned {
		sess.release()
		return history.PhaseResult{}, services.Wrap(services.ErrNotFound, "workflow", "recommendations", "session "+view.ID+" was abandoned", nil)
	}

	tasks := stream.Tasks()
	metrics := competitorsValue(tasks)
	if err := stream.Err(); err != nil || !sawDone {
		if err == nil {
			err = services.Wrap(services.ErrStreamTimeout, "workflow", "recommendations", "stream ended without done", nil)
		}
		_, phaseErr := m.failPhase(ctx, sess, view, phase.Recommendations, metrics, nil, err, start)
		return history.PhaseResult{}, phaseErr
	}

	now := m.now().UTC()
	result := history.PhaseResult{
		ID:           uuid.NewString(),
		EvaluationID: view.EvaluationID,
		UserID:       view.UserID,
		Phase:        phase.Recommendations,
		Narrative:    stream.Narrative(),
		Metrics:      metrics,
		CreatedAt:    now,
	}
	turn := history.Turn{
		ID:           uuid.NewString(),
		EvaluationID: view.EvaluationID,
		UserID:       view.UserID,
		Role:         history.RoleAssistant,
		Phase:        phase.Recommendations,
		Content:      stream.Narrative(),
		CreatedAt:    now,
	}
	if err := m.persist(ctx, result, turn); err != nil {
		sess.release()
		m.setLastError(err)
		logging.ErrorWithContext(logger, "recommendations not persisted", "phase_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the evaluation did not complete"),
			logging.String(logging.FieldErrorHint, "check database access and retry the advance"),
		)
		return history.PhaseResult{}, err
	}

	m.commit(sess, result, turn, true)
	loaded := 0
	for _, task := range tasks {
		if task.Status == recommend.StatusLoaded {
			loaded++
		}
	}
	logger.Info("phase completed",
		logging.Duration("phase_duration", m.now().Sub(start)),
		logging.Int("competitors", len(tasks)),
		logging.Int("competitors_loaded", loaded),
		logging.String(logging.FieldEventType, "phase_complete"),
	)
	state, err := m.State(view.ID)
	if err == nil {
		m.notifyEvaluationCompleted(ctx, state)
	}
	return result, nil
}

// failPhase records an error-tagged result and releases the session without
// touching its phase or scores.
func (m *Manager) failPhase(ctx context.Context, sess *session, view SessionState, p phase.Phase, metrics snapshot.Value, ratings []validator.MetricRating, cause error, start time.Time) (Outcome, error) {
	logger := logging.WithContext(ctx, m.logger)
	result := history.PhaseResult{
		ID:           uuid.NewString(),
		EvaluationID: view.EvaluationID,
		UserID:       view.UserID,
		Phase:        p,
		Metrics:      metrics,
		Ratings:      ratings,
		Error:        cause.Error(),
		CreatedAt:    m.now().UTC(),
	}
	if err := m.repo.AppendPhaseResult(context.WithoutCancel(ctx), result); err != nil {
		logger.Warn("error-tagged phase result not persisted", logging.Error(err))
	}
	sess.release()
	m.setLastError(cause)

	hint := fmt.Sprintf("retry the advance; the session stays on %s", view.CurrentPhase.Title())
	if errors.Is(cause, services.ErrValidation) {
		hint = "the captured snapshot is malformed; start a new evaluation"
	}
	logging.WarnWithContext(logger, "phase failed", "phase_failure",
		logging.Error(cause),
		logging.Duration("phase_duration", m.now().Sub(start)),
		logging.String(logging.FieldImpact, "session did not advance"),
		logging.String(logging.FieldErrorHint, hint),
	)
	return Outcome{}, &PhaseError{Phase: p, Result: result, Err: cause}
}

func (m *Manager) persist(ctx context.Context, result history.PhaseResult, turn history.Turn) error {
	var turns []history.Turn
	if turn.Content != "" {
		turns = append(turns, turn)
	}
	if err := m.repo.RecordPhase(ctx, result, turns...); err != nil {
		return services.Wrap(services.ErrStorage, "workflow", "record phase", result.Phase.String(), err)
	}
	return nil
}

// commit applies a persisted result to the session and releases it.
func (m *Manager) commit(sess *session, result history.PhaseResult, turn history.Turn, complete bool) *float64 {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.busy = false
	if sess.abandoned {
		return nil
	}
	state := &sess.state
	state.Results = append(state.Results, result)
	if turn.Content != "" {
		sess.turns = append(sess.turns, turn)
	}
	if result.Score != nil && result.Phase.IsScored() {
		state.PhaseScores[result.Phase] = *result.Score
		state.OverallScore = history.OverallScore(state.PhaseScores)
	}
	state.CurrentPhase = result.Phase
	state.Complete = complete
	state.UpdatedAt = result.CreatedAt
	sess.touch(m.now())
	if state.OverallScore == nil {
		return nil
	}
	overall := *state.OverallScore
	return &overall
}

func competitorsValue(tasks []recommend.CompetitorTask) snapshot.Value {
	items := make([]snapshot.Value, 0, len(tasks))
	for _, task := range tasks {
		fields := map[string]snapshot.Value{
			"url":    snapshot.String(task.URL),
			"status": snapshot.String(string(task.Status)),
		}
		if task.Reason != "" {
			fields["reason"] = snapshot.String(task.Reason)
		}
		items = append(items, snapshot.Object(fields))
	}
	return snapshot.Object(map[string]snapshot.Value{"competitors": snapshot.Array(items...)})
}

func (s *session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}
