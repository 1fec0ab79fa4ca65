package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/phase"
	"sitegrade/internal/services"
	"sitegrade/internal/snapshot"
)

// StartSession bills an evaluation, captures the snapshot for rawURL, and
// opens a session at phase.None. Any live session of the same user is
// abandoned. The charge is refunded when capture or persistence fails.
func (m *Manager) StartSession(ctx context.Context, userID, rawURL string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", services.Wrap(services.ErrValidation, "workflow", "start session", "user id is required", nil)
	}
	pageURL, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	if m.collab.Capturer == nil {
		return "", services.Wrap(services.ErrConfiguration, "workflow", "start session", "capture collaborator not configured", nil)
	}

	evaluationID := uuid.NewString()
	sessionID := uuid.NewString()
	ctx = services.WithUserID(ctx, userID)
	ctx = services.WithEvaluationID(ctx, evaluationID)
	ctx = services.WithSessionID(ctx, sessionID)
	logger := logging.WithContext(ctx, m.logger)

	start := m.now()
	var state SessionState
	var system history.Turn
	req := ledger.ReserveRequest{
		AccountID:    userID,
		EvaluationID: evaluationID,
		Action:       ledger.ActionEvaluation,
		Amount:       m.cfg.Prices().Evaluation,
	}
	err = m.ledger.Charge(ctx, req, func(ctx context.Context, _ ledger.Reservation) error {
		snap, err := m.capture(ctx, pageURL)
		if err != nil {
			return err
		}
		ref, err := m.saveScreenshot(userID, evaluationID, snap.Screenshot)
		if err != nil {
			return err
		}
		eval := history.Evaluation{
			ID:            evaluationID,
			UserID:        userID,
			URL:           pageURL,
			Metrics:       snap.Metrics,
			ScreenshotRef: ref,
			CreatedAt:     snap.CapturedAt,
		}
		system = history.Turn{
			ID:           uuid.NewString(),
			EvaluationID: evaluationID,
			UserID:       userID,
			Role:         history.RoleSystem,
			Phase:        phase.None,
			Content:      fmt.Sprintf("Evaluation of %s started.", pageURL),
			CreatedAt:    snap.CapturedAt,
		}
		if err := m.repo.StartEvaluation(ctx, eval, system); err != nil {
			m.removeScreenshot(ref)
			return services.Wrap(services.ErrStorage, "workflow", "start evaluation", evaluationID, err)
		}
		state = SessionState{
			ID:            sessionID,
			UserID:        userID,
			EvaluationID:  evaluationID,
			URL:           pageURL,
			Snapshot:      snap,
			ScreenshotRef: ref,
			CurrentPhase:  phase.None,
			PhaseScores:   map[phase.Phase]float64{},
			StartedAt:     snap.CapturedAt,
			UpdatedAt:     snap.CapturedAt,
		}
		return nil
	})
	if err != nil {
		m.setLastError(err)
		logging.WarnWithContext(logger, "session start failed", "session_start_failed",
			logging.String("url", pageURL),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, startHint(err)),
		)
		return "", err
	}

	sess := &session{state: state, turns: []history.Turn{system}, lastUsed: m.now()}
	m.mu.Lock()
	previous := m.sessions[m.byUser[userID]]
	delete(m.sessions, m.byUser[userID])
	m.sessions[sessionID] = sess
	m.byUser[userID] = sessionID
	m.mu.Unlock()
	if previous != nil {
		previous.abandon()
		logger.Info("previous session replaced",
			logging.String("previous_session_id", previous.id()),
			logging.String(logging.FieldEventType, "session_replaced"),
		)
	}

	logger.Info("session started",
		logging.String("url", pageURL),
		logging.Int("snapshot_keys", state.Snapshot.Metrics.Len()),
		logging.Bool("screenshot", state.Snapshot.HasScreenshot()),
		logging.Duration("capture_duration", m.now().Sub(start)),
		logging.String(logging.FieldEventType, "session_start"),
	)
	return sessionID, nil
}

// State returns a deep copy of the session.
func (m *Manager) State(id string) (SessionState, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return SessionState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.clone(), nil
}

// SessionForUser returns the id of the user's live session.
func (m *Manager) SessionForUser(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUser[userID]
	return id, ok
}

// Abandon drops the session. An open relay stops forwarding events; competitor
// fetches finish on their own timeouts.
func (m *Manager) Abandon(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if m.byUser[sess.userID()] == id {
			delete(m.byUser, sess.userID())
		}
	}
	m.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "workflow", "abandon", "session "+id, nil)
	}
	sess.abandon()
	m.logger.Info("session abandoned",
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldEventType, "session_abandoned"),
	)
	return nil
}

// ActiveSessions counts live sessions.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[strings.TrimSpace(id)]
	m.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "lookup", "session "+id, nil)
	}
	return sess, nil
}

func (m *Manager) capture(ctx context.Context, pageURL string) (snapshot.Snapshot, error) {
	if timeout := m.cfg.CaptureTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	metrics, err := m.collab.Capturer.CaptureMetrics(ctx, pageURL)
	if err != nil {
		return snapshot.Snapshot{}, asCollaborator(err, "capture metrics", pageURL)
	}
	if metrics.Kind() != snapshot.KindObject {
		return snapshot.Snapshot{}, services.Wrap(services.ErrValidation, "workflow", "capture metrics", "snapshot is not an object", nil)
	}
	image, err := m.collab.Capturer.Screenshot(ctx, pageURL)
	if err != nil {
		return snapshot.Snapshot{}, asCollaborator(err, "screenshot", pageURL)
	}
	return snapshot.Snapshot{
		URL:        pageURL,
		CapturedAt: m.now().UTC(),
		Metrics:    metrics,
		Screenshot: image,
	}, nil
}

func (m *Manager) saveScreenshot(userID, evaluationID string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	dir := filepath.Join(m.cfg.Paths.ScreenshotDir, services.PathSegment(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrStorage, "workflow", "create screenshot dir", dir, err)
	}
	path := filepath.Join(dir, evaluationID+".png")
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", services.Wrap(services.ErrStorage, "workflow", "write screenshot", path, err)
	}
	return path, nil
}

// removeScreenshot drops a screenshot whose evaluation was never recorded.
func (m *Manager) removeScreenshot(ref string) {
	if ref == "" {
		return
	}
	if err := os.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("orphaned screenshot not removed", logging.String("path", ref), logging.Error(err))
	}
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", services.Wrap(services.ErrValidation, "workflow", "start session", "url is required", nil)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", services.Wrap(services.ErrValidation, "workflow", "start session", fmt.Sprintf("invalid url %q", raw), err)
	}
	return parsed.String(), nil
}

func asCollaborator(err error, operation, detail string) error {
	switch {
	case errors.Is(err, services.ErrCollaborator), errors.Is(err, services.ErrValidation):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrCollaborator, "workflow", operation, detail+": timed out", err)
	default:
		return services.Wrap(services.ErrCollaborator, "workflow", operation, detail, err)
	}
}

func startHint(err error) string {
	switch {
	case errors.Is(err, services.ErrInsufficientBalance):
		return "top up credits or enable pay-as-you-go"
	case errors.Is(err, services.ErrCollaborator):
		return "check the capture sidecar; the charge was refunded"
	default:
		return "the charge was refunded; retry the evaluation"
	}
}

func (s *session) id() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}

func (s *session) userID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.UserID
}

func (s *session) abandon() {
	s.mu.Lock()
	s.abandoned = true
	relay := s.relay
	s.relay = nil
	s.mu.Unlock()
	if relay != nil {
		relay.Stop()
	}
}

func (s *session) touch(now time.Time) {
	s.lastUsed = now
}
