package workflow

import (
	"context"
	"errors"
	"time"

	"sitegrade/internal/logging"
)

const minReapInterval = time.Second

// Start begins background maintenance: idle sessions are abandoned once
// they exceed workflow.session_idle_minutes.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	idle := m.cfg.SessionIdleTimeout()
	if idle > 0 {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if idle > 0 {
		go m.runReaper(runCtx, idle)
	}
	return nil
}

// Stop terminates background maintenance and waits for completion. Live
// sessions are abandoned.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	for _, id := range ids {
		_ = m.Abandon(id)
	}
}

func (m *Manager) runReaper(ctx context.Context, idle time.Duration) {
	defer m.wg.Done()
	interval := max(idle/4, minReapInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.NewComponentLogger(m.logger, "workflow-reaper")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := m.ReapIdle(idle); reaped > 0 {
				logger.Info("reaped idle sessions",
					logging.Int("count", reaped),
					logging.Duration("idle_timeout", idle),
					logging.String(logging.FieldEventType, "session_reaped"),
				)
			}
		}
	}
}

// ReapIdle abandons sessions unused for longer than idle. Sessions with an
// advance or relay in flight are kept.
func (m *Manager) ReapIdle(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.RLock()
	candidates := make(map[string]*session, len(m.sessions))
	for id, sess := range m.sessions {
		candidates[id] = sess
	}
	m.mu.RUnlock()

	reaped := 0
	for id, sess := range candidates {
		sess.mu.Lock()
		stale := !sess.busy && sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if !stale {
			continue
		}
		if err := m.Abandon(id); err == nil {
			reaped++
		}
	}
	return reaped
}
