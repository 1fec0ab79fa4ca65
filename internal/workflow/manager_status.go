package workflow

import (
	"context"
	"sort"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running        bool     `json:"running"`
	ActiveSessions int      `json:"active_sessions"`
	LastError      string   `json:"last_error,omitempty"`
	Health         []Health `json:"health"`
}

// Ready reports whether every probe passed.
func (s StatusSummary) Ready() bool {
	for _, h := range s.Health {
		if !h.Ready {
			return false
		}
	}
	return true
}

// Status returns the latest workflow information and runs health probes.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, ActiveSessions: len(m.sessions)}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	summary.Health = make([]Health, 0, len(names))
	for _, name := range names {
		if err := m.probes[name](ctx); err != nil {
			summary.Health = append(summary.Health, Unhealthy(name, err.Error()))
			continue
		}
		summary.Health = append(summary.Health, Healthy(name))
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
