package workflow

import (
	"context"

	"sitegrade/internal/report"
	"sitegrade/internal/services"
)

// GenerateReport renders a billed report of the session's persisted history.
func (m *Manager) GenerateReport(ctx context.Context, id string, format report.Format) (report.Handle, error) {
	if m.reports == nil {
		return report.Handle{}, services.Wrap(services.ErrConfiguration, "workflow", "report", "report generator not configured", nil)
	}
	state, err := m.State(id)
	if err != nil {
		return report.Handle{}, err
	}
	ctx = m.sessionContext(ctx, state, state.CurrentPhase)
	return m.reports.Generate(ctx, state.UserID, state.EvaluationID, format)
}
