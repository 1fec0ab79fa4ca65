package workflow

import (
	"context"

	"github.com/google/uuid"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/recommend"
	"sitegrade/internal/services"
)

func (m *Manager) sessionContext(ctx context.Context, state SessionState, p phase.Phase) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithSessionID(ctx, state.ID)
	ctx = services.WithUserID(ctx, state.UserID)
	ctx = services.WithEvaluationID(ctx, state.EvaluationID)
	if p != phase.None {
		ctx = services.WithPhase(ctx, p.String())
	}
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	return ctx
}

func (m *Manager) collaboratorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.cfg.CollaboratorTimeout()
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *Manager) historyLimits() history.Limits {
	return history.Limits{
		Max:        m.cfg.Workflow.HistoryLimit,
		RecentUser: m.cfg.Workflow.RecentUserTurns,
	}
}

func (m *Manager) streamOptions() recommend.Options {
	return recommend.Options{
		MaxConcurrency: m.cfg.Recommendations.MaxConcurrency,
		TaskTimeout:    m.cfg.TaskTimeout(),
		StreamTimeout:  m.cfg.StreamTimeout(),
		MaxCompetitors: m.cfg.Recommendations.MaxCompetitors,
		Logger:         m.logger,
	}
}
