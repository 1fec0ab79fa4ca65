package workflow

import (
	"context"
	"log/slog"

	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/notifications"
)

func (m *Manager) notifyEvaluationCompleted(ctx context.Context, state SessionState) {
	if m.notifier == nil {
		return
	}
	payload := notifications.Payload{
		"url":          state.URL,
		"evaluationId": state.EvaluationID,
		"userId":       state.UserID,
	}
	if state.OverallScore != nil {
		payload["overallScore"] = *state.OverallScore
	}
	if err := m.notifier.Publish(ctx, notifications.EventEvaluationCompleted, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "evaluation notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "completion was not announced"),
			logging.String(logging.FieldErrorHint, "check ntfy_topic and discord settings"),
		)
	}
}

// LowBalanceHook returns a ledger.Options.OnLowBalance callback that
// publishes a low_balance notification.
func LowBalanceHook(notifier notifications.Service, logger *slog.Logger) func(context.Context, ledger.Account) {
	logger = logging.NewComponentLogger(logger, "workflow")
	return func(ctx context.Context, account ledger.Account) {
		if notifier == nil {
			return
		}
		payload := notifications.Payload{
			"accountId": account.ID,
			"balance":   account.Balance.String(),
		}
		if err := notifier.Publish(ctx, notifications.EventLowBalance, payload); err != nil {
			logger.Warn("low balance notification failed",
				logging.String(logging.FieldUserID, account.ID),
				logging.Error(err),
			)
		}
	}
}
