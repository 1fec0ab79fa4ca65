package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"sitegrade/internal/analysis"
	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/services"
)

const maxChatMessageRunes = 4000

// SubmitChatMessage bills one chat message and returns the advisor's reply.
// Both turns are persisted; the charge is refunded if the advisor or storage
// fails.
func (m *Manager) SubmitChatMessage(ctx context.Context, id, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, services.Wrap(services.ErrValidation, "workflow", "chat", "message is empty", nil)
	}
	if n := utf8.RuneCountInString(text); n > maxChatMessageRunes {
		return Reply{}, services.Wrap(services.ErrValidation, "workflow", "chat",
			fmt.Sprintf("message has %d characters, limit is %d", n, maxChatMessageRunes), nil)
	}
	if m.collab.Advisor == nil {
		return Reply{}, services.Wrap(services.ErrConfiguration, "workflow", "chat", "advisor not configured", nil)
	}
	sess, err := m.lookup(id)
	if err != nil {
		return Reply{}, err
	}

	sess.mu.Lock()
	if sess.abandoned {
		sess.mu.Unlock()
		return Reply{}, services.Wrap(services.ErrNotFound, "workflow", "chat", "session "+id+" was abandoned", nil)
	}
	sess.touch(m.now())
	view := sess.state.clone()
	turns := slices.Clone(sess.turns)
	sess.mu.Unlock()

	current := view.CurrentPhase
	ctx = m.sessionContext(ctx, view, current)
	logger := logging.WithContext(ctx, m.logger)

	var reply Reply
	var written []history.Turn
	req := ledger.ReserveRequest{
		AccountID:    view.UserID,
		EvaluationID: view.EvaluationID,
		Action:       ledger.ActionChatMessage,
		Amount:       m.cfg.Prices().ChatMessage,
	}
	err = m.ledger.Charge(ctx, req, func(ctx context.Context, _ ledger.Reservation) error {
		callCtx, cancel := m.collaboratorContext(ctx)
		defer cancel()
		answer, err := m.collab.Advisor.Reply(callCtx, analysis.ChatRequest{
			URL:     view.URL,
			Phase:   current,
			Results: history.Completed(view.Results),
			History: history.Bound(turns, current, m.historyLimits()),
			Message: text,
		})
		if err != nil {
			return asCollaborator(err, "chat", current.String())
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return services.Wrap(services.ErrCollaborator, "workflow", "chat", "advisor returned an empty reply", nil)
		}

		now := m.now().UTC()
		written = []history.Turn{
			{ID: uuid.NewString(), EvaluationID: view.EvaluationID, UserID: view.UserID, Role: history.RoleUser, Phase: current, Content: text, CreatedAt: now},
			{ID: uuid.NewString(), EvaluationID: view.EvaluationID, UserID: view.UserID, Role: history.RoleAssistant, Phase: current, Content: answer, CreatedAt: now},
		}
		if err := m.repo.AppendTurns(ctx, written...); err != nil {
			return services.Wrap(services.ErrStorage, "workflow", "append turns", view.EvaluationID, err)
		}
		reply = Reply{Message: answer, Phase: current, Turn: written[1]}
		return nil
	})
	if err != nil {
		logging.WarnWithContext(logger, "chat message failed", "chat_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, startHint(err)),
		)
		return Reply{}, err
	}

	sess.mu.Lock()
	if !sess.abandoned {
		sess.turns = append(sess.turns, written...)
	}
	sess.mu.Unlock()

	logger.Info("chat reply",
		logging.Int("history_turns", len(turns)),
		logging.Int("reply_chars", utf8.RuneCountInString(reply.Message)),
		logging.String(logging.FieldEventType, "chat_reply"),
	)
	return reply, nil
}
