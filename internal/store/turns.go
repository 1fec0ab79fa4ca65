package store

import (
	"context"
	"database/sql"
	"fmt"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
)

const turnColumns = "id, evaluation_id, user_id, role, phase, content, created_at"

const turnInsert = `INSERT INTO chat_turns (` + turnColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func turnArgs(turn history.Turn) []any {
	return []any{
		turn.ID,
		turn.EvaluationID,
		turn.UserID,
		string(turn.Role),
		string(turn.Phase),
		turn.Content,
		formatTime(turn.CreatedAt),
	}
}

func insertTurns(ctx context.Context, ex execer, turns ...history.Turn) error {
	for _, turn := range turns {
		if _, err := ex.ExecContext(ctx, turnInsert, turnArgs(turn)...); err != nil {
			return fmt.Errorf("insert chat turn %s: %w", turn.Role, err)
		}
	}
	return nil
}

// AppendTurn records a chat turn.
func (s *Store) AppendTurn(ctx context.Context, turn history.Turn) error {
	if _, err := s.execWithRetry(ctx, turnInsert, turnArgs(turn)...); err != nil {
		return fmt.Errorf("insert chat turn: %w", err)
	}
	return nil
}

// AppendTurns records several turns atomically, such as a user message and
// its reply.
func (s *Store) AppendTurns(ctx context.Context, turns ...history.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertTurns(ctx, tx, turns...)
	})
}

// ListTurns returns an evaluation's conversation in chronological order.
func (s *Store) ListTurns(ctx context.Context, userID, evaluationID string) ([]history.Turn, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+turnColumns+" FROM chat_turns WHERE user_id = ? AND evaluation_id = ? ORDER BY seq",
		userID, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	defer rows.Close()

	var turns []history.Turn
	for rows.Next() {
		var (
			turn           history.Turn
			role, phaseRaw string
			created        string
		)
		if err := rows.Scan(&turn.ID, &turn.EvaluationID, &turn.UserID, &role, &phaseRaw, &turn.Content, &created); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		turn.Role = history.Role(role)
		turn.Phase = phase.Phase(phaseRaw)
		turn.CreatedAt = parseTime(created)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
