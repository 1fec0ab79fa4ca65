package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sitegrade/internal/history"
	"sitegrade/internal/services"
)

const evaluationColumns = "id, user_id, url, metrics_json, screenshot_ref, created_at"

const defaultEvaluationLimit = 50

func scanEvaluation(scanner rowScanner) (history.Evaluation, error) {
	var (
		eval       history.Evaluation
		metricsRaw string
		screenshot sql.NullString
		created    string
	)
	if err := scanner.Scan(&eval.ID, &eval.UserID, &eval.URL, &metricsRaw, &screenshot, &created); err != nil {
		return history.Evaluation{}, err
	}
	metrics, err := decodeValue(metricsRaw)
	if err != nil {
		return history.Evaluation{}, err
	}
	eval.Metrics = metrics
	eval.ScreenshotRef = screenshot.String
	eval.CreatedAt = parseTime(created)
	return eval, nil
}

func evaluationInsert(eval history.Evaluation) (string, []any, error) {
	metrics, err := encodeValue(eval.Metrics)
	if err != nil {
		return "", nil, err
	}
	return `INSERT INTO evaluations (` + evaluationColumns + `) VALUES (?, ?, ?, ?, ?, ?)`,
		[]any{
			eval.ID,
			eval.UserID,
			eval.URL,
			metrics,
			nullableString(eval.ScreenshotRef),
			formatTime(eval.CreatedAt),
		}, nil
}

// CreateEvaluation persists a new evaluation and its captured metrics.
func (s *Store) CreateEvaluation(ctx context.Context, eval history.Evaluation) error {
	query, args, err := evaluationInsert(eval)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("insert evaluation %s: %w", eval.ID, err)
	}
	return nil
}

// StartEvaluation records a new evaluation together with its opening turn.
// Neither row is stored unless both are.
func (s *Store) StartEvaluation(ctx context.Context, eval history.Evaluation, opening history.Turn) error {
	ctx = ensureContext(ctx)
	query, args, err := evaluationInsert(eval)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert evaluation %s: %w", eval.ID, err)
		}
		return insertTurns(ctx, tx, opening)
	})
}

// GetEvaluation loads one evaluation owned by userID.
func (s *Store) GetEvaluation(ctx context.Context, userID, id string) (history.Evaluation, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+evaluationColumns+" FROM evaluations WHERE id = ? AND user_id = ?", id, userID)
	eval, err := scanEvaluation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Evaluation{}, services.Wrap(services.ErrNotFound, "store", "get evaluation", id, nil)
	}
	if err != nil {
		return history.Evaluation{}, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	return eval, nil
}

// ListEvaluations returns a user's evaluations, newest first.
func (s *Store) ListEvaluations(ctx context.Context, userID string, limit int) ([]history.Evaluation, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+evaluationColumns+" FROM evaluations WHERE user_id = ? ORDER BY seq DESC LIMIT ?",
		userID, clampLimit(limit, defaultEvaluationLimit))
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []history.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		evals = append(evals, eval)
	}
	return evals, rows.Err()
}
