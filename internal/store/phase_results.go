package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"sitegrade/internal/history"
	"sitegrade/internal/phase"
	"sitegrade/internal/validator"
)

const phaseResultColumns = "id, evaluation_id, user_id, phase, narrative, metrics_json, ratings_json, score, screenshot_ref, error_message, created_at"

func scanPhaseResult(scanner rowScanner) (history.PhaseResult, error) {
	var (
		result     history.PhaseResult
		phaseRaw   string
		metricsRaw string
		ratingsRaw sql.NullString
		score      sql.NullFloat64
		screenshot sql.NullString
		errMsg     sql.NullString
		created    string
	)
	if err := scanner.Scan(&result.ID, &result.EvaluationID, &result.UserID, &phaseRaw, &result.Narrative,
		&metricsRaw, &ratingsRaw, &score, &screenshot, &errMsg, &created); err != nil {
		return history.PhaseResult{}, err
	}
	metrics, err := decodeValue(metricsRaw)
	if err != nil {
		return history.PhaseResult{}, err
	}
	if ratingsRaw.Valid && ratingsRaw.String != "" {
		var ratings []validator.MetricRating
		if err := json.Unmarshal([]byte(ratingsRaw.String), &ratings); err != nil {
			return history.PhaseResult{}, fmt.Errorf("decode ratings: %w", err)
		}
		result.Ratings = ratings
	}
	result.Phase = phase.Phase(phaseRaw)
	result.Metrics = metrics
	result.Score = floatPtr(score)
	result.ScreenshotRef = screenshot.String
	result.Error = errMsg.String
	result.CreatedAt = parseTime(created)
	return result, nil
}

func phaseResultInsert(result history.PhaseResult) (string, []any, error) {
	metrics, err := encodeValue(result.Metrics)
	if err != nil {
		return "", nil, err
	}
	var ratings any
	if len(result.Ratings) > 0 {
		data, err := json.Marshal(result.Ratings)
		if err != nil {
			return "", nil, fmt.Errorf("encode ratings: %w", err)
		}
		ratings = string(data)
	}
	return `INSERT INTO phase_results (` + phaseResultColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		[]any{
			result.ID,
			result.EvaluationID,
			result.UserID,
			string(result.Phase),
			result.Narrative,
			metrics,
			ratings,
			nullableFloat(result.Score),
			nullableString(result.ScreenshotRef),
			nullableString(result.Error),
			formatTime(result.CreatedAt),
		}, nil
}

// AppendPhaseResult durably records a phase outcome on its own. Error-tagged
// attempts use it; successful phases go through RecordPhase.
func (s *Store) AppendPhaseResult(ctx context.Context, result history.PhaseResult) error {
	query, args, err := phaseResultInsert(result)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx, query, args...); err != nil {
		return fmt.Errorf("insert phase result %s/%s: %w", result.EvaluationID, result.Phase, err)
	}
	return nil
}

// RecordPhase stores a phase result and the turns it produced in one
// transaction.
func (s *Store) RecordPhase(ctx context.Context, result history.PhaseResult, turns ...history.Turn) error {
	ctx = ensureContext(ctx)
	query, args, err := phaseResultInsert(result)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert phase result %s/%s: %w", result.EvaluationID, result.Phase, err)
		}
		return insertTurns(ctx, tx, turns...)
	})
}

// ListPhaseResults returns one evaluation's results in the order recorded.
func (s *Store) ListPhaseResults(ctx context.Context, userID, evaluationID string) ([]history.PhaseResult, error) {
	return s.queryPhaseResults(ctx,
		"SELECT "+phaseResultColumns+" FROM phase_results WHERE user_id = ? AND evaluation_id = ? ORDER BY seq",
		userID, evaluationID)
}

// ListPhaseResultsByUser returns every result recorded for a user across
// evaluations, oldest first.
func (s *Store) ListPhaseResultsByUser(ctx context.Context, userID string) ([]history.PhaseResult, error) {
	return s.queryPhaseResults(ctx,
		"SELECT "+phaseResultColumns+" FROM phase_results WHERE user_id = ? ORDER BY seq", userID)
}

func (s *Store) queryPhaseResults(ctx context.Context, query string, args ...any) ([]history.PhaseResult, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list phase results: %w", err)
	}
	defer rows.Close()

	var results []history.PhaseResult
	for rows.Next() {
		result, err := scanPhaseResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
