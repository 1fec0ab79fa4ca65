package store

import (
	"context"
	"fmt"

	"sitegrade/internal/history"
)

const reportColumns = "id, evaluation_id, user_id, format, path, bytes, created_at"

// SaveReport records a generated report file.
func (s *Store) SaveReport(ctx context.Context, report history.Report) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.EvaluationID,
		report.UserID,
		report.Format,
		report.Path,
		report.Bytes,
		formatTime(report.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ListReports returns reports generated for an evaluation, newest first.
func (s *Store) ListReports(ctx context.Context, userID, evaluationID string) ([]history.Report, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+reportColumns+" FROM reports WHERE user_id = ? AND evaluation_id = ? ORDER BY seq DESC",
		userID, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []history.Report
	for rows.Next() {
		var (
			report  history.Report
			created string
		)
		if err := rows.Scan(&report.ID, &report.EvaluationID, &report.UserID, &report.Format,
			&report.Path, &report.Bytes, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		report.CreatedAt = parseTime(created)
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
