package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/notifications"
	"sitegrade/internal/services"
)

// Repository is the persisted history the service reads and appends to.
type Repository interface {
	GetEvaluation(ctx context.Context, userID, id string) (history.Evaluation, error)
	ListPhaseResults(ctx context.Context, userID, evaluationID string) ([]history.PhaseResult, error)
	SaveReport(ctx context.Context, report history.Report) error
}

// Handle identifies a generated report file.
type Handle struct {
	ID           string    `json:"id"`
	EvaluationID string    `json:"evaluation_id"`
	UserID       string    `json:"user_id"`
	Format       Format    `json:"format"`
	Path         string    `json:"path"`
	Bytes        int64     `json:"bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Options configures a Service.
type Options struct {
	Dir      string
	Price    ledger.Credits
	Notifier notifications.Service
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Service renders and stores billed reports.
type Service struct {
	repo     Repository
	ledger   *ledger.Ledger
	dir      string
	price    ledger.Credits
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a report service.
func NewService(repo Repository, led *ledger.Ledger, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     repo,
		ledger:   led,
		dir:      opts.Dir,
		price:    opts.Price,
		notifier: opts.Notifier,
		logger:   logging.NewComponentLogger(opts.Logger, "report"),
		now:      now,
	}
}

// Generate renders the stored results of one evaluation. It fails with
// services.ErrValidation, before any reservation, when the evaluation has no
// completed phases.
func (s *Service) Generate(ctx context.Context, userID, evaluationID string, format Format) (Handle, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return Handle{}, err
	}
	eval, err := s.repo.GetEvaluation(ctx, userID, evaluationID)
	if err != nil {
		return Handle{}, err
	}
	results, err := s.repo.ListPhaseResults(ctx, userID, evaluationID)
	if err != nil {
		return Handle{}, services.Wrap(services.ErrStorage, "report", "list phase results", evaluationID, err)
	}
	if len(history.Completed(results)) == 0 {
		return Handle{}, services.Wrap(services.ErrValidation, "report", "generate", "evaluation has no completed phases", nil)
	}

	var handle Handle
	req := ledger.ReserveRequest{
		AccountID:    userID,
		EvaluationID: evaluationID,
		Action:       ledger.ActionReport,
		Amount:       s.price,
	}
	err = s.ledger.Charge(ctx, req, func(ctx context.Context, _ ledger.Reservation) error {
		var genErr error
		handle, genErr = s.write(ctx, eval, results, format)
		return genErr
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "report generation failed", "report_failed",
			logging.String(logging.FieldUserID, userID),
			logging.String(logging.FieldEvaluationID, evaluationID),
			logging.String("format", string(format)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry the report; the charge was refunded"),
		)
		return Handle{}, err
	}

	s.logger.Info("report generated",
		logging.String(logging.FieldUserID, userID),
		logging.String(logging.FieldEvaluationID, evaluationID),
		logging.String("format", string(format)),
		logging.String("path", handle.Path),
		logging.Int64("bytes", handle.Bytes),
		logging.String(logging.FieldEventType, "report_generated"),
	)
	if s.notifier != nil {
		payload := notifications.Payload{"url": eval.URL, "format": string(format), "path": handle.Path}
		if notifyErr := s.notifier.Publish(ctx, notifications.EventReportReady, payload); notifyErr != nil {
			s.logger.Debug("report notification failed", logging.Error(notifyErr))
		}
	}
	return handle, nil
}

func (s *Service) write(ctx context.Context, eval history.Evaluation, results []history.PhaseResult, format Format) (Handle, error) {
	now := s.now().UTC()
	doc := buildDocument(eval, results, now)
	data, err := Render(doc, format)
	if err != nil {
		return Handle{}, services.Wrap(services.ErrValidation, "report", "render", string(format), err)
	}

	dir := filepath.Join(s.dir, services.PathSegment(eval.UserID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Handle{}, services.Wrap(services.ErrStorage, "report", "create report dir", dir, err)
	}
	id := uuid.NewString()
	name := fmt.Sprintf("%s-%s%s", now.Format("20060102-150405"), id[:8], format.Extension())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Handle{}, services.Wrap(services.ErrStorage, "report", "write report", path, err)
	}

	record := history.Report{
		ID:           id,
		EvaluationID: eval.ID,
		UserID:       eval.UserID,
		Format:       string(format),
		Path:         path,
		Bytes:        int64(len(data)),
		CreatedAt:    now,
	}
	if err := s.repo.SaveReport(ctx, record); err != nil {
		_ = os.Remove(path)
		return Handle{}, services.Wrap(services.ErrStorage, "report", "save report", id, err)
	}
	return Handle{
		ID:           record.ID,
		EvaluationID: record.EvaluationID,
		UserID:       record.UserID,
		Format:       format,
		Path:         record.Path,
		Bytes:        record.Bytes,
		CreatedAt:    record.CreatedAt,
	}, nil
}
