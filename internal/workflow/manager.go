package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitegrade/internal/analysis"
	"sitegrade/internal/config"
	"sitegrade/internal/history"
	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/notifications"
	"sitegrade/internal/recommend"
	"sitegrade/internal/report"
	"sitegrade/internal/snapshot"
)

// Capturer produces the raw snapshot for a URL.
type Capturer interface {
	CaptureMetrics(ctx context.Context, url string) (snapshot.Value, error)
	Screenshot(ctx context.Context, url string) ([]byte, error)
}

// Repository is the durable history the manager appends to. StartEvaluation,
// RecordPhase and AppendTurns are all-or-nothing.
type Repository interface {
	StartEvaluation(ctx context.Context, eval history.Evaluation, opening history.Turn) error
	AppendPhaseResult(ctx context.Context, result history.PhaseResult) error
	RecordPhase(ctx context.Context, result history.PhaseResult, turns ...history.Turn) error
	AppendTurns(ctx context.Context, turns ...history.Turn) error
}

// ReportGenerator renders billed reports from persisted history.
type ReportGenerator interface {
	Generate(ctx context.Context, userID, evaluationID string, format report.Format) (report.Handle, error)
}

// Collaborators bundles the external services a session calls.
type Collaborators struct {
	Capturer    Capturer
	Analyzer    analysis.Analyzer
	Scorer      analysis.Scorer
	Advisor     analysis.Advisor
	Recommender recommend.Source
	Fetcher     recommend.Fetcher
}

// Manager coordinates live evaluation sessions.
type Manager struct {
	cfg      *config.Config
	repo     Repository
	ledger   *ledger.Ledger
	collab   Collaborators
	reports  ReportGenerator
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
	probes   map[string]HealthProbe

	mu       sync.RWMutex
	sessions map[string]*session
	byUser   map[string]string
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	notifier notifications.Service
	reports  ReportGenerator
	logger   *slog.Logger
	clock    func() time.Time
	probes   map[string]HealthProbe
}

// WithNotifier overrides the notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(o *managerOptions) {
		o.notifier = notifier
	}
}

// WithReports sets the report generator used by GenerateReport.
func WithReports(reports ReportGenerator) ManagerOption {
	return func(o *managerOptions) {
		o.reports = reports
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// WithClock overrides time.Now, for idle expiry tests.
func WithClock(clock func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		o.clock = clock
	}
}

// WithHealthProbe registers a named readiness check reported by Status.
func WithHealthProbe(name string, probe HealthProbe) ManagerOption {
	return func(o *managerOptions) {
		if o.probes == nil {
			o.probes = make(map[string]HealthProbe)
		}
		o.probes[name] = probe
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, repo Repository, led *ledger.Ledger, collab Collaborators, opts ...ManagerOption) *Manager {
	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}
	notifier := options.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	now := options.clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		repo:     repo,
		ledger:   led,
		collab:   collab,
		reports:  options.reports,
		notifier: notifier,
		logger:   logging.NewComponentLogger(options.logger, "workflow"),
		now:      now,
		probes:   options.probes,
		sessions: make(map[string]*session),
		byUser:   make(map[string]string),
	}
}
