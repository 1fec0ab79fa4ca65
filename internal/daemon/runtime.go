package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sitegrade/internal/analysis"
	"sitegrade/internal/config"
	"sitegrade/internal/ledger"
	"sitegrade/internal/logging"
	"sitegrade/internal/notifications"
	"sitegrade/internal/report"
	"sitegrade/internal/services/capture"
	"sitegrade/internal/services/llm"
	"sitegrade/internal/store"
	"sitegrade/internal/workflow"
)

// Runtime holds the services shared by the daemon and local CLI commands.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Ledger   *ledger.Ledger
	Reports  *report.Service
	Notifier notifications.Service
	Manager  *workflow.Manager

	capture *capture.Client
}

// NewRuntime opens the store and wires every collaborator from cfg.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("runtime requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier := notifications.NewService(cfg)
	led := ledger.New(st, ledger.Options{
		StartingBalance:     cfg.StartingBalance(),
		LowBalanceThreshold: cfg.LowBalanceThreshold(),
		MaxRetries:          cfg.Ledger.MaxRetries,
		OnLowBalance:        workflow.LowBalanceHook(notifier, logger),
		Logger:              logger,
	})

	captureClient, err := capture.Dial(cfg.Capture.Address, cfg.CaptureTimeout())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	collaborators := analysis.NewLLM(llmClient, cfg.LLM.VisionModel)

	reports := report.NewService(st, led, report.Options{
		Dir:      cfg.Paths.ReportDir,
		Price:    cfg.Prices().Report,
		Notifier: notifier,
		Logger:   logger,
	})

	manager := workflow.NewManager(cfg, st, led, workflow.Collaborators{
		Capturer:    captureClient,
		Analyzer:    collaborators,
		Scorer:      collaborators,
		Advisor:     collaborators,
		Recommender: collaborators,
		Fetcher:     captureClient,
	},
		workflow.WithNotifier(notifier),
		workflow.WithReports(reports),
		workflow.WithLogger(logger),
		workflow.WithHealthProbe("store", st.Ping),
		workflow.WithHealthProbe("llm", llmKeyProbe(cfg)),
	)

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Ledger:   led,
		Reports:  reports,
		Notifier: notifier,
		Manager:  manager,
		capture:  captureClient,
	}, nil
}

// llmKeyProbe reports whether an API key is configured without spending a
// completion on it.
func llmKeyProbe(cfg *config.Config) workflow.HealthProbe {
	return func(context.Context) error {
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			return errors.New("llm api key not configured")
		}
		return nil
	}
}

// Close releases the capture connection and the store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if err := r.capture.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture: %w", err))
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
