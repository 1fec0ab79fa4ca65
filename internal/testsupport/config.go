package testsupport

import (
	"path/filepath"
	"testing"

	"sitegrade/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ReportDir = filepath.Join(base, "reports")
	cfgVal.Paths.ScreenshotDir = filepath.Join(base, "screenshots")
	cfgVal.Database.Driver = config.DriverSQLite
	cfgVal.Database.Path = filepath.Join(base, "data", "sitegrade.db")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPricing overrides the per-action prices.
func WithPricing(evaluation, chat, report string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pricing.Evaluation = evaluation
		b.cfg.Pricing.ChatMessage = chat
		b.cfg.Pricing.Report = report
	}
}

// WithStartingBalance sets the balance new accounts receive.
func WithStartingBalance(balance string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.StartingBalance = balance
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithRecommendationTimeouts shortens the recommendation timeouts for tests.
func WithRecommendationTimeouts(taskSeconds, streamSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Recommendations.TaskTimeoutSeconds = taskSeconds
		b.cfg.Recommendations.StreamTimeoutSeconds = streamSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
