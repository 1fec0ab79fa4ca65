package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	ReportDir     string `toml:"report_dir"`
	ScreenshotDir string `toml:"screenshot_dir"`
}

// API contains the HTTP server bind address and bearer token.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Database selects and configures the durable store.
type Database struct {
	Driver string `toml:"driver"`
	// Path is the SQLite database file. Defaults to <data_dir>/sitegrade.db.
	Path string `toml:"path"`
	// DSN is the MySQL data source name, e.g. user:pass@tcp(host:3306)/sitegrade.
	DSN             string `toml:"dsn"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime int    `toml:"conn_max_lifetime_seconds"`
}

// LLM contains the chat-completions endpoint used by the analyzer, scorer,
// recommender, and chat collaborators.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	VisionModel    string `toml:"vision_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capture configures the browser-automation sidecar.
type Capture struct {
	Address        string `toml:"address"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pricing holds per-action charges as decimal strings.
type Pricing struct {
	Evaluation  string `toml:"evaluation"`
	ChatMessage string `toml:"chat_message"`
	Report      string `toml:"report"`
}

// Ledger configures account defaults and optimistic-concurrency retries.
type Ledger struct {
	StartingBalance     string `toml:"starting_balance"`
	LowBalanceThreshold string `toml:"low_balance_threshold"`
	MaxRetries          int    `toml:"max_retries"`
}

// Workflow configures the phase orchestrator.
type Workflow struct {
	CollaboratorTimeout int `toml:"collaborator_timeout_seconds"`
	HistoryLimit        int `toml:"history_limit"`
	RecentUserTurns     int `toml:"recent_user_turns"`
	// SessionIdleMinutes abandons live sessions with no activity; 0 keeps
	// them until replaced.
	SessionIdleMinutes int `toml:"session_idle_minutes"`
}

// Recommendations configures the streamed competitor comparison phase.
type Recommendations struct {
	MaxConcurrency       int `toml:"max_concurrency"`
	TaskTimeoutSeconds   int `toml:"task_timeout_seconds"`
	StreamTimeoutSeconds int `toml:"stream_timeout_seconds"`
	MaxCompetitors       int `toml:"max_competitors"`
}

// Notifications configures ntfy and Discord delivery.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	DiscordToken       string `toml:"discord_token"`
	DiscordChannel     string `toml:"discord_channel"`
	RequestTimeout     int    `toml:"request_timeout"`
	EvaluationComplete bool   `toml:"evaluation_complete"`
	ReportReady        bool   `toml:"report_ready"`
	LowBalance         bool   `toml:"low_balance"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sitegrade.
//
// Configuration sections by subsystem:
//   - Paths: data, log, report, and screenshot directories
//   - API: HTTP bind address and bearer token
//   - Database: sqlite or mysql store
//   - LLM: narrative, scoring, recommendation, and chat collaborators
//   - Capture: browser-automation sidecar
//   - Pricing, Ledger: billing
//   - Workflow, Recommendations: orchestration limits and timeouts
//   - Notifications: ntfy and Discord
//   - Logging: log format and level
type Config struct {
	Paths           Paths           `toml:"paths"`
	API             API             `toml:"api"`
	Database        Database        `toml:"database"`
	LLM             LLM             `toml:"llm"`
	Capture         Capture         `toml:"capture"`
	Pricing         Pricing         `toml:"pricing"`
	Ledger          Ledger          `toml:"ledger"`
	Workflow        Workflow        `toml:"workflow"`
	Recommendations Recommendations `toml:"recommendations"`
	Notifications   Notifications   `toml:"notifications"`
	Logging         Logging         `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file is
// loaded first so secrets can be supplied through the environment. The
// returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads SITEGRADE_ENV_FILE or ./.env without overriding variables
// already present in the environment. A missing file is not an error.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("SITEGRADE_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sitegrade.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ReportDir, c.Paths.ScreenshotDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sitegrade.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// CollaboratorTimeout bounds each analyzer, scorer, and chat call.
func (c *Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.Workflow.CollaboratorTimeout) * time.Second
}

// SessionIdleTimeout is how long a live session may sit unused.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.Workflow.SessionIdleMinutes) * time.Minute
}

// CaptureTimeout bounds each sidecar call.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutSeconds) * time.Second
}

// TaskTimeout is the per-competitor screenshot timeout.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Recommendations.TaskTimeoutSeconds) * time.Second
}

// StreamTimeout is the global Recommendations stream timeout.
func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.Recommendations.StreamTimeoutSeconds) * time.Second
}
