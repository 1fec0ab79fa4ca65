package config

import (
	"errors"
	"fmt"
	"strings"

	"sitegrade/internal/credits"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateBilling(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverMySQL:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn must be set for the mysql driver (or set SITEGRADE_DATABASE_DSN)")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (use %q or %q)", c.Database.Driver, DriverSQLite, DriverMySQL)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	if err := ensurePositiveMap(map[string]int{
		"llm.timeout_seconds":                    c.LLM.TimeoutSeconds,
		"capture.timeout_seconds":                c.Capture.TimeoutSeconds,
		"workflow.collaborator_timeout_seconds":  c.Workflow.CollaboratorTimeout,
		"recommendations.task_timeout_seconds":   c.Recommendations.TaskTimeoutSeconds,
		"recommendations.stream_timeout_seconds": c.Recommendations.StreamTimeoutSeconds,
		"notifications.request_timeout":          c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Recommendations.StreamTimeoutSeconds <= c.Recommendations.TaskTimeoutSeconds {
		return errors.New("recommendations.stream_timeout_seconds must be greater than recommendations.task_timeout_seconds")
	}
	return nil
}

func (c *Config) validateBilling() error {
	prices := []struct {
		key   string
		value string
	}{
		{"pricing.evaluation", c.Pricing.Evaluation},
		{"pricing.chat_message", c.Pricing.ChatMessage},
		{"pricing.report", c.Pricing.Report},
		{"ledger.starting_balance", c.Ledger.StartingBalance},
		{"ledger.low_balance_threshold", c.Ledger.LowBalanceThreshold},
	}
	for _, p := range prices {
		amount, err := credits.Parse(p.value)
		if err != nil {
			return fmt.Errorf("%s: %w", p.key, err)
		}
		if amount < 0 {
			return fmt.Errorf("%s must be >= 0", p.key)
		}
	}
	if c.Ledger.MaxRetries < 1 {
		return errors.New("ledger.max_retries must be >= 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.HistoryLimit < 1 {
		return errors.New("workflow.history_limit must be >= 1")
	}
	if c.Workflow.RecentUserTurns < 0 {
		return errors.New("workflow.recent_user_turns must be >= 0")
	}
	if c.Workflow.RecentUserTurns > c.Workflow.HistoryLimit {
		return errors.New("workflow.recent_user_turns must not exceed workflow.history_limit")
	}
	if c.Workflow.SessionIdleMinutes < 0 {
		return errors.New("workflow.session_idle_minutes must be >= 0")
	}
	if c.Recommendations.MaxConcurrency < 1 {
		return errors.New("recommendations.max_concurrency must be >= 1")
	}
	if c.Recommendations.MaxCompetitors < 0 {
		return errors.New("recommendations.max_competitors must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DiscordToken != "" && c.Notifications.DiscordChannel == "" {
		return errors.New("notifications.discord_channel must be set when a discord token is configured")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
