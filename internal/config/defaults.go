package config

const (
	defaultConfigPath                 = "~/.config/sitegrade/config.toml"
	defaultDataDir                    = "~/.local/share/sitegrade"
	defaultLogDir                     = "~/.local/share/sitegrade/logs"
	defaultReportDir                  = "~/.local/share/sitegrade/reports"
	defaultScreenshotDir              = "~/.local/share/sitegrade/screenshots"
	defaultAPIBind                    = "127.0.0.1:7490"
	defaultDatabaseDriver             = DriverSQLite
	defaultDatabaseFile               = "sitegrade.db"
	defaultMaxOpenConns               = 10
	defaultMaxIdleConns               = 5
	defaultConnMaxLifetime            = 300
	defaultLLMBaseURL                 = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                   = "google/gemini-3-flash-preview"
	defaultLLMReferer                 = "https://github.com/sitegrade/sitegrade"
	defaultLLMTitle                   = "sitegrade"
	defaultLLMTimeoutSeconds          = 60
	defaultCaptureAddress             = "127.0.0.1:50051"
	defaultCaptureTimeoutSeconds      = 90
	defaultPriceEvaluation            = "1.00"
	defaultPriceChatMessage           = "0.05"
	defaultPriceReport                = "0.50"
	defaultStartingBalance            = "5.00"
	defaultLowBalanceThreshold        = "1.00"
	defaultLedgerMaxRetries           = 8
	defaultCollaboratorTimeoutSeconds = 90
	defaultHistoryLimit               = 50
	defaultRecentUserTurns            = 5
	defaultSessionIdleMinutes         = 60
	defaultMaxConcurrency             = 5
	defaultTaskTimeoutSeconds         = 45
	defaultStreamTimeoutSeconds       = 120
	defaultMaxCompetitors             = 5
	defaultNotifyRequestTimeout       = 10
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			ReportDir:     defaultReportDir,
			ScreenshotDir: defaultScreenshotDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Database: Database{
			Driver:          defaultDatabaseDriver,
			MaxOpenConns:    defaultMaxOpenConns,
			MaxIdleConns:    defaultMaxIdleConns,
			ConnMaxLifetime: defaultConnMaxLifetime,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Capture: Capture{
			Address:        defaultCaptureAddress,
			TimeoutSeconds: defaultCaptureTimeoutSeconds,
		},
		Pricing: Pricing{
			Evaluation:  defaultPriceEvaluation,
			ChatMessage: defaultPriceChatMessage,
			Report:      defaultPriceReport,
		},
		Ledger: Ledger{
			StartingBalance:     defaultStartingBalance,
			LowBalanceThreshold: defaultLowBalanceThreshold,
			MaxRetries:          defaultLedgerMaxRetries,
		},
		Workflow: Workflow{
			CollaboratorTimeout: defaultCollaboratorTimeoutSeconds,
			HistoryLimit:        defaultHistoryLimit,
			RecentUserTurns:     defaultRecentUserTurns,
			SessionIdleMinutes:  defaultSessionIdleMinutes,
		},
		Recommendations: Recommendations{
			MaxConcurrency:       defaultMaxConcurrency,
			TaskTimeoutSeconds:   defaultTaskTimeoutSeconds,
			StreamTimeoutSeconds: defaultStreamTimeoutSeconds,
			MaxCompetitors:       defaultMaxCompetitors,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			EvaluationComplete: true,
			ReportReady:        true,
			LowBalance:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
