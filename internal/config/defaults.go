package config

import "time"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Status: "watching the gears turn",
		},
		Data: DataConfig{
			Dir:           "./data",
			WatchExternal: false,
		},
		Automation: AutomationConfig{
			MaxTriggerDepth: 5,
			FlushInterval:   30 * time.Second,
			DefaultCooldown: 0,
		},
		Registry: RegistryConfig{
			EnforceDependencies: true,
			EnforceConflicts:    true,
		},
		Quota: QuotaConfig{
			Enabled: true,
			Rules: []QuotaRule{
				{Pattern: "*", Max: 30, Window: time.Minute},
			},
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:        true,
			Addr:           "127.0.0.1:9480",
			CheckInterval:  time.Minute,
			AlertThreshold: 3,
		},
		Market: MarketConfig{
			BaseURL:    "https://market.gearbox.dev/api/v1",
			InstallDir: "./extensions",
			Timeout:    30 * time.Second,
		},
		History: HistoryConfig{
			Path:      "./data/history.db",
			Retention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
