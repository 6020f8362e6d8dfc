// Package config provides configuration management for Gearbox.
package config

import (
	"time"
)

// Config is the root configuration structure for Gearbox.
type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	Data        DataConfig        `mapstructure:"data"`
	Automation  AutomationConfig  `mapstructure:"automation"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Quota       QuotaConfig       `mapstructure:"quota"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Market      MarketConfig      `mapstructure:"market"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// BotConfig holds chat-platform gateway settings.
type BotConfig struct {
	// Token authenticates the gateway session
	Token string `mapstructure:"token"`

	// Intents the gateway session subscribes to (platform bitmask)
	Intents int `mapstructure:"intents"`

	// Status text shown while the bot is online
	Status string `mapstructure:"status"`
}

// DataConfig holds document-store settings.
type DataConfig struct {
	// Dir is the directory holding the JSON documents
	Dir string `mapstructure:"dir"`

	// WatchExternal reloads documents edited outside the process
	WatchExternal bool `mapstructure:"watch_external"`

	// Backup configures optional S3 snapshot backups
	Backup *BackupConfig `mapstructure:"backup"`
}

// BackupConfig holds S3 snapshot backup settings.
type BackupConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

// AutomationConfig holds automation-engine settings.
type AutomationConfig struct {
	// MaxTriggerDepth bounds trigger_hook recursion
	MaxTriggerDepth int `mapstructure:"max_trigger_depth"`

	// FlushInterval is how often analytics are persisted
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// DefaultCooldown applies when a hook declares none (seconds)
	DefaultCooldown int `mapstructure:"default_cooldown"`
}

// RegistryConfig holds plugin-registry enforcement flags.
type RegistryConfig struct {
	// EnforceDependencies includes dependency issues in load validation
	EnforceDependencies bool `mapstructure:"enforce_dependencies"`

	// EnforceConflicts includes conflict issues in load validation
	EnforceConflicts bool `mapstructure:"enforce_conflicts"`
}

// QuotaConfig holds slash-command quota guard settings.
type QuotaConfig struct {
	Enabled bool        `mapstructure:"enabled"`
	Rules   []QuotaRule `mapstructure:"rules"`
}

// QuotaRule limits command invocations per user within a window.
type QuotaRule struct {
	// Pattern is a glob matched against the command name
	Pattern string `mapstructure:"pattern"`

	// Max invocations allowed per window
	Max int `mapstructure:"max"`

	// Window over which invocations are counted
	Window time.Duration `mapstructure:"window"`
}

// DiagnosticsConfig holds self-diagnostics settings.
type DiagnosticsConfig struct {
	// Enabled starts the admin HTTP server
	Enabled bool `mapstructure:"enabled"`

	// Addr is the admin server listen address
	Addr string `mapstructure:"addr"`

	// CheckInterval is how often health checks run
	CheckInterval time.Duration `mapstructure:"check_interval"`

	// AlertThreshold is the consecutive-failure count that escalates
	AlertThreshold int `mapstructure:"alert_threshold"`
}

// MarketConfig holds extension-marketplace client settings.
type MarketConfig struct {
	// BaseURL of the marketplace API
	BaseURL string `mapstructure:"base_url"`

	// LicenseKey is the EdDSA public key (PEM) verifying license tokens
	LicenseKey string `mapstructure:"license_key"`

	// InstallDir is where downloaded extensions are unpacked
	InstallDir string `mapstructure:"install_dir"`

	// Timeout for marketplace HTTP requests
	Timeout time.Duration `mapstructure:"timeout"`
}

// HistoryConfig holds execution-history store settings.
type HistoryConfig struct {
	// Path to the sqlite database file
	Path string `mapstructure:"path"`

	// Retention is how long execution rows are kept
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is "console" or "json"
	Format string `mapstructure:"format"`
}
