package config

import (
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateData(&cfg.Data)...)
	errs = append(errs, validateAutomation(&cfg.Automation)...)
	errs = append(errs, validateQuota(&cfg.Quota)...)
	errs = append(errs, validateDiagnostics(&cfg.Diagnostics)...)
	errs = append(errs, validateMarket(&cfg.Market)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateData(cfg *DataConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "data.dir",
			Message: "must not be empty",
		})
	}

	if cfg.Backup != nil && cfg.Backup.Enabled {
		if cfg.Backup.Bucket == "" {
			errs = append(errs, ValidationError{
				Field:   "data.backup.bucket",
				Message: "required when backup is enabled",
			})
		}
		if cfg.Backup.Region == "" {
			errs = append(errs, ValidationError{
				Field:   "data.backup.region",
				Message: "required when backup is enabled",
			})
		}
	}

	return errs
}

func validateAutomation(cfg *AutomationConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxTriggerDepth < 1 {
		errs = append(errs, ValidationError{
			Field:   "automation.max_trigger_depth",
			Message: "must be at least 1",
		})
	}

	if cfg.FlushInterval < time.Second {
		errs = append(errs, ValidationError{
			Field:   "automation.flush_interval",
			Message: "must be at least 1s",
		})
	}

	if cfg.DefaultCooldown < 0 {
		errs = append(errs, ValidationError{
			Field:   "automation.default_cooldown",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateQuota(cfg *QuotaConfig) ValidationErrors {
	var errs ValidationErrors

	for i, rule := range cfg.Rules {
		if rule.Pattern == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("quota.rules[%d].pattern", i),
				Message: "must not be empty",
			})
		}
		if rule.Max < 1 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("quota.rules[%d].max", i),
				Message: "must be at least 1",
			})
		}
		if rule.Window < time.Second {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("quota.rules[%d].window", i),
				Message: "must be at least 1s",
			})
		}
	}

	return errs
}

func validateDiagnostics(cfg *DiagnosticsConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "diagnostics.addr",
			Message: "required when diagnostics are enabled",
		})
	}

	if cfg.CheckInterval < time.Second {
		errs = append(errs, ValidationError{
			Field:   "diagnostics.check_interval",
			Message: "must be at least 1s",
		})
	}

	if cfg.AlertThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "diagnostics.alert_threshold",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateMarket(cfg *MarketConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "market.base_url",
			Message: "must not be empty",
		})
	}

	if cfg.Timeout < time.Second {
		errs = append(errs, ValidationError{
			Field:   "market.timeout",
			Message: "must be at least 1s",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: trace, debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: console, json",
		})
	}

	return errs
}
