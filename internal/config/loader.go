package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingRequired = errors.New("missing required configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "GEARBOX"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("gearbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gearbox")
		v.AddConfigPath("/etc/gearbox")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("bot.token", cfg.Bot.Token)
	v.SetDefault("bot.intents", cfg.Bot.Intents)
	v.SetDefault("bot.status", cfg.Bot.Status)

	v.SetDefault("data.dir", cfg.Data.Dir)
	v.SetDefault("data.watch_external", cfg.Data.WatchExternal)

	v.SetDefault("automation.max_trigger_depth", cfg.Automation.MaxTriggerDepth)
	v.SetDefault("automation.flush_interval", cfg.Automation.FlushInterval)
	v.SetDefault("automation.default_cooldown", cfg.Automation.DefaultCooldown)

	v.SetDefault("registry.enforce_dependencies", cfg.Registry.EnforceDependencies)
	v.SetDefault("registry.enforce_conflicts", cfg.Registry.EnforceConflicts)

	v.SetDefault("quota.enabled", cfg.Quota.Enabled)
	// Quota rules have no flat defaults; the default rule set is applied in
	// Default() and overridden wholesale by the config file.

	v.SetDefault("diagnostics.enabled", cfg.Diagnostics.Enabled)
	v.SetDefault("diagnostics.addr", cfg.Diagnostics.Addr)
	v.SetDefault("diagnostics.check_interval", cfg.Diagnostics.CheckInterval)
	v.SetDefault("diagnostics.alert_threshold", cfg.Diagnostics.AlertThreshold)

	v.SetDefault("market.base_url", cfg.Market.BaseURL)
	v.SetDefault("market.license_key", cfg.Market.LicenseKey)
	v.SetDefault("market.install_dir", cfg.Market.InstallDir)
	v.SetDefault("market.timeout", cfg.Market.Timeout)

	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("history.retention", cfg.History.Retention)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}
