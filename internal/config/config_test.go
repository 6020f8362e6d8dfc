package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Automation.MaxTriggerDepth)
	assert.Equal(t, 30*time.Second, cfg.Automation.FlushInterval)
	assert.True(t, cfg.Registry.EnforceDependencies)
	assert.Equal(t, 3, cfg.Diagnostics.AlertThreshold)
	require.Len(t, cfg.Quota.Rules, 1)
	assert.Equal(t, "*", cfg.Quota.Rules[0].Pattern)

	// Defaults must validate on their own.
	require.NoError(t, Validate(cfg))
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gearbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bot:
  token: test-token
data:
  dir: /var/lib/gearbox
automation:
  max_trigger_depth: 3
logging:
  level: debug
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Bot.Token)
	assert.Equal(t, "/var/lib/gearbox", cfg.Data.Dir)
	assert.Equal(t, 3, cfg.Automation.MaxTriggerDepth)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Automation.FlushInterval)
	assert.Equal(t, "127.0.0.1:9480", cfg.Diagnostics.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gearbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  dir: ./data\n"), 0o644))

	t.Setenv("GEARBOX_BOT_TOKEN", "env-token")
	t.Setenv("GEARBOX_LOGGING_LEVEL", "warn")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Bot.Token)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gearbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bot:\n  token: ${TEST_GEARBOX_TOKEN}\n"), 0o644))

	t.Setenv("TEST_GEARBOX_TOKEN", "expanded-token")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-token", cfg.Bot.Token)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gearbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("automation:\n  max_trigger_depth: 0\n"), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "automation.max_trigger_depth")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty data dir", func(c *Config) { c.Data.Dir = "" }, "data.dir"},
		{"backup missing bucket", func(c *Config) {
			c.Data.Backup = &BackupConfig{Enabled: true, Region: "us-east-1"}
		}, "data.backup.bucket"},
		{"zero trigger depth", func(c *Config) { c.Automation.MaxTriggerDepth = 0 }, "automation.max_trigger_depth"},
		{"tiny flush interval", func(c *Config) { c.Automation.FlushInterval = time.Millisecond }, "automation.flush_interval"},
		{"empty quota pattern", func(c *Config) { c.Quota.Rules[0].Pattern = "" }, "quota.rules[0].pattern"},
		{"zero quota max", func(c *Config) { c.Quota.Rules[0].Max = 0 }, "quota.rules[0].max"},
		{"diagnostics without addr", func(c *Config) { c.Diagnostics.Addr = "" }, "diagnostics.addr"},
		{"empty market url", func(c *Config) { c.Market.BaseURL = "" }, "market.base_url"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_DisabledDiagnosticsSkipped(t *testing.T) {
	cfg := Default()
	cfg.Diagnostics.Enabled = false
	cfg.Diagnostics.Addr = ""
	cfg.Diagnostics.AlertThreshold = 0

	assert.NoError(t, Validate(cfg))
}
