package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/approval.db", cfg.Database.Path)
	assert.Empty(t, cfg.Database.MigrationsDir)
	assert.False(t, cfg.Lark.Enabled)
	assert.True(t, cfg.Escalation.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Escalation.PollInterval)
	assert.Equal(t, 500, cfg.Escalation.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.HandlerTimeout)
	assert.Equal(t, "expense-approval", cfg.Tracing.ServiceName)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /tmp/approvals.db
escalation:
  poll_interval: 1m
workflows:
  seed_dir: ./workflows
  watch: true
lark:
  enabled: true
  app_id: cli_from_file
`)

	t.Setenv("APPROVAL_SERVER_PORT", "9191")
	t.Setenv("LARK_APP_SECRET", "secret-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/tmp/approvals.db", cfg.Database.Path)
	assert.Equal(t, time.Minute, cfg.Escalation.PollInterval)
	assert.True(t, cfg.Workflows.Watch)
	assert.Equal(t, "cli_from_file", cfg.Lark.AppID)
	assert.Equal(t, "secret-from-env", cfg.Lark.AppSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8080},
			Database:   DatabaseConfig{Path: "test.db"},
			Storage:    StorageConfig{ReportsDir: "reports"},
			Escalation: EscalationConfig{Enabled: true, PollInterval: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"lark without id", func(c *Config) { c.Lark.Enabled = true }, "lark.app_id"},
		{"lark without secret", func(c *Config) {
			c.Lark.Enabled = true
			c.Lark.AppID = "cli_x"
		}, "lark.app_secret"},
		{"no reports dir", func(c *Config) { c.Storage.ReportsDir = "" }, "storage.reports_dir"},
		{"zero poll interval", func(c *Config) { c.Escalation.PollInterval = 0 }, "escalation.poll_interval"},
		{"disabled escalation ignores interval", func(c *Config) {
			c.Escalation.Enabled = false
			c.Escalation.PollInterval = 0
		}, ""},
		{"watch without dir", func(c *Config) { c.Workflows.Watch = true }, "workflows.seed_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cc := cfg.ToContainerConfig("1.2.3")
	require.NoError(t, cc.Validate())
	assert.Equal(t, cfg.Database.Path, cc.Database.Path)
	assert.Equal(t, cfg.Escalation.BatchSize, cc.Escalation.BatchSize)
	assert.Equal(t, "1.2.3", cc.Tracing.ServiceVersion)

	sc := cfg.ToServerConfig()
	assert.Equal(t, cfg.Server.Port, sc.Port)
	assert.Equal(t, 10*time.Second, sc.ShutdownTimeout)

	assert.Equal(t, "json", cfg.ToLoggerConfig().Format)
}
