// Package container provides dependency injection and lifecycle management
// for the expense approval engine following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database   DatabaseConfig
	Lark       LarkConfig
	Storage    StorageConfig
	Server     ServerConfig
	Escalation EscalationConfig
	Workflows  WorkflowsConfig
	Dispatcher DispatcherConfig
	Tracing    TracingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration

	// MigrationsDir overrides the migrations compiled into the binary
	MigrationsDir string
}

// LarkConfig holds Lark API settings. When disabled, notifications are
// only logged.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
	BaseURL   string
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// ReportsDir is the base directory for exported reports
	ReportsDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// EscalationConfig holds escalation sweep settings.
type EscalationConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
}

// WorkflowsConfig holds workflow seed settings. Seed files in SeedDir are
// imported on start; with Watch they are re-imported when they change.
type WorkflowsConfig struct {
	SeedDir string
	Watch   bool
}

// DispatcherConfig holds event dispatcher settings.
type DispatcherConfig struct {
	HandlerTimeout time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OutputPath     string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approval.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Storage: StorageConfig{
			ReportsDir: "data",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Escalation: EscalationConfig{
			Enabled:      true,
			PollInterval: 15 * time.Minute,
			BatchSize:    500,
		},
		Dispatcher: DispatcherConfig{
			HandlerTimeout: 30 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "expense-approval",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
	}

	if c.Storage.ReportsDir == "" {
		return fmt.Errorf("storage.reports_dir is required")
	}

	if c.Escalation.Enabled && c.Escalation.PollInterval <= 0 {
		return fmt.Errorf("escalation.poll_interval must be positive")
	}
	if c.Escalation.BatchSize < 0 {
		return fmt.Errorf("escalation.batch_size must not be negative")
	}

	if c.Workflows.Watch && c.Workflows.SeedDir == "" {
		return fmt.Errorf("workflows.seed_dir is required when watching")
	}

	return nil
}
