// Package cli implements approvalctl, the operator command line for the
// expense approval engine. Commands open the same database as the server
// and run against the application services directly.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/container"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// Version is set at build time
var Version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "approvalctl",
	Short:         "Operate the expense approval engine",
	Long:          "Runs escalation sweeps, imports workflow seeds, previews approval chains and exports approval reports against the engine's database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("APPROVAL_CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for diagnostics on stderr")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openContainer starts a container without background workers or seed
// import; commands trigger that work explicitly.
func openContainer(ctx context.Context) (*container.Container, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      logLevel,
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cc := cfg.ToContainerConfig(Version)
	cc.Escalation.Enabled = false
	cc.Workflows.Watch = false
	cc.Workflows.SeedDir = ""
	cc.Tracing.Enabled = false

	c, err := container.NewContainer(cc, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := c.Close(); err != nil {
			logger.Warn("Container close failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return c, closeFn, nil
}
