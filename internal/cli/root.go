// Package cli implements the watchlogs command line.
package cli

import (
	"context"
	"fmt"

	"github.com/oicur0t/watchlogs/internal/app"
	"github.com/oicur0t/watchlogs/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "watchlogs",
		Short: "Follow JSON-lines log files",
		Long: `watchlogs follows JSON-lines log files, normalizes every record with
user-defined loggers, levels and field settings, and prints the merged
stream newest-last in the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	cmd.AddCommand(
		newTailCmd(opts),
		newDumpCmd(opts),
		newClearCmd(opts),
		newFilesCmd(opts),
		newLoggersCmd(opts),
		newLevelsCmd(opts),
		newSettingsCmd(opts),
		newFiltersCmd(opts),
	)
	return cmd
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// withApp loads the configuration, starts the application around fn and
// shuts it down afterwards
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("Failed to close preferences", zap.Error(err))
		}
	}()

	return a.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, a)
	})
}

// initLogger creates a configured zap logger
func initLogger(level string, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var loggerConfig zap.Config
	if format == "json" {
		loggerConfig = zap.NewProductionConfig()
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}

	loggerConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	return loggerConfig.Build()
}
