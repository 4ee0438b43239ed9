// Package cmd defines the CLI commands for the match pipeline executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/config"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/logging"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/server"
)

var cfgFile string

// runtimeKeyType is the key for storing the loaded runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what PersistentPreRunE hands to every subcommand.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory. It's a variable so tests can swap in
// memory-only wiring.
var newApp = server.Build

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Collects NCAA soccer scoreboards and stores match changes.",
		Long: `matches walks the NCAA scoreboard feed for every configured gender,
division and date, normalises each game into a match record, and forwards
new or changed records through the detector and writer stages.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); MATCHES_* env vars override it")

	cmd.AddCommand(
		newProduceCmd(),
		newRunCmd(),
		newFetchCmd(),
		newServeCmd(),
		newConsumeCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// withApp builds the application, hands it to fn and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(*server.App, *runtime) error) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), rt.cfg, rt.logger)
	if app != nil {
		defer app.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	return fn(app, rt)
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
