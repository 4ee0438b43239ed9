package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API together with the detector and writer stages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *server.App, _ *runtime) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return app.Serve(ctx)
			})
		},
	}
}

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Runs only the detector and writer stages",
		Long: `Subscribes the detector and both writers to their topics and blocks until
interrupted. Meant for queue.provider=pubsub deployments where producers run
elsewhere.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *server.App, _ *runtime) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				consumers, err := app.Consumers()
				if err != nil {
					return err
				}
				if err := consumers.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("consume: %w", err)
				}
				return nil
			})
		},
	}
}
