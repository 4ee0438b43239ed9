package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/config"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/ondemand"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/server"
)

type windowFlags struct {
	start string
	end   string
}

func (f *windowFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "first date to walk (YYYY-MM-DD); defaults to end minus producer.lookback_days")
	cmd.Flags().StringVar(&f.end, "end", "", "last date to walk (YYYY-MM-DD); defaults to today (UTC)")
}

// resolve returns the inclusive date window the flags describe.
func (f *windowFlags) resolve(now time.Time, lookbackDays int) (time.Time, time.Time, error) {
	end := now.UTC()
	if f.end != "" {
		parsed, err := locator.ParseDate(f.end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}
	start, end := locator.Window(end, lookbackDays)
	if f.start != "" {
		parsed, err := locator.ParseDate(f.start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is after end %s",
			start.Format(locator.DateLayout), end.Format(locator.DateLayout))
	}
	return start, end, nil
}

func newProduceCmd() *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publishes every match in a date window to the matches topic",
		Long: `Walks every configured gender and division for each date in the window
and publishes the normalised matches. Requires queue.provider=pubsub; the
in-memory broker has no consumers outside "run" and "serve".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if err := requireExternalQueue(rt.cfg); err != nil {
				return err
			}
			return withApp(cmd, func(app *server.App, _ *runtime) error {
				start, end, err := window.resolve(time.Now(), rt.cfg.Producer.LookbackDays)
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				summary, err := app.Producer().RunBatch(ctx, start, end)
				if err != nil {
					return fmt.Errorf("produce: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	window.bind(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	var window windowFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs produce, detect and write in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *server.App, rt *runtime) error {
				start, end, err := window.resolve(time.Now(), rt.cfg.Producer.LookbackDays)
				if err != nil {
					return err
				}
				rt.logger.Info("pipeline run starting",
					zap.String("start", start.Format(locator.DateLayout)),
					zap.String("end", end.Format(locator.DateLayout)),
				)
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				report, err := app.RunPipeline(ctx, start, end)
				if err != nil {
					return fmt.Errorf("run pipeline: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	window.bind(cmd)
	return cmd
}

func newFetchCmd() *cobra.Command {
	var req ondemand.Request
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches one scoreboard and prints the on-demand response",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(app *server.App, _ *runtime) error {
				return printJSON(cmd.OutOrStdout(), app.OnDemand().Handle(cmd.Context(), req))
			})
		},
	}
	cmd.Flags().StringVar(&req.Gender, "gender", "", "male or female")
	cmd.Flags().StringVar(&req.Division, "division", "", "d1, d2 or d3")
	cmd.Flags().StringVar(&req.TargetDate, "date", "", "target date (YYYY-MM-DD)")
	return cmd
}

// requireExternalQueue rejects the in-memory broker, which has no consumers
// outside the process and would drop or block on every published record.
func requireExternalQueue(cfg config.Config) error {
	if cfg.Queue.Provider != config.ProviderPubSub {
		return fmt.Errorf("produce requires queue.provider=%s (got %q); use \"run\" for the in-memory pipeline",
			config.ProviderPubSub, cfg.Queue.Provider)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
