package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
	"github.com/harun/tablekeeper/internal/config"
)

var sweepFlags struct {
	watch       bool
	metricsAddr string
	noReload    bool
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending actions whose approval window has passed",
	Long: `Expire overdue pending actions once, or with --watch keep running the
expiry sweep on the configured schedule until interrupted. --metrics-addr
also serves Prometheus metrics at /metrics while watching. Edits to the
config file's approval window and sweep schedule are applied while
watching, unless --no-reload is given.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepFlags.watch, "watch", false, "keep sweeping on the configured schedule")
	sweepCmd.Flags().StringVar(&sweepFlags.metricsAddr, "metrics-addr", "", "serve /metrics on this address while watching")
	sweepCmd.Flags().BoolVar(&sweepFlags.noReload, "no-reload", false, "ignore config file changes while watching")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if !sweepFlags.watch {
			n, err := a.Workflow().SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d pending action(s).\n", n)
			return nil
		}

		if sweepFlags.metricsAddr != "" {
			a.Config().Metrics.Enabled = true
			a.Config().Metrics.Addr = sweepFlags.metricsAddr
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Start(); err != nil {
			return err
		}
		if !sweepFlags.noReload {
			stopWatch, err := watchConfig(ctx, a)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("Config reload disabled")
			} else {
				defer stopWatch()
			}
		}
		zerolog.Ctx(ctx).Info().Msg("Watching for expired actions, press Ctrl+C to stop")

		<-ctx.Done()
		return a.Stop(context.Background())
	})
}

// watchConfig reloads the approval settings of a whenever the config file
// changes.
func watchConfig(ctx context.Context, a *app.App) (func(), error) {
	path := config.NewLoader(cfgFile).GetConfigPath()
	if path == "" {
		return nil, fmt.Errorf("no config path")
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("config directory unavailable: %w", err)
	}

	log := zerolog.Ctx(ctx)
	w, err := config.NewWatcher(path, 0, func(cfg *config.Config) {
		if err := a.Reload(cfg); err != nil {
			log.Warn().Err(err).Msg("Config change rejected")
		}
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return nil, err
	}
	return func() { _ = w.Stop() }, nil
}
