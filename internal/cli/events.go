package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
)

var eventsFlags struct {
	session string
	count   int
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow a session's events",
	Long: `Print a session's events as JSON lines while they are published by any
tablekeeper process sharing the redis events backend. Runs until
interrupted, or until --count events have been printed.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsFlags.session, "session", "", "session id")
	eventsCmd.Flags().IntVar(&eventsFlags.count, "count", 0, "exit after this many events (0 follows forever)")
	_ = eventsCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		ch, cleanup, err := a.Follow(ctx, eventsFlags.session)
		if err != nil {
			return err
		}
		defer cleanup()
		zerolog.Ctx(ctx).Info().Str("session_id", eventsFlags.session).Msg("Following events")

		enc := json.NewEncoder(cmd.OutOrStdout())
		printed := 0
		for ev := range ch {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			printed++
			if eventsFlags.count > 0 && printed >= eventsFlags.count {
				return nil
			}
		}
		return nil
	})
}
