package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
	"github.com/harun/tablekeeper/pkg/audit"
)

var historyFlags struct {
	session    string
	limit      int
	rewindable bool
	asJSON     bool
	character  string
	turn       int
}

var rewindFlags struct {
	session string
	steps   int
	reason  string
	actor   string
	dryRun  bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the audit ledger of a session",
	RunE:  runHistory,
}

var historyStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show a character's tracked state as of a conversation turn",
	RunE:  runHistoryState,
}

var rewindCmd = &cobra.Command{
	Use:   "rewind",
	Short: "Undo the most recent executed actions of a session",
	Long: `Undo the last --steps executed actions of a session. Character
snapshots are restored to what they were before the oldest undone action
and the undone records are marked rolled back.`,
	RunE: runRewind,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.session, "session", "", "session id")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "number of records, 0 for all")
	historyCmd.Flags().BoolVar(&historyFlags.rewindable, "rewindable", false, "only executed records that rewind can undo")
	historyCmd.Flags().BoolVar(&historyFlags.asJSON, "json", false, "print JSON")
	_ = historyCmd.MarkFlagRequired("session")

	historyStateCmd.Flags().StringVar(&historyFlags.session, "session", "", "session id")
	historyStateCmd.Flags().StringVar(&historyFlags.character, "character", "", "character id")
	historyStateCmd.Flags().IntVar(&historyFlags.turn, "turn", 0, "conversation turn")
	_ = historyStateCmd.MarkFlagRequired("session")
	_ = historyStateCmd.MarkFlagRequired("character")

	rewindCmd.Flags().StringVar(&rewindFlags.session, "session", "", "session id")
	rewindCmd.Flags().IntVar(&rewindFlags.steps, "steps", 1, "number of executed actions to undo")
	rewindCmd.Flags().StringVar(&rewindFlags.reason, "reason", "", "recorded on the rolled back records")
	rewindCmd.Flags().StringVar(&rewindFlags.actor, "actor", "", "who asked for the rewind")
	rewindCmd.Flags().BoolVar(&rewindFlags.dryRun, "dry-run", false, "show the record the rewind would return to")
	_ = rewindCmd.MarkFlagRequired("session")

	historyCmd.AddCommand(historyStateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rewindCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		query := a.Ledger().History
		if historyFlags.rewindable {
			query = a.Ledger().RewindableActions
		}
		records, err := query(ctx, historyFlags.session, historyFlags.limit)
		if err != nil {
			return err
		}
		if historyFlags.asJSON {
			return printJSON(cmd, records)
		}
		for _, r := range records {
			line := fmt.Sprintf("%s  %s  turn %-3d %-11s %-20s",
				r.ID, r.CreatedAt.Local().Format(time.DateTime), r.ConversationTurn, r.ExecutionStatus, r.ToolName)
			if r.StateBefore != nil && r.StateAfter != nil {
				line += fmt.Sprintf(" gold %d->%d hp %d->%d",
					r.StateBefore.Gold, r.StateAfter.Gold, r.StateBefore.CurrentHP, r.StateAfter.CurrentHP)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	})
}

func runHistoryState(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		snap, ok, err := a.Ledger().StateAtTurn(ctx, historyFlags.session, historyFlags.character, historyFlags.turn)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no recorded state for %s through turn %d", historyFlags.character, historyFlags.turn)
		}
		return printJSON(cmd, snap)
	})
}

func runRewind(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if rewindFlags.dryRun {
			target, ok, err := a.Ledger().RewindTarget(ctx, rewindFlags.session, rewindFlags.steps-1)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("session %s has fewer than %d executed actions", rewindFlags.session, rewindFlags.steps)
			}
			return printJSON(cmd, target)
		}

		res, err := a.Ledger().Rewind(ctx, audit.RewindRequest{
			SessionID: rewindFlags.session,
			Steps:     rewindFlags.steps,
			Reason:    rewindFlags.reason,
			Actor:     rewindFlags.actor,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	})
}
