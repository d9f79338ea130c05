package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
	"github.com/harun/tablekeeper/pkg/domain"
)

var pendingFlags struct {
	session  string
	status   string
	reviewer string
	reason   string
	asJSON   bool
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Review actions waiting for player approval",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending actions of a session",
	RunE:  runPendingList,
}

var pendingApproveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve and execute a pending action",
	Args:  cobra.ExactArgs(1),
	RunE:  runPendingApprove,
}

var pendingRejectCmd = &cobra.Command{
	Use:   "reject <action-id>",
	Short: "Reject a pending action",
	Args:  cobra.ExactArgs(1),
	RunE:  runPendingReject,
}

var pendingBatchApproveCmd = &cobra.Command{
	Use:   "batch-approve <action-id>...",
	Short: "Approve several actions in batch order, stopping at the first failure",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPendingBatchApprove,
}

func init() {
	pendingListCmd.Flags().StringVar(&pendingFlags.session, "session", "", "session id")
	pendingListCmd.Flags().StringVar(&pendingFlags.status, "status", string(domain.StatusPending), "status filter, empty for all")
	pendingListCmd.Flags().BoolVar(&pendingFlags.asJSON, "json", false, "print JSON")
	_ = pendingListCmd.MarkFlagRequired("session")

	for _, c := range []*cobra.Command{pendingApproveCmd, pendingRejectCmd, pendingBatchApproveCmd} {
		c.Flags().StringVar(&pendingFlags.reviewer, "reviewer", "", "who reviews the action")
		_ = c.MarkFlagRequired("reviewer")
	}
	pendingRejectCmd.Flags().StringVar(&pendingFlags.reason, "reason", "", "why the action is rejected")

	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingApproveCmd)
	pendingCmd.AddCommand(pendingRejectCmd)
	pendingCmd.AddCommand(pendingBatchApproveCmd)
	rootCmd.AddCommand(pendingCmd)
}

func runPendingList(cmd *cobra.Command, args []string) error {
	status := domain.PendingStatus(pendingFlags.status)
	if status != "" && !status.IsValid() {
		return fmt.Errorf("unknown status: %s", pendingFlags.status)
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		views, err := a.Workflow().List(ctx, pendingFlags.session, status)
		if err != nil {
			return err
		}
		if pendingFlags.asJSON {
			return printJSON(cmd, views)
		}
		if len(views) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending actions.")
			return nil
		}
		for _, v := range views {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s %-8s %s\n", v.ID, v.Status, formatDuration(v.TimeRemaining), v.Description)
		}
		return nil
	})
}

func runPendingApprove(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		action, res, err := a.Workflow().Approve(ctx, args[0], pendingFlags.reviewer)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, map[string]interface{}{"action": action, "result": res}); err != nil {
			return err
		}
		return res.Err()
	})
}

func runPendingReject(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		action, err := a.Workflow().Reject(ctx, args[0], pendingFlags.reviewer, pendingFlags.reason)
		if err != nil {
			return err
		}
		return printJSON(cmd, action)
	})
}

func runPendingBatchApprove(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		outcomes, err := a.Workflow().BatchApprove(ctx, args, pendingFlags.reviewer)
		if err != nil {
			return err
		}
		if err := printJSON(cmd, outcomes); err != nil {
			return err
		}
		for _, o := range outcomes {
			if !o.Succeeded() {
				return fmt.Errorf("batch approval stopped after %d of %d actions", len(outcomes), len(args))
			}
		}
		return nil
	})
}
