package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/executor"
)

var execFlags struct {
	session         string
	character       string
	user            string
	params          string
	reason          string
	turn            int
	skipApproval    bool
	requestApproval bool
	force           bool
	file            string
}

var execCmd = &cobra.Command{
	Use:   "exec <tool>",
	Short: "Execute one tool call",
	Long: `Execute one tool call against a character.
Tools that need player approval are queued and reported with their
pending action id instead of running.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Execute a sequence of tool calls",
	Long: `Execute the calls in a JSON file in order, stopping at the first failure.
The file holds an array of {"tool_name": ..., "parameters": {...}} objects;
use --file - to read it from stdin.`,
	RunE: runBatch,
}

func addCallFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&execFlags.session, "session", "", "session id")
	cmd.Flags().StringVar(&execFlags.character, "character", "", "character id")
	cmd.Flags().StringVar(&execFlags.user, "user", "", "requesting user")
	cmd.Flags().StringVar(&execFlags.reason, "reason", "", "why the call is made")
	cmd.Flags().IntVar(&execFlags.turn, "turn", 0, "conversation turn")
	cmd.Flags().BoolVar(&execFlags.skipApproval, "skip-approval", false, "run approval-required tools immediately")
	cmd.Flags().BoolVar(&execFlags.requestApproval, "request-approval", false, "queue the call for review")
	cmd.Flags().BoolVar(&execFlags.force, "force", false, "bypass the gameplay lock")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("character")
}

func init() {
	addCallFlags(execCmd)
	execCmd.Flags().StringVar(&execFlags.params, "params", "", "tool parameters as a JSON object")

	addCallFlags(batchCmd)
	batchCmd.Flags().StringVar(&execFlags.file, "file", "", "JSON file with the calls, - for stdin")
	_ = batchCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(batchCmd)
}

func callOptions() executor.Options {
	return executor.Options{
		SessionID:        execFlags.session,
		CharacterID:      execFlags.character,
		UserID:           execFlags.user,
		Reasoning:        execFlags.reason,
		ConversationTurn: execFlags.turn,
		SkipApproval:     execFlags.skipApproval,
		RequestApproval:  execFlags.requestApproval,
		Force:            execFlags.force,
		TriggerSource:    domain.TriggerAI,
	}
}

func runExec(cmd *cobra.Command, args []string) error {
	params, err := parseParams(execFlags.params)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res := a.Executor().Execute(ctx, args[0], params, callOptions())
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		return res.Err()
	})
}

func readCalls(path string, stdin io.Reader) ([]executor.BatchCall, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calls: %w", err)
	}

	var calls []executor.BatchCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("calls must be a JSON array: %w", err)
	}
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to execute")
	}
	return calls, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	calls, err := readCalls(execFlags.file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res := a.Executor().ExecuteBatch(ctx, calls, callOptions())
		if err := printJSON(cmd, res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("batch %s stopped after %d of %d calls", res.BatchID, len(res.Results), len(calls))
		}
		return nil
	})
}
