package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
	"github.com/harun/tablekeeper/pkg/decision"
	"github.com/harun/tablekeeper/pkg/domain"
	"github.com/harun/tablekeeper/pkg/executor"
)

var recommendFlags struct {
	session     string
	character   string
	turn        int
	location    string
	scene       string
	needs       []string
	npcsPresent int
	itemsNearby int
	apply       bool
	user        string
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <npc|treasure>",
	Short: "Ask a decision engine whether to introduce an NPC or treasure",
	Long: `Run the NPC or treasure decision engine for the current moment of a
session. With --apply an introduced recommendation is executed through the
tool executor.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"npc", "treasure"},
	RunE:      runRecommend,
}

func init() {
	f := recommendCmd.Flags()
	f.StringVar(&recommendFlags.session, "session", "", "session id")
	f.StringVar(&recommendFlags.character, "character", "", "character whose level and gold describe the party")
	f.IntVar(&recommendFlags.turn, "turn", 0, "current conversation turn")
	f.StringVar(&recommendFlags.location, "location", "", "where the party is")
	f.StringVar(&recommendFlags.scene, "scene", "", "free-text description of the scene")
	f.StringSliceVar(&recommendFlags.needs, "needs", nil, "party needs, e.g. healing,information")
	f.IntVar(&recommendFlags.npcsPresent, "npcs-present", 0, "NPCs already present when not tracked")
	f.IntVar(&recommendFlags.itemsNearby, "items-nearby", 0, "items already lying around")
	f.BoolVar(&recommendFlags.apply, "apply", false, "execute the recommended tool call")
	f.StringVar(&recommendFlags.user, "user", "", "user recorded when applying")
	_ = recommendCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	kind := strings.ToLower(args[0])
	if kind != "npc" && kind != "treasure" {
		return fmt.Errorf("unknown engine: %s (must be npc or treasure)", args[0])
	}
	if recommendFlags.apply && recommendFlags.character == "" {
		return fmt.Errorf("--apply needs --character")
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		engine := a.NPCEngine()
		if kind == "treasure" {
			engine = a.TreasureEngine()
		}

		in := decision.Input{
			SessionID:   recommendFlags.session,
			CharacterID: recommendFlags.character,
			CurrentTurn: recommendFlags.turn,
			Location:    recommendFlags.location,
			Scene:       recommendFlags.scene,
			Needs:       recommendFlags.needs,
			NPCsPresent: recommendFlags.npcsPresent,
			ItemsNearby: recommendFlags.itemsNearby,
		}
		if recommendFlags.character != "" {
			c, err := a.Store().Characters().Get(ctx, recommendFlags.character)
			if err != nil {
				return fmt.Errorf("failed to load character: %w", err)
			}
			in.PartyLevel = c.Level
			in.PartyGold = c.Gold
		}

		rec, err := engine.Recommend(ctx, in)
		if err != nil {
			return err
		}

		out := map[string]interface{}{"recommendation": rec}
		var applied *executor.Result
		if recommendFlags.apply && rec.ToolCall != nil {
			res := a.Executor().Execute(ctx, rec.ToolCall.ToolName, rec.ToolCall.Parameters, executor.Options{
				SessionID:        recommendFlags.session,
				CharacterID:      recommendFlags.character,
				UserID:           recommendFlags.user,
				Reasoning:        strings.Join(rec.Reasoning, "; "),
				ConversationTurn: recommendFlags.turn,
				TriggerSource:    domain.TriggerAI,
			})
			applied = &res
			out["result"] = res
		}

		if err := printJSON(cmd, out); err != nil {
			return err
		}
		if applied != nil {
			return applied.Err()
		}
		return nil
	})
}
