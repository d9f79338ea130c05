package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/internal/app"
)

var characterFlags struct {
	session string
	name    string
	maxHP   int
	level   int
	gold    int
}

var characterCmd = &cobra.Command{
	Use:   "character",
	Short: "Create and inspect character sheets",
}

var characterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a character in a session",
	RunE:  runCharacterCreate,
}

var characterShowCmd = &cobra.Command{
	Use:   "show <character-id>",
	Short: "Show a character sheet",
	Args:  cobra.ExactArgs(1),
	RunE:  runCharacterShow,
}

var characterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the characters of a session",
	RunE:  runCharacterList,
}

func init() {
	characterCreateCmd.Flags().StringVar(&characterFlags.session, "session", "", "session id")
	characterCreateCmd.Flags().StringVar(&characterFlags.name, "name", "", "character name")
	characterCreateCmd.Flags().IntVar(&characterFlags.maxHP, "hp", 10, "maximum hit points")
	characterCreateCmd.Flags().IntVar(&characterFlags.level, "level", 1, "starting level")
	characterCreateCmd.Flags().IntVar(&characterFlags.gold, "gold", 0, "starting gold")
	_ = characterCreateCmd.MarkFlagRequired("session")
	_ = characterCreateCmd.MarkFlagRequired("name")

	characterListCmd.Flags().StringVar(&characterFlags.session, "session", "", "session id")
	_ = characterListCmd.MarkFlagRequired("session")

	characterCmd.AddCommand(characterCreateCmd)
	characterCmd.AddCommand(characterShowCmd)
	characterCmd.AddCommand(characterListCmd)
	rootCmd.AddCommand(characterCmd)
}

func runCharacterCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		c, err := a.CreateCharacter(ctx, app.CharacterSpec{
			SessionID: characterFlags.session,
			Name:      characterFlags.name,
			MaxHP:     characterFlags.maxHP,
			Level:     characterFlags.level,
			Gold:      characterFlags.gold,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, c)
	})
}

func runCharacterShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		c, err := a.Store().Characters().Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load character: %w", err)
		}
		items, err := a.Store().Inventory().List(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load inventory: %w", err)
		}
		return printJSON(cmd, map[string]interface{}{
			"character": c,
			"inventory": items,
		})
	})
}

func runCharacterList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		characters, err := a.Store().Characters().ListBySession(ctx, characterFlags.session)
		if err != nil {
			return err
		}
		for _, c := range characters {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s lvl %-2d hp %d/%d gold %d\n",
				c.ID, c.Name, c.Level, c.CurrentHP, c.MaxHP, c.Gold)
		}
		return nil
	})
}
