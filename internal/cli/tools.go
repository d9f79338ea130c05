package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/handlers"
)

var (
	toolsCategory string
	exportFormat  string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the tool catalog",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	RunE:  runToolsList,
}

var toolsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tool definitions for a model provider",
	Long: `Export every tool as function-calling JSON.
Formats: schema (provider-neutral), openai, anthropic.`,
	RunE: runToolsExport,
}

func init() {
	toolsListCmd.Flags().StringVar(&toolsCategory, "category", "", "only list tools of this category")
	toolsExportCmd.Flags().StringVar(&exportFormat, "format", "schema", "output format (schema, openai, anthropic)")
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsExportCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	registry, err := handlers.NewRegistry(handlers.Options{})
	if err != nil {
		return err
	}

	var defs []catalog.ToolDefinition
	if toolsCategory != "" {
		category := catalog.Category(strings.ToLower(toolsCategory))
		if !catalog.IsValidCategory(category) {
			return fmt.Errorf("unknown category: %s", toolsCategory)
		}
		defs = registry.ByCategory(category)
	} else {
		for _, name := range registry.Names() {
			def, _ := registry.Get(name)
			defs = append(defs, def)
		}
	}

	for _, def := range defs {
		flag := ""
		if def.ApprovalRequired {
			flag = " [approval]"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-11s%s %s\n", def.Name, def.Category, flag, def.Description)
	}
	return nil
}

func runToolsExport(cmd *cobra.Command, args []string) error {
	registry, err := handlers.NewRegistry(handlers.Options{})
	if err != nil {
		return err
	}

	switch strings.ToLower(exportFormat) {
	case "schema":
		return printJSON(cmd, registry.ExportSchema())
	case "openai":
		return printJSON(cmd, registry.ExportOpenAITools())
	case "anthropic":
		return printJSON(cmd, registry.ExportAnthropicTools())
	default:
		return fmt.Errorf("unknown format: %s (must be one of: schema, openai, anthropic)", exportFormat)
	}
}
