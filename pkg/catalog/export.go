package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// FunctionSchema is the language-model function-calling description of a tool.
type FunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ExportSchema renders every tool as a function-calling schema, sorted by name.
func (r *Registry) ExportSchema() []FunctionSchema {
	out := make([]FunctionSchema, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, FunctionSchemaFor(r.tools[name].tool.Definition))
	}
	return out
}

// FunctionSchemaFor renders a single definition.
func FunctionSchemaFor(def ToolDefinition) FunctionSchema {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, name := range sortedParamNames(def) {
		spec := def.Parameters[name]
		prop := map[string]interface{}{
			"type":        string(spec.Type),
			"description": spec.Description,
		}
		if len(spec.Enum) > 0 {
			prop["enum"] = append([]string{}, spec.Enum...)
		}
		if spec.Min != nil {
			prop["minimum"] = *spec.Min
		}
		if spec.Max != nil {
			prop["maximum"] = *spec.Max
		}
		if spec.Default != nil {
			prop["default"] = spec.Default
		}
		if spec.Type == TypeArray {
			prop["items"] = map[string]interface{}{"type": "string"}
		}
		properties[name] = prop

		if spec.Required {
			required = append(required, name)
		}
	}

	return FunctionSchema{
		Name:        def.Name,
		Description: def.Description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// ExportOpenAITools renders the catalog as OpenAI chat-completion tools.
func (r *Registry) ExportOpenAITools() []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(r.names))
	for _, fn := range r.ExportSchema() {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        fn.Name,
				Description: openai.String(fn.Description),
				Parameters:  openai.FunctionParameters(fn.Parameters),
			},
		})
	}
	return tools
}

// ExportAnthropicTools renders the catalog as Anthropic message tools.
func (r *Registry) ExportAnthropicTools() []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(r.names))
	for _, fn := range r.ExportSchema() {
		toolParam := anthropic.ToolParam{
			Name:        fn.Name,
			Description: anthropic.String(fn.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: fn.Parameters["properties"],
			},
		}
		if required, ok := fn.Parameters["required"].([]string); ok && len(required) > 0 {
			toolParam.InputSchema.Required = required
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

// Describe renders a one-line human description of a tool call, used on
// pending actions shown to the reviewer.
func Describe(def ToolDefinition, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}

	summary := def.Description
	if len(parts) > 0 {
		summary += " (" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("%s: %s", def.Name, summary)
}
