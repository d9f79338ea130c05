package catalog

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Builder collects tool registrations before the registry is frozen.
type Builder struct {
	tools map[string]*entry
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{tools: make(map[string]*entry)}
}

// Register adds a tool definition together with its handler.
func (b *Builder) Register(def ToolDefinition, handler Handler) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}
	if handler == nil {
		return fmt.Errorf("invalid tool definition: handler for %s cannot be nil", def.Name)
	}
	if _, exists := b.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	b.tools[def.Name] = &entry{tool: Tool{Definition: def, Handler: handler}, schema: schema}
	return nil
}

// RegisterAll registers a list of tools, stopping at the first error.
func (b *Builder) RegisterAll(tools []Tool) error {
	for _, t := range tools {
		if err := b.Register(t.Definition, t.Handler); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the registered tools into a Registry.
func (b *Builder) Build() (*Registry, error) {
	if len(b.tools) == 0 {
		return nil, fmt.Errorf("no tools registered")
	}

	tools := make(map[string]*entry, len(b.tools))
	names := make([]string, 0, len(b.tools))
	for name, e := range b.tools {
		tools[name] = e
		names = append(names, name)
	}
	sort.Strings(names)

	log.Info().Int("tools", len(names)).Msg("Tool catalog built")

	return &Registry{tools: tools, names: names}, nil
}

// Registry is the immutable tool catalog.
type Registry struct {
	tools map[string]*entry
	names []string
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	e, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return e.tool.Definition, true
}

// Lookup returns the definition and handler registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Names returns all tool names in sorted order.
func (r *Registry) Names() []string {
	return append([]string{}, r.names...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.names)
}

// ByCategory returns the definitions in a category, sorted by name.
func (r *Registry) ByCategory(category Category) []ToolDefinition {
	var defs []ToolDefinition
	for _, name := range r.names {
		if def := r.tools[name].tool.Definition; def.Category == category {
			defs = append(defs, def)
		}
	}
	return defs
}

// validateDefinition validates a tool definition
func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if !IsValidCategory(def.Category) {
		return fmt.Errorf("invalid category %q for %s", def.Category, def.Name)
	}
	if def.ApprovalRequired && def.Immediate {
		return fmt.Errorf("tool %s cannot be both immediate and approval-required", def.Name)
	}

	for name, param := range def.Parameters {
		if name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !param.Type.valid() {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", name)
		}
		if (param.Min != nil || param.Max != nil) && !param.Type.numeric() {
			return fmt.Errorf("bounds declared on non-numeric parameter %s", name)
		}
		if param.Min != nil && param.Max != nil && *param.Min > *param.Max {
			return fmt.Errorf("parameter %s has min greater than max", name)
		}
		if len(param.Enum) > 0 && param.Type != TypeString {
			return fmt.Errorf("enum declared on non-string parameter %s", name)
		}
	}

	return nil
}
