package catalog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func invalid(format string, args ...interface{}) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// Validate checks params against def. Required, enum and bound violations
// produce messages naming the parameter; type mismatches and unexpected
// parameters are reported from the compiled JSON schema.
func (r *Registry) Validate(def ToolDefinition, params map[string]interface{}) ValidationResult {
	for _, name := range sortedParamNames(def) {
		spec := def.Parameters[name]
		value, present := params[name]
		if !present || value == nil {
			if spec.Required && spec.Default == nil {
				return invalid("missing required parameter: %s", name)
			}
			continue
		}

		if len(spec.Enum) > 0 {
			s, ok := value.(string)
			if !ok || !containsFold(spec.Enum, s) {
				return invalid("invalid value for %s: %v (allowed: %s)", name, value, strings.Join(spec.Enum, ", "))
			}
		}

		if spec.Type.numeric() {
			n, ok := toFloat(value)
			if !ok {
				return invalid("parameter %s must be numeric", name)
			}
			if spec.Type == TypeInteger && n != math.Trunc(n) {
				return invalid("parameter %s must be an integer", name)
			}
			if spec.Min != nil && n < *spec.Min {
				return invalid("parameter %s must be >= %s (minimum)", name, formatBound(*spec.Min))
			}
			if spec.Max != nil && n > *spec.Max {
				return invalid("parameter %s must be <= %s (maximum)", name, formatBound(*spec.Max))
			}
		}
	}

	schema := r.schemaFor(def)
	if schema == nil {
		return ValidationResult{Valid: true}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(normalizeParams(params)))
	if err != nil {
		return invalid("parameter validation failed: %v", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return invalid("parameter validation failed: %s", strings.Join(errs, "; "))
	}

	return ValidationResult{Valid: true}
}

// ApplyDefaults returns a copy of params with declared defaults filled in and
// enum values canonicalised to their declared spelling.
func ApplyDefaults(def ToolDefinition, params map[string]interface{}) Params {
	out := make(Params, len(params)+len(def.Parameters))
	for k, v := range params {
		out[k] = v
	}
	for name, spec := range def.Parameters {
		if v, ok := out[name]; !ok || v == nil {
			if spec.Default != nil {
				out[name] = spec.Default
			}
			continue
		}
		if s, ok := out[name].(string); ok && len(spec.Enum) > 0 {
			for _, allowed := range spec.Enum {
				if strings.EqualFold(allowed, s) {
					out[name] = allowed
				}
			}
		}
	}
	return out
}

func (r *Registry) schemaFor(def ToolDefinition) *gojsonschema.Schema {
	if e, ok := r.tools[def.Name]; ok {
		return e.schema
	}
	schema, err := compileSchema(def)
	if err != nil {
		return nil
	}
	return schema
}

// compileSchema builds the JSON schema used for type checking. Enum and
// bounds are left to Validate so the messages stay readable.
func compileSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(def.Parameters))
	for name, spec := range def.Parameters {
		properties[name] = map[string]interface{}{"type": string(spec.Type)}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// normalizeParams drops explicit nulls so optional parameters sent as null
// do not fail the type check.
func normalizeParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func sortedParamNames(def ToolDefinition) []string {
	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func formatBound(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
