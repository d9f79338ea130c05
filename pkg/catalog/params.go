package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Params is a validated parameter document with typed accessors.
type Params map[string]interface{}

// Has reports whether a parameter was supplied.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// String returns a string parameter or "".
func (p Params) String(name string) string {
	switch v := p[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns an integer parameter or 0. JSON numbers arrive as float64.
func (p Params) Int(name string) int {
	n, _ := toFloat(p[name])
	return int(math.Round(n))
}

// Float returns a numeric parameter or 0.
func (p Params) Float(name string) float64 {
	n, _ := toFloat(p[name])
	return n
}

// Bool returns a boolean parameter or false.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Strings returns an array-of-strings parameter.
func (p Params) Strings(name string) []string {
	switch v := p[name].(type) {
	case []string:
		return append([]string{}, v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Lower returns a trimmed, lower-cased string parameter.
func (p Params) Lower(name string) string {
	return strings.ToLower(strings.TrimSpace(p.String(name)))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
