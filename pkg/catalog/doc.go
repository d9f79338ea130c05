// Package catalog holds the immutable registry of tool definitions and their
// handlers.
//
// Invariants:
// - Tool names are unique.
// - A Registry never changes after Build; it is injected, not global.
// - Parameters are validated (required, enum, bounds, then JSON schema types)
//   before any handler runs.
//
// Usage:
//
//	b := catalog.NewBuilder()
//	_ = b.Register(catalog.ToolDefinition{
//		Name:        "grant_gold",
//		Description: "Give gold to the character",
//		Category:    catalog.CategoryEconomy,
//		Parameters: map[string]catalog.ParamSpec{
//			"amount": {Type: catalog.TypeInteger, Description: "gold pieces", Required: true, Min: catalog.Bound(1)},
//		},
//	}, handler)
//	reg, _ := b.Build()
package catalog
