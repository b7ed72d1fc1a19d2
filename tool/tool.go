package tool

import (
	"context"
	"encoding/json"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the tool name (used in backend calls)
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	// Must include "type", "properties", and optionally "required" array
	InputSchema() ToolSchema

	// Execute runs the tool with the provided input and returns the result.
	// Output may be non-empty even when an error is returned.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Validating is implemented by tools that check their own arguments.
// A nil or empty slice means the input is acceptable.
type Validating interface {
	Validate(input json.RawMessage) []error
}

// Categorized is implemented by tools that belong to a capability category
// such as "shell". A caller tool sharing a category with a built-in is
// hidden from the backend when built-ins are enabled.
type Categorized interface {
	Category() string
}

// ParametersProvider is implemented by tools whose parameters are described
// by a raw JSON Schema document rather than a ToolSchema.
type ParametersProvider interface {
	Parameters() map[string]any
}

// ToolSchema defines the JSON Schema for a tool's input parameters
type ToolSchema struct {
	// Type must be "object"
	Type string `json:"type"`

	// Properties defines the tool's parameters
	Properties map[string]PropertyDef `json:"properties"`

	// Required lists the names of required parameters
	Required []string `json:"required,omitempty"`
}

// PropertyDef defines a single property in the tool schema
type PropertyDef struct {
	// Type is the JSON Schema type (string, number, integer, boolean, array, object)
	Type string `json:"type"`

	// Description explains what this parameter is for
	Description string `json:"description,omitempty"`

	// Enum restricts the parameter to specific values
	Enum []string `json:"enum,omitempty"`

	// Items defines the schema for array items (when Type is "array")
	Items *PropertyDef `json:"items,omitempty"`

	// Properties defines nested object properties (when Type is "object")
	Properties map[string]PropertyDef `json:"properties,omitempty"`

	// Minimum/Maximum for number types
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// MinLength/MaxLength for string types
	MinLength *int `json:"minLength,omitempty"`
	MaxLength *int `json:"maxLength,omitempty"`
}

// ToMap converts the schema into a generic JSON Schema object.
func (s ToolSchema) ToMap() map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, def := range s.Properties {
		properties[name] = def.toMap()
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

func (def PropertyDef) toMap() map[string]any {
	prop := map[string]any{
		"type": def.Type,
	}

	if def.Description != "" {
		prop["description"] = def.Description
	}
	if len(def.Enum) > 0 {
		prop["enum"] = def.Enum
	}
	if def.Minimum != nil {
		prop["minimum"] = *def.Minimum
	}
	if def.Maximum != nil {
		prop["maximum"] = *def.Maximum
	}
	if def.MinLength != nil {
		prop["minLength"] = *def.MinLength
	}
	if def.MaxLength != nil {
		prop["maxLength"] = *def.MaxLength
	}
	if def.Items != nil {
		prop["items"] = def.Items.toMap()
	}
	if len(def.Properties) > 0 {
		nested := make(map[string]any, len(def.Properties))
		for key, nestedDef := range def.Properties {
			nested[key] = nestedDef.toMap()
		}
		prop["properties"] = nested
	}

	return prop
}

// Definition is the backend-facing description of a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefinitionOf builds the backend-facing definition of t.
func DefinitionOf(t Tool) Definition {
	params := map[string]any(nil)
	if p, ok := t.(ParametersProvider); ok {
		params = p.Parameters()
	}
	if params == nil {
		params = t.InputSchema().ToMap()
	}
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  params,
	}
}

// CategoryOf returns the category of t, or "" if it has none.
func CategoryOf(t Tool) string {
	if c, ok := t.(Categorized); ok {
		return c.Category()
	}
	return ""
}

// funcTool is a simple Tool implementation using a function
type funcTool struct {
	name        string
	description string
	schema      ToolSchema
	fn          func(context.Context, json.RawMessage) (string, error)
}

// Name implements Tool
func (t *funcTool) Name() string {
	return t.name
}

// Description implements Tool
func (t *funcTool) Description() string {
	return t.description
}

// InputSchema implements Tool
func (t *funcTool) InputSchema() ToolSchema {
	return t.schema
}

// Execute implements Tool
func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

// NewFuncTool creates a Tool from a function
// This is useful for simple tools where you don't want to create a full struct
func NewFuncTool(
	name string,
	description string,
	schema ToolSchema,
	fn func(context.Context, json.RawMessage) (string, error),
) Tool {
	return &funcTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}
