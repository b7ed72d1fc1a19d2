package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// HandlerFunc executes a tool call with already validated input.
type HandlerFunc func(ctx context.Context, input json.RawMessage) (string, error)

// SchemaTool is a caller tool described by a raw JSON Schema document.
// Inputs are validated with a compiled schema before the handler runs.
type SchemaTool struct {
	name        string
	description string
	category    string
	params      map[string]any
	compiled    *jsonschema.Schema
	fn          HandlerFunc
}

// NewSchemaTool compiles schema and returns a tool backed by fn.
func NewSchemaTool(name, description, category string, schema json.RawMessage, fn HandlerFunc) (*SchemaTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: handler cannot be nil", name)
	}

	var params map[string]any
	if err := json.Unmarshal(schema, &params); err != nil {
		return nil, fmt.Errorf("%w: tool %s: %v", ErrInvalidSchema, name, err)
	}
	if t, _ := params["type"].(string); t != "object" {
		return nil, fmt.Errorf("%w: tool %s: schema type must be 'object'", ErrInvalidSchema, name)
	}

	compiled, err := compileSchema(name, schema)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %s: %v", ErrInvalidSchema, name, err)
	}

	return &SchemaTool{
		name:        name,
		description: description,
		category:    category,
		params:      params,
		compiled:    compiled,
		fn:          fn,
	}, nil
}

// Name implements Tool
func (t *SchemaTool) Name() string { return t.name }

// Description implements Tool
func (t *SchemaTool) Description() string { return t.description }

// Category implements Categorized
func (t *SchemaTool) Category() string { return t.category }

// Parameters implements ParametersProvider
func (t *SchemaTool) Parameters() map[string]any { return t.params }

// InputSchema implements Tool with a best-effort decoding of the raw schema.
func (t *SchemaTool) InputSchema() ToolSchema {
	var schema ToolSchema
	raw, err := json.Marshal(t.params)
	if err == nil {
		_ = json.Unmarshal(raw, &schema)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}

// Validate implements Validating.
func (t *SchemaTool) Validate(input json.RawMessage) []error {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return []error{fmt.Errorf("invalid JSON input: %w", err)}
	}

	err := t.compiled.Validate(decoded)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []error{err}
	}

	var reasons []error
	collectLeaves(ve, &reasons)
	if len(reasons) == 0 {
		reasons = append(reasons, errors.New(ve.Message))
	}
	return reasons
}

// Execute implements Tool
func (t *SchemaTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]error) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Errorf("%s: %s", loc, ve.Message))
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, out)
	}
}

var schemaCache sync.Map

func compileSchema(name string, schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
