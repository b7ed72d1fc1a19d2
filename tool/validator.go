package tool

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Validator validates tool inputs against their schemas
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateInput validates input against a tool's schema and returns the
// first batch of problems as a single error.
func (v *Validator) ValidateInput(schema ToolSchema, input json.RawMessage) error {
	if reasons := v.Validate(schema, input); len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

// Validate returns every reason input does not satisfy schema.
func (v *Validator) Validate(schema ToolSchema, input json.RawMessage) []error {
	if schema.Type != "object" {
		return []error{fmt.Errorf("schema type must be 'object', got '%s'", schema.Type)}
	}

	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	var inputMap map[string]any
	if err := json.Unmarshal(input, &inputMap); err != nil {
		return []error{fmt.Errorf("invalid JSON input: %w", err)}
	}

	var reasons []error

	// Check required fields
	for _, required := range schema.Required {
		if _, exists := inputMap[required]; !exists {
			reasons = append(reasons, fmt.Errorf("missing required field: %s", required))
		}
	}

	// Validate each property
	for propName, propDef := range schema.Properties {
		value, exists := inputMap[propName]
		if !exists {
			continue // Optional field not provided
		}
		reasons = v.validateProperty(reasons, propName, propDef, value)
	}

	return reasons
}

func (v *Validator) validateProperty(reasons []error, name string, def PropertyDef, value any) []error {
	if value == nil {
		return reasons // Allow null values
	}

	if err := v.validateType(name, def.Type, value); err != nil {
		return append(reasons, err)
	}

	// Enum validation
	if len(def.Enum) > 0 {
		strVal, ok := value.(string)
		if !ok {
			return append(reasons, fmt.Errorf("field '%s': expected string for enum validation, got %T", name, value))
		}
		valid := false
		for _, e := range def.Enum {
			if strVal == e {
				valid = true
				break
			}
		}
		if !valid {
			reasons = append(reasons, fmt.Errorf("field '%s': value '%s' not in allowed values %v", name, strVal, def.Enum))
		}
	}

	// Range validation for numbers
	if def.Type == "number" || def.Type == "integer" {
		numVal, err := toFloat64(value)
		if err != nil {
			return append(reasons, fmt.Errorf("field '%s': %w", name, err))
		}
		if def.Minimum != nil && numVal < *def.Minimum {
			reasons = append(reasons, fmt.Errorf("field '%s': value %v is less than minimum %v", name, numVal, *def.Minimum))
		}
		if def.Maximum != nil && numVal > *def.Maximum {
			reasons = append(reasons, fmt.Errorf("field '%s': value %v exceeds maximum %v", name, numVal, *def.Maximum))
		}
	}

	// String length validation
	if def.Type == "string" {
		if strVal, ok := value.(string); ok {
			n := utf8.RuneCountInString(strVal)
			if def.MinLength != nil && n < *def.MinLength {
				reasons = append(reasons, fmt.Errorf("field '%s': string length %d is less than minimum %d", name, n, *def.MinLength))
			}
			if def.MaxLength != nil && n > *def.MaxLength {
				reasons = append(reasons, fmt.Errorf("field '%s': string length %d exceeds maximum %d", name, n, *def.MaxLength))
			}
		}
	}

	// Array items validation
	if def.Type == "array" && def.Items != nil {
		if arr, ok := value.([]any); ok {
			for i, item := range arr {
				reasons = v.validateProperty(reasons, fmt.Sprintf("%s[%d]", name, i), *def.Items, item)
			}
		}
	}

	// Nested object validation
	if def.Type == "object" && def.Properties != nil {
		if obj, ok := value.(map[string]any); ok {
			for propName, propDef := range def.Properties {
				if propVal, exists := obj[propName]; exists {
					reasons = v.validateProperty(reasons, fmt.Sprintf("%s.%s", name, propName), propDef, propVal)
				}
			}
		}
	}

	return reasons
}

func (v *Validator) validateType(name string, expectedType string, value any) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s': expected string, got %T", name, value)
		}
	case "number":
		switch value.(type) {
		case float64, float32, int, int64, int32, json.Number:
		default:
			return fmt.Errorf("field '%s': expected number, got %T", name, value)
		}
	case "integer":
		switch n := value.(type) {
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("field '%s': expected integer, got float %v", name, n)
			}
		case int, int64, int32:
		default:
			return fmt.Errorf("field '%s': expected integer, got %T", name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s': expected boolean, got %T", name, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("field '%s': expected array, got %T", name, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("field '%s': expected object, got %T", name, value)
		}
	}

	return nil
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
