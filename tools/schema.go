package tools

import (
	"encoding/json"
	"fmt"
)

// Property describes a single named tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema is the subset of JSON Schema needed to validate tool arguments:
// named, typed parameters with required/optional marking.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Validate checks args against the schema: every required field must be
// present, and every known field must match its declared primitive type.
// Unknown fields are tolerated; models frequently add extras.
func (s *Schema) Validate(args map[string]interface{}) error {
	if s == nil {
		return nil
	}
	for _, field := range s.Required {
		if _, ok := args[field]; !ok {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	for key, value := range args {
		prop, ok := s.Properties[key]
		if !ok {
			continue
		}
		if err := checkType(value, prop.Type); err != nil {
			return fmt.Errorf("field %q: %v", key, err)
		}
	}
	return nil
}

// JSON renders the schema in the object form the model providers expect.
func (s *Schema) JSON() map[string]interface{} {
	props := map[string]interface{}{}
	required := []string{}
	if s != nil {
		for name, p := range s.Properties {
			prop := map[string]interface{}{"type": p.Type}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			props[name] = prop
		}
		required = append(required, s.Required...)
	}
	out := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func checkType(value interface{}, expected string) error {
	switch expected {
	case "", "object":
		return nil
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number", "integer":
		switch v := value.(type) {
		case float32, float64, int, int32, int64:
			return nil
		case json.Number:
			if _, err := v.Float64(); err == nil {
				return nil
			}
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]interface{}); ok {
			return nil
		}
	}
	return fmt.Errorf("expected %s but got %T", expected, value)
}
