package httpserver

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// schemaValidator compiles each skill's input_schema fragment once and
// reuses it for every subsequent request, the way a registry-backed
// service avoids re-parsing a fixed set of schemas per call.
type schemaValidator struct {
	mu       sync.Mutex
	compiled map[string]*gojsonschema.Schema
}

func newSchemaValidator() *schemaValidator {
	return &schemaValidator{compiled: map[string]*gojsonschema.Schema{}}
}

// validate checks input against the skill's compiled input_schema,
// returning human-readable violation strings naming each failing field
// (spec.md §4.6/§8 P5). A nil/empty slice means input is valid.
func (v *schemaValidator) validate(skillID string, schemaBytes []byte, input map[string]any) ([]string, error) {
	schema, err := v.get(skillID, schemaBytes)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %q: %w", skillID, err)
	}

	if input == nil {
		input = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("validating input for %q: %w", skillID, err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return violations, nil
}

func (v *schemaValidator) get(skillID string, schemaBytes []byte) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.compiled[skillID]; ok {
		return s, nil
	}

	var raw any
	if err := json.Unmarshal(schemaBytes, &raw); err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, err
	}
	v.compiled[skillID] = schema
	return schema, nil
}
