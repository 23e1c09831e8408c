// Package schemavalidation compiles and runs JSON Schema checks
// (santhosh-tekuri/jsonschema) against arbitrary JSON documents. The
// config package uses it to validate the kiosk configuration semantically,
// on top of the structural checks TOML decoding and Config.Validate
// already perform.
package schemavalidation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed kiosk-config.schema.json
var kioskConfigSchemaJSON []byte

// KioskConfigSchema returns the compiled schema for the kiosk configuration
// document, compiling it fresh so callers never share mutable compiler
// state.
func KioskConfigSchema() (*jsonschema.Schema, error) {
	return Compile("kiosk-config.schema.json", kioskConfigSchemaJSON)
}

// Compile compiles a JSON Schema document, identified by resourceName for
// error messages, from raw schema bytes.
func Compile(resourceName string, schemaJSON []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("schemavalidation: add resource %s: %w", resourceName, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schemavalidation: compile %s: %w", resourceName, err)
	}
	return schema, nil
}

// ValidateValue validates an already-unmarshaled JSON value (map[string]any,
// []any, or a scalar) against schema.
func ValidateValue(schema *jsonschema.Schema, value any) error {
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("schemavalidation: %w", err)
	}
	return nil
}

// ValidateKioskConfig marshals v (typically a *config.Config) to JSON and
// validates the result against the embedded kiosk configuration schema.
func ValidateKioskConfig(v any) error {
	schema, err := KioskConfigSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("schemavalidation: marshal config: %w", err)
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("schemavalidation: unmarshal config: %w", err)
	}

	return ValidateValue(schema, instance)
}
