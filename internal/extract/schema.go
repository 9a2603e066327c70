package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema used to validate recovered objects before
// they are decoded into typed stage outputs.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles a schema expressed as a generic map.
func CompileSchema(name string, schemaMap map[string]any) (*Schema, error) {
	encoded, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	resource := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompileSchema is CompileSchema for package-level schema literals.
func MustCompileSchema(name string, schemaMap map[string]any) *Schema {
	schema, err := CompileSchema(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return schema
}

// Name returns the schema's identifier.
func (s *Schema) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Validate checks a recovered object against the schema. A nil schema accepts everything.
func (s *Schema) Validate(obj map[string]any) error {
	if s == nil {
		return nil
	}
	if err := s.compiled.Validate(any(obj)); err != nil {
		return fmt.Errorf("%s: output does not match schema: %w", s.name, err)
	}
	return nil
}
