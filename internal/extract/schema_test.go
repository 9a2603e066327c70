package extract_test

import (
	"strings"
	"testing"

	"docpipe/internal/extract"
)

func TestSchemaValidate(t *testing.T) {
	schema, err := extract.CompileSchema("sample", map[string]any{
		"type":     "object",
		"required": []string{"items"},
		"properties": map[string]any{
			"items": map[string]any{"type": "array"},
		},
	})
	if err != nil {
		t.Fatalf("CompileSchema failed: %v", err)
	}
	ok := extract.Extract(extract.Simple, `{"items": [1]}`)
	if err := schema.Validate(ok.Object); err != nil {
		t.Fatalf("expected valid object, got %v", err)
	}
	bad := extract.Extract(extract.Simple, `{"items": "nope"}`)
	err = schema.Validate(bad.Object)
	if err == nil {
		t.Fatal("expected schema violation")
	}
	if !strings.Contains(err.Error(), "sample") {
		t.Fatalf("expected schema name in error, got %v", err)
	}
	var nilSchema *extract.Schema
	if err := nilSchema.Validate(bad.Object); err != nil {
		t.Fatalf("nil schema should accept everything, got %v", err)
	}
}
