package hint_test

import (
	"testing"

	"github.com/typegate-dev/typegate/hint"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer", "minimum": 0}
	},
	"required": ["name"]
}`

func TestJSONSchemaValidate(t *testing.T) {
	h, err := hint.JSONSchema(personSchema)
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	sh := h.(*hint.SchemaHint)

	ok := map[string]any{"name": "ada", "age": 36.0}
	if err := sh.Validate(ok); err != nil {
		t.Errorf("Validate(%v): %v", ok, err)
	}

	missing := map[string]any{"age": 36.0}
	if err := sh.Validate(missing); err == nil {
		t.Errorf("Validate without required name: want error, got nil")
	}

	wrongType := map[string]any{"name": "ada", "age": "old"}
	if err := sh.Validate(wrongType); err == nil {
		t.Errorf("Validate with non-integer age: want error, got nil")
	}
}

// Arbitrary Go values round-trip through JSON before validation.
func TestJSONSchemaValidateStruct(t *testing.T) {
	h := hint.MustJSONSchema(personSchema).(*hint.SchemaHint)
	type person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	if err := h.Validate(person{Name: "ada", Age: 36}); err != nil {
		t.Errorf("Validate(struct): %v", err)
	}
}

func TestJSONSchemaInvalidSource(t *testing.T) {
	if _, err := hint.JSONSchema(`{"type": 17}`); err == nil {
		t.Errorf("JSONSchema with invalid schema: want error, got nil")
	}
}

func TestJSONSchemaDistinctDigests(t *testing.T) {
	a := hint.MustJSONSchema(`{"type": "string"}`)
	b := hint.MustJSONSchema(`{"type": "integer"}`)
	if hint.Repr(a) == hint.Repr(b) {
		t.Errorf("different schemas share a canonical repr")
	}
}
