package hint

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaHint is the vendor-extension hint kind: the value must validate
// against a compiled JSON Schema.
type SchemaHint struct {
	Source string

	digest   string
	compiled *jsonschema.Schema
}

// JSONSchema compiles a JSON Schema document into a hint. Compilation
// failures are hint-definition errors and raise here, not at check time.
func JSONSchema(source string) (Hint, error) {
	compiled, err := jsonschema.CompileString("inline.json", source)
	if err != nil {
		return nil, fmt.Errorf("hint: invalid json schema: %w", err)
	}
	sum := sha256.Sum256([]byte(source))
	return &SchemaHint{
		Source:   source,
		digest:   fmt.Sprintf("%x", sum[:8]),
		compiled: compiled,
	}, nil
}

// MustJSONSchema is JSONSchema, panicking on error.
func MustJSONSchema(source string) Hint {
	h, err := JSONSchema(source)
	if err != nil {
		panic(err)
	}
	return h
}

// Validate checks a value against the schema. Arbitrary Go values are
// round-tripped through JSON first, since the validator operates on the
// decoded-JSON data model.
func (h *SchemaHint) Validate(v any) error {
	doc, err := toJSONValue(v)
	if err != nil {
		return fmt.Errorf("hint: schema check on non-serializable value: %w", err)
	}
	return h.compiled.Validate(doc)
}

func toJSONValue(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, float64, map[string]any, []any:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
