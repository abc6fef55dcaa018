package hint

import (
	"fmt"
	"strconv"

	"github.com/speakeasy-api/openapi/jsonschema/oas3"
	"gopkg.in/yaml.v3"
)

// FromSchema derives a hint from an OAS3 JSON Schema: types map to
// primitive hints, enums to literals, anyOf to unions, items to sequences,
// prefixItems to tuples, and object properties to records. Constructs the
// hint algebra cannot express degrade to Any rather than failing.
func FromSchema(s *oas3.Schema) (Hint, error) {
	h, err := fromSchema(s, 0)
	if err != nil {
		return nil, err
	}
	return Coerce(h), nil
}

const fromSchemaMaxDepth = 100

func fromSchema(s *oas3.Schema, depth int) (Hint, error) {
	if s == nil {
		return nil, fmt.Errorf("hint: cannot derive a hint from a nil schema")
	}
	if depth > fromSchemaMaxDepth {
		return nil, fmt.Errorf("hint: schema nesting exceeds %d levels", fromSchemaMaxDepth)
	}

	var h Hint
	switch {
	case len(s.AnyOf) > 0:
		members := make([]Hint, 0, len(s.AnyOf))
		for i, branch := range s.AnyOf {
			bs, ok := derefJSONSchema(branch)
			if !ok {
				return nil, fmt.Errorf("hint: anyOf branch %d is unresolved", i)
			}
			m, err := fromSchema(bs, depth+1)
			if err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		h = Union(members...)

	case len(s.Enum) > 0:
		values := make([]any, 0, len(s.Enum))
		for _, node := range s.Enum {
			v, err := decodeEnumScalar(node)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		h = Literal(values...)

	default:
		var err error
		h, err = fromTypedSchema(s, depth)
		if err != nil {
			return nil, err
		}
	}

	if s.Nullable != nil && *s.Nullable {
		h = Optional(h)
	}
	return h, nil
}

func fromTypedSchema(s *oas3.Schema, depth int) (Hint, error) {
	types := s.GetType()
	if len(types) == 0 {
		return Any, nil
	}
	switch types[0] {
	case oas3.SchemaTypeString:
		return String, nil
	case oas3.SchemaTypeInteger:
		return Int, nil
	case oas3.SchemaTypeNumber:
		return Float, nil
	case oas3.SchemaTypeBoolean:
		return Bool, nil
	case oas3.SchemaTypeNull:
		return None, nil
	case oas3.SchemaTypeArray:
		if len(s.PrefixItems) > 0 {
			items := make([]Hint, 0, len(s.PrefixItems))
			for i, pi := range s.PrefixItems {
				ps, ok := derefJSONSchema(pi)
				if !ok {
					return nil, fmt.Errorf("hint: prefixItems[%d] is unresolved", i)
				}
				it, err := fromSchema(ps, depth+1)
				if err != nil {
					return nil, err
				}
				items = append(items, it)
			}
			return Tuple(items...), nil
		}
		if s.Items != nil {
			is, ok := derefJSONSchema(s.Items)
			if !ok {
				return nil, fmt.Errorf("hint: items schema is unresolved")
			}
			elem, err := fromSchema(is, depth+1)
			if err != nil {
				return nil, err
			}
			return List(elem), nil
		}
		return List(Any), nil
	case oas3.SchemaTypeObject:
		if s.Properties == nil || s.Properties.Len() == 0 {
			return Map(String, Any), nil
		}
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		fields := make([]RecordField, 0, s.Properties.Len())
		for name, prop := range s.Properties.All() {
			ps, ok := derefJSONSchema(prop)
			if !ok {
				return nil, fmt.Errorf("hint: property %q is unresolved", name)
			}
			fh, err := fromSchema(ps, depth+1)
			if err != nil {
				return nil, err
			}
			fields = append(fields, RecordField{
				Name:     name,
				Hint:     fh,
				Optional: !required[name],
			})
		}
		return Record("", nil, fields...), nil
	}
	return Any, nil
}

// derefJSONSchema unwraps a JSONSchema node to its concrete schema,
// handling both resolved $refs and inline schemas.
func derefJSONSchema(js *oas3.JSONSchema[oas3.Referenceable]) (*oas3.Schema, bool) {
	if js == nil {
		return nil, false
	}
	if resolved := js.GetResolvedSchema(); resolved != nil {
		if schema := resolved.GetLeft(); schema != nil {
			return schema, true
		}
	}
	if js.Left != nil {
		return js.Left, true
	}
	return nil, false
}

func decodeEnumScalar(node *yaml.Node) (any, error) {
	if node == nil {
		return nil, nil
	}
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("hint: non-scalar enum values are not supported")
	}
	switch node.Tag {
	case "!!str", "":
		return node.Value, nil
	case "!!int":
		n, err := strconv.Atoi(node.Value)
		if err != nil {
			return nil, fmt.Errorf("hint: enum integer %q: %w", node.Value, err)
		}
		return n, nil
	case "!!float":
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("hint: enum number %q: %w", node.Value, err)
		}
		return f, nil
	case "!!bool":
		return node.Value == "true", nil
	case "!!null":
		return nil, nil
	}
	return nil, fmt.Errorf("hint: unsupported enum scalar tag %s", node.Tag)
}
