// Package hintfmt renders hints and checked values for human consumption:
// violation sentences, CLI output, logs. The display form ("int | list[str]")
// is distinct from the canonical machine repr the caches key on.
package hintfmt

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/typegate-dev/typegate/hint"
)

// Format renders a hint in display form.
func Format(h hint.Hint) string {
	var b strings.Builder
	writeHint(&b, h, make(map[hint.Hint]bool), 0)
	return b.String()
}

const maxFormatDepth = 32

func writeHint(b *strings.Builder, h hint.Hint, busy map[hint.Hint]bool, depth int) {
	if depth > maxFormatDepth {
		b.WriteString("...")
		return
	}
	switch v := h.(type) {
	case nil:
		b.WriteString("None")
	case *hint.Special:
		b.WriteString(v.String())
	case reflect.Type:
		b.WriteString(typeName(v))
	case string:
		b.WriteByte('\'')
		b.WriteString(v)
		b.WriteByte('\'')
	case *hint.ForwardRef:
		b.WriteByte('\'')
		b.WriteString(v.Name)
		b.WriteByte('\'')
	case *hint.UnionHint:
		for i, m := range v.Members {
			if i > 0 {
				b.WriteString(" | ")
			}
			writeHint(b, m, busy, depth+1)
		}
	case *hint.SeqHint:
		b.WriteString(v.Kind.String())
		b.WriteByte('[')
		writeHint(b, v.Elem, busy, depth+1)
		b.WriteByte(']')
	case *hint.TupleHint:
		b.WriteString("tuple[")
		for i, it := range v.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeHint(b, it, busy, depth+1)
		}
		if v.Variadic {
			b.WriteString(", ...")
		}
		b.WriteByte(']')
	case *hint.MapHint:
		b.WriteString("map[")
		writeHint(b, v.Key, busy, depth+1)
		b.WriteString(", ")
		writeHint(b, v.Value, busy, depth+1)
		b.WriteByte(']')
	case *hint.LiteralHint:
		b.WriteString("Literal[")
		for i, c := range v.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(literalDisplay(c))
		}
		b.WriteByte(']')
	case *hint.AnnotatedHint:
		b.WriteString("Annotated[")
		writeHint(b, v.Base, busy, depth+1)
		for _, p := range v.Predicates {
			b.WriteString(", ")
			b.WriteString(strconv.Quote(p.Expr))
		}
		b.WriteByte(']')
	case *hint.NewTypeHint:
		b.WriteString(v.Name)
	case *hint.TypeVarHint:
		b.WriteString(v.Name)
	case *hint.GenericHint:
		if busy[h] {
			b.WriteString(v.Name)
			return
		}
		busy[h] = true
		defer delete(busy, h)
		b.WriteString(v.Name)
		if len(v.Args) > 0 {
			b.WriteByte('[')
			for i, a := range v.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				writeHint(b, a, busy, depth+1)
			}
			b.WriteByte(']')
		}
	case *hint.ProtocolHint:
		b.WriteString(v.Name)
	case *hint.RecordHint:
		if v.Name != "" {
			b.WriteString(v.Name)
			return
		}
		b.WriteString("record{")
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			if f.Optional {
				b.WriteByte('?')
			}
			b.WriteString(": ")
			writeHint(b, f.Hint, busy, depth+1)
		}
		b.WriteByte('}')
	case *hint.SchemaHint:
		b.WriteString("JSONSchema[...]")
	default:
		fmt.Fprintf(b, "<unsupported %T>", h)
	}
}

func typeName(t reflect.Type) string {
	switch t {
	case hint.String:
		return "str"
	case hint.Float:
		return "float"
	}
	return t.String()
}

func literalDisplay(v any) string {
	switch c := v.(type) {
	case nil:
		return "None"
	case string:
		return strconv.Quote(c)
	case bool:
		if c {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(v)
	}
}

// FormatValue renders a checked value truncated to a bounded display width,
// so violation sentences never become unreadable dumps. Width is measured
// in terminal cells, not bytes.
func FormatValue(v any, width int) string {
	var repr string
	switch c := v.(type) {
	case nil:
		return "None"
	case string:
		repr = strconv.Quote(c)
	default:
		repr = fmt.Sprintf("%v", v)
	}
	if width <= 0 {
		return repr
	}
	repr = strings.ReplaceAll(repr, "\n", `\n`)
	if runewidth.StringWidth(repr) <= width {
		return repr
	}
	return runewidth.Truncate(repr, width, "...")
}
