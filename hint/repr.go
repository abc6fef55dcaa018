package hint

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Repr returns the machine-readable canonical representation of a hint.
// Two structurally identical hints always render identically, and two
// dissimilar hints never collide (absent deliberate interference with
// identifying attributes), which is what lets the dedup cache key on this
// text instead of a hash.
func Repr(h Hint) string {
	ctx := newReprCtx()
	var b strings.Builder
	encodeHint(h, ctx, &b)
	return b.String()
}

// reprCtx holds state for a single encoding traversal: cycle detection for
// self-referential generics and a depth guard for pathological nesting.
type reprCtx struct {
	inProgress map[Hint]int
	nextID     int
	depth      int
	maxDepth   int
}

func newReprCtx() *reprCtx {
	return &reprCtx{
		inProgress: make(map[Hint]int, 8),
		nextID:     1,
		maxDepth:   1000,
	}
}

func encodeHint(h Hint, ctx *reprCtx, b *strings.Builder) {
	ctx.depth++
	defer func() { ctx.depth-- }()
	if ctx.depth > ctx.maxDepth {
		b.WriteString("<max-depth>")
		return
	}

	switch v := h.(type) {
	case nil:
		b.WriteString("None")
	case *Special:
		b.WriteString(v.name)
	case reflect.Type:
		b.WriteString("type:")
		b.WriteString(v.String())
	case string:
		b.WriteString("ref:")
		b.WriteString(strconv.Quote(v))
	case *ForwardRef:
		b.WriteString("ref:")
		b.WriteString(strconv.Quote(v.Name))
	case *UnionHint:
		b.WriteString("union[")
		for i, m := range v.Members {
			if i > 0 {
				b.WriteByte('|')
			}
			encodeHint(m, ctx, b)
		}
		b.WriteByte(']')
	case *SeqHint:
		b.WriteString(v.Kind.String())
		b.WriteByte('[')
		encodeHint(v.Elem, ctx, b)
		b.WriteByte(']')
	case *TupleHint:
		b.WriteString("tuple[")
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeHint(it, ctx, b)
		}
		if v.Variadic {
			b.WriteString(",...")
		}
		b.WriteByte(']')
	case *MapHint:
		b.WriteString("map[")
		encodeHint(v.Key, ctx, b)
		b.WriteByte(',')
		encodeHint(v.Value, ctx, b)
		b.WriteByte(']')
	case *LiteralHint:
		b.WriteString("literal[")
		for i, c := range v.Values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(LiteralRepr(c))
		}
		b.WriteByte(']')
	case *AnnotatedHint:
		b.WriteString("annotated[")
		encodeHint(v.Base, ctx, b)
		for _, p := range v.Predicates {
			b.WriteByte(';')
			b.WriteString(strconv.Quote(p.Expr))
		}
		b.WriteByte(']')
	case *NewTypeHint:
		b.WriteString("newtype:")
		b.WriteString(v.Name)
		b.WriteByte('[')
		encodeHint(v.Base, ctx, b)
		b.WriteByte(']')
	case *TypeVarHint:
		b.WriteString("typevar:")
		b.WriteString(v.Name)
		if v.Bound != nil {
			b.WriteByte('[')
			encodeHint(v.Bound, ctx, b)
			b.WriteByte(']')
		}
	case *GenericHint:
		encodeGeneric(v, ctx, b)
	case *ProtocolHint:
		b.WriteString("protocol:")
		b.WriteString(v.Name)
	case *RecordHint:
		encodeRecord(v, ctx, b)
	case *SchemaHint:
		b.WriteString("schema:")
		b.WriteString(v.digest)
	default:
		b.WriteString(fmt.Sprintf("unsupported:%T", h))
	}
}

func encodeGeneric(g *GenericHint, ctx *reprCtx, b *strings.Builder) {
	// A generic's supers may reach back to the generic itself; encode the
	// back-edge as a stable cycle marker instead of recursing forever.
	if id, busy := ctx.inProgress[Hint(g)]; busy {
		fmt.Fprintf(b, "<cycle:%d>", id)
		return
	}
	id := ctx.nextID
	ctx.nextID++
	ctx.inProgress[Hint(g)] = id
	defer delete(ctx.inProgress, Hint(g))

	b.WriteString("generic:")
	b.WriteString(g.Name)
	if g.Type != nil {
		b.WriteByte('(')
		b.WriteString(g.Type.String())
		b.WriteByte(')')
	}
	if len(g.Args) > 0 {
		b.WriteByte('[')
		for i, a := range g.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeHint(a, ctx, b)
		}
		b.WriteByte(']')
	}
	if len(g.Supers) > 0 {
		b.WriteByte('<')
		for i, s := range g.Supers {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeHint(s, ctx, b)
		}
		b.WriteByte('>')
	}
}

func encodeRecord(r *RecordHint, ctx *reprCtx, b *strings.Builder) {
	b.WriteString("record:")
	b.WriteString(r.Name)
	if r.Type != nil {
		b.WriteByte('(')
		b.WriteString(r.Type.String())
		b.WriteByte(')')
	}
	b.WriteByte('{')
	// Field order is declaration order for checking, but canonical order
	// for keying, so equal records collapse regardless of declaration.
	fields := make([]RecordField, len(r.Fields))
	copy(fields, r.Fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		if f.Optional {
			b.WriteByte('?')
		}
		b.WriteByte(':')
		encodeHint(f.Hint, ctx, b)
	}
	b.WriteByte('}')
}

// LiteralRepr renders a literal candidate tagged by type, so candidates that
// compare equal across types (true vs 1) never render identically.
func LiteralRepr(v any) string {
	switch c := v.(type) {
	case nil:
		return "n:null"
	case bool:
		return "b:" + strconv.FormatBool(c)
	case string:
		return "s:" + strconv.Quote(c)
	case int:
		return "i:" + strconv.Itoa(c)
	case int64:
		return "i64:" + strconv.FormatInt(c, 10)
	case uint:
		return "u:" + strconv.FormatUint(uint64(c), 10)
	case float64:
		return "f:" + strconv.FormatFloat(c, 'g', -1, 64)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
