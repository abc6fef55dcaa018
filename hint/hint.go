// Package hint models runtime type hints: the opaque values the rest of the
// engine classifies, coerces, and compiles into check programs.
//
// A Hint is one of:
//   - a reflect.Type (a plain type constraint),
//   - a string (a forward reference, resolved lazily against a scope),
//   - a *ForwardRef proxy produced during scope resolution,
//   - one of the descriptor values built by the constructors in this package
//     (Union, List, Tuple, Map, Literal, Annotated, ...),
//   - one of the sentinel values (Any, None, Self, NotImplemented).
//
// Hints are never mutated in place. Every normalization produces a new hint
// value; canonicalization happens through Coerce.
package hint

import (
	"fmt"
	"reflect"
	"sync"
)

// Hint is an opaque type constraint. See the package documentation for the
// set of values the engine accepts.
type Hint = any

// Special is a sentinel hint identified by pointer. The package-level
// sentinels below are the only instances.
type Special struct {
	name string
}

func (s *Special) String() string { return s.name }

var (
	// Any matches every value and carries no constraint.
	Any Hint = &Special{name: "Any"}

	// None matches only nil.
	None Hint = &Special{name: "None"}

	// Self refers to the class currently being defined. Valid only inside
	// a class decoration context.
	Self Hint = &Special{name: "Self"}

	// Ellipsis marks a variadic tuple, as in Tuple(Int, Ellipsis).
	Ellipsis Hint = &Special{name: "..."}

	// NotImplemented is the sentinel type accepted by widened return hints
	// of symmetric comparison methods. Such methods return
	// NotImplementedValue to signal an unsupported comparison.
	NotImplemented Hint = &Special{name: "NotImplemented"}
)

// NotImplementedValue is the runtime value matching the NotImplemented hint.
var NotImplementedValue = &Special{name: "<NotImplemented>"}

// Primitive type hints. These are ordinary reflect.Type hints; they exist
// so callers and the expression parser share one canonical instance.
var (
	Int     = reflect.TypeOf(int(0))
	Int64   = reflect.TypeOf(int64(0))
	Uint    = reflect.TypeOf(uint(0))
	Float   = reflect.TypeOf(float64(0))
	Complex = reflect.TypeOf(complex128(0))
	Bool    = reflect.TypeOf(false)
	String  = reflect.TypeOf("")
	Bytes   = reflect.TypeOf([]byte(nil))
)

// UnionHint constrains a value to satisfy at least one member, tried in
// declared order.
type UnionHint struct {
	Members []Hint
}

// Union builds a union hint. Nested unions are flattened; a zero-member
// union is accepted here and rejected by classification, so the error can
// carry decoration context.
func Union(members ...Hint) Hint {
	flat := make([]Hint, 0, len(members))
	for _, m := range members {
		if u, ok := m.(*UnionHint); ok {
			flat = append(flat, u.Members...)
			continue
		}
		flat = append(flat, m)
	}
	return &UnionHint{Members: flat}
}

// Optional is shorthand for Union(h, None).
func Optional(h Hint) Hint { return Union(h, None) }

// SeqKind distinguishes the sequence container flavors.
type SeqKind int

const (
	SeqList SeqKind = iota
	SeqSet
)

func (k SeqKind) String() string {
	if k == SeqSet {
		return "set"
	}
	return "list"
}

// SeqHint constrains a value to a sequence (slice or array) whose items
// satisfy Elem. SeqSet additionally requires item uniqueness under the
// linear strategy.
type SeqHint struct {
	Kind SeqKind
	Elem Hint
}

// List builds a sequence hint over slices and arrays.
func List(elem Hint) Hint { return &SeqHint{Kind: SeqList, Elem: elem} }

// Set builds a sequence hint whose items must additionally be unique.
func Set(elem Hint) Hint { return &SeqHint{Kind: SeqSet, Elem: elem} }

// MapHint constrains a value to a map whose keys and values satisfy the
// respective hints.
type MapHint struct {
	Key   Hint
	Value Hint
}

// Map builds a mapping hint.
func Map(key, value Hint) Hint { return &MapHint{Key: key, Value: value} }

// TupleHint constrains a value to a sequence of fixed per-slot hints, or,
// when Variadic is set, to a homogeneous sequence of Items[0].
type TupleHint struct {
	Items    []Hint
	Variadic bool
}

// Tuple builds a tuple hint. A trailing Ellipsis marks the tuple variadic:
// Tuple(Int, Ellipsis) matches any sequence of ints.
func Tuple(items ...Hint) Hint {
	if n := len(items); n == 2 && items[1] == Ellipsis {
		return &TupleHint{Items: items[:1], Variadic: true}
	}
	return &TupleHint{Items: items}
}

// LiteralHint constrains a value to equal one of a fixed set of candidates.
// Candidates are matched by type first and only then by equality, so a bool
// never satisfies an integer literal.
type LiteralHint struct {
	Values []any
}

// Literal builds a literal hint from the given candidate values.
func Literal(values ...any) Hint { return &LiteralHint{Values: values} }

// AnnotatedHint wraps a base hint with validator predicates, checked in
// declaration order after the base.
type AnnotatedHint struct {
	Base       Hint
	Predicates []*Predicate
}

// Annotated attaches predicates to a base hint. With no predicates the
// wrapper reduces to the base during sanification.
func Annotated(base Hint, preds ...*Predicate) Hint {
	return &AnnotatedHint{Base: base, Predicates: preds}
}

// NewTypeHint is a named alias of a base hint. The check is the base's;
// the name survives into diagnostics.
type NewTypeHint struct {
	Name string
	Base Hint
}

// NewType builds a named alias hint.
func NewType(name string, base Hint) Hint {
	return &NewTypeHint{Name: name, Base: base}
}

// TypeVarHint is a type parameter. Unbound it checks its Bound (or nothing);
// bound through a generic subscription it checks the binding.
type TypeVarHint struct {
	Name  string
	Bound Hint
}

// TypeVar declares an unbounded type parameter.
func TypeVar(name string) *TypeVarHint { return &TypeVarHint{Name: name} }

// BoundedTypeVar declares a type parameter with an upper bound.
func BoundedTypeVar(name string, bound Hint) *TypeVarHint {
	return &TypeVarHint{Name: name, Bound: bound}
}

// GenericHint is a user-defined generic: a nominal runtime type plus the
// pseudo-superclass hints its values must additionally satisfy. A generic
// with type parameters is a factory; Of produces the subscripted hint.
type GenericHint struct {
	Name   string
	Type   reflect.Type
	Params []*TypeVarHint
	Supers []Hint
	Args   []Hint
	origin *GenericHint
}

// NewGeneric declares a generic. rtype may be nil for a pure marker factory,
// which carries no constraint of its own.
func NewGeneric(name string, rtype reflect.Type, supers ...Hint) *GenericHint {
	return &GenericHint{Name: name, Type: rtype, Supers: supers}
}

// WithParams returns a copy of the generic declaring the given type
// parameters, in subscription order.
func (g *GenericHint) WithParams(params ...*TypeVarHint) *GenericHint {
	c := *g
	c.Params = params
	return &c
}

// Of subscripts the generic with type arguments, one per declared parameter.
func (g *GenericHint) Of(args ...Hint) Hint {
	c := *g
	c.Args = args
	c.origin = g
	return &c
}

// Origin returns the unsubscripted factory this hint was subscripted from,
// or the hint itself.
func (g *GenericHint) Origin() *GenericHint {
	if g.origin != nil {
		return g.origin
	}
	return g
}

// ProtocolHint is a structural constraint: the value's type must implement
// the interface.
type ProtocolHint struct {
	Name  string
	Iface reflect.Type
}

// Protocol declares a structural hint over an interface type.
func Protocol(name string, iface reflect.Type) (Hint, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("hint: protocol %q requires an interface type, got %v", name, iface)
	}
	return &ProtocolHint{Name: name, Iface: iface}, nil
}

// MustProtocol is Protocol, panicking on error. For package-level hint
// declarations.
func MustProtocol(name string, iface reflect.Type) Hint {
	h, err := Protocol(name, iface)
	if err != nil {
		panic(err)
	}
	return h
}

// RecordField is one field of a record hint.
type RecordField struct {
	Name     string
	Hint     Hint
	Optional bool
}

// RecordHint is a structured-record constraint: named fields with per-field
// hints, checked against struct fields or string-keyed map entries. When it
// appears among a generic's pseudo-superclasses it is extrinsic: its check
// depends on the concrete subscripted subclass.
type RecordHint struct {
	Name   string
	Type   reflect.Type
	Fields []RecordField
}

// Record declares a record hint. rtype may be nil, in which case only
// string-keyed maps are accepted.
func Record(name string, rtype reflect.Type, fields ...RecordField) Hint {
	return &RecordHint{Name: name, Type: rtype, Fields: fields}
}

// ForwardRef is a lazily-resolved placeholder for a not-yet-defined name.
// Resolution runs at most once, on first use, and the result is cached for
// the proxy's lifetime.
type ForwardRef struct {
	Name string

	lookup   func(name string) (Hint, bool)
	once     sync.Once
	resolved Hint
	err      error
}

// NewRef builds a proxy deferring resolution of name to lookup.
func NewRef(name string, lookup func(name string) (Hint, bool)) *ForwardRef {
	return &ForwardRef{Name: name, lookup: lookup}
}

// Resolve performs the deferred lookup. The first call's outcome, success
// or failure, is memoized.
func (r *ForwardRef) Resolve() (Hint, error) {
	r.once.Do(func() {
		if r.lookup == nil {
			r.err = fmt.Errorf("hint: forward reference %q has no resolution scope", r.Name)
			return
		}
		h, ok := r.lookup(r.Name)
		if !ok {
			r.err = fmt.Errorf("hint: forward reference %q is not defined", r.Name)
			return
		}
		r.resolved = h
	})
	return r.resolved, r.err
}

// Resolved reports the memoized referent without forcing resolution.
func (r *ForwardRef) Resolved() (Hint, bool) {
	if r.resolved == nil {
		return nil, false
	}
	return r.resolved, true
}
