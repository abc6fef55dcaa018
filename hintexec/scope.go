package hintexec

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/typegate-dev/typegate/hint"
)

// builtinScope is the lowest-precedence scope layer: the names the hint
// expression grammar does not already own.
var builtinScope = map[string]hint.Hint{
	"int":     hint.Int,
	"int64":   hint.Int64,
	"uint":    hint.Uint,
	"float":   hint.Float,
	"float64": hint.Float,
	"complex": hint.Complex,
	"bool":    hint.Bool,
	"str":     hint.String,
	"string":  hint.String,
	"bytes":   hint.Bytes,
	"None":    hint.None,
	"Any":     hint.Any,
	"object":  hint.Any,
}

// Registry is the module-globals analog: a process-level mapping from type
// name to hint, populated by callers as their types are declared.
type Registry struct {
	mu    sync.RWMutex
	names map[string]hint.Hint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]hint.Hint, 16)}
}

// DefaultRegistry is the registry Wrap and Register use unless a scope
// supplies another.
var DefaultRegistry = NewRegistry()

// Register binds a name to a hint (typically a reflect.Type). Later
// registrations overwrite earlier ones, matching module-reload semantics.
func (r *Registry) Register(name string, h hint.Hint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = h
}

// RegisterType binds the type's unqualified name to its reflect.Type.
func (r *Registry) RegisterType(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	r.Register(name, reflect.TypeOf(v))
	return name
}

// Lookup resolves a registered name.
func (r *Registry) Lookup(name string) (hint.Hint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.names[name]
	return h, ok
}

// Clear removes every registration. For test isolation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = make(map[string]hint.Hint, 16)
}

// ClassDef tracks a class (struct type) currently being defined: methods
// decorated inside it may reference its name before the type exists.
// Complete publishes the finished type to both the def and its registry.
type ClassDef struct {
	name     string
	registry *Registry

	mu      sync.RWMutex
	done    bool
	typ     reflect.Type
	members map[string]hint.Hint
}

// BeginClass opens a class definition against the default registry.
func BeginClass(name string) *ClassDef {
	return BeginClassIn(DefaultRegistry, name)
}

// BeginClassIn opens a class definition against an explicit registry.
func BeginClassIn(r *Registry, name string) *ClassDef {
	return &ClassDef{
		name:     name,
		registry: r,
		members:  make(map[string]hint.Hint, 4),
	}
}

// Name returns the class's unqualified name.
func (d *ClassDef) Name() string { return d.name }

// Define binds a class-body member name to a hint, visible to hints
// resolved inside this class.
func (d *ClassDef) Define(member string, h hint.Hint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[member] = h
}

// Complete finishes the definition with the concrete runtime type, making
// deferred self-references resolvable and registering the name.
func (d *ClassDef) Complete(v any) {
	t := reflect.TypeOf(v)
	d.mu.Lock()
	d.done = true
	d.typ = t
	d.mu.Unlock()
	if d.registry != nil {
		d.registry.Register(d.name, t)
	}
}

// Hint returns the completed type, or reports that the class is still
// being defined.
func (d *ClassDef) Hint() (hint.Hint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.done {
		return nil, false
	}
	return d.typ, true
}

func (d *ClassDef) member(name string) (hint.Hint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.members[name]
	return h, ok
}

// Scope is the composite lexical namespace visible to one annotated
// callable. Precedence, highest to lowest: type-parameter bindings, closure
// locals, class-body members (most-nested class first), registry globals,
// builtins. One scope is built per call-metadata record and reused by every
// hint on that callable.
type Scope struct {
	typeParams map[string]hint.Hint
	locals     map[string]hint.Hint
	classes    []*ClassDef // root first; looked up innermost first
	registry   *Registry

	mu      sync.Mutex
	proxies map[string]*hint.ForwardRef
}

func newScope(registry *Registry, classes []*ClassDef, locals, typeParams map[string]hint.Hint) *Scope {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &Scope{
		typeParams: typeParams,
		locals:     locals,
		classes:    classes,
		registry:   registry,
		proxies:    make(map[string]*hint.ForwardRef, 4),
	}
}

// Lookup resolves a name through the scope layers in precedence order.
func (s *Scope) Lookup(name string) (hint.Hint, bool) {
	if h, ok := s.typeParams[name]; ok {
		return h, true
	}
	if h, ok := s.locals[name]; ok {
		return h, true
	}
	for i := len(s.classes) - 1; i >= 0; i-- {
		cd := s.classes[i]
		if h, ok := cd.member(name); ok {
			return h, true
		}
		if cd.name == name {
			if h, ok := cd.Hint(); ok {
				return h, true
			}
			// Still being defined; the caller defers through a proxy.
			return nil, false
		}
	}
	if h, ok := s.registry.Lookup(name); ok {
		return h, true
	}
	if h, ok := builtinScope[name]; ok {
		return h, true
	}
	return nil, false
}

// Defer returns the proxy standing in for a name that cannot (or must not)
// be resolved yet. Proxies are cached per scope and name, so repeated
// references share one memoized resolution cell.
func (s *Scope) Defer(name string) *hint.ForwardRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.proxies[name]; ok {
		return p
	}
	p := hint.NewRef(name, s.Lookup)
	s.proxies[name] = p
	return p
}

// resolveExpr evaluates a stringified hint against the scope. Unresolvable
// names are not errors; they defer through proxies. Syntax errors raise,
// embedding the offending text and, in debug mode, the composite scope.
func (s *Scope) resolveExpr(expr string, debug bool) (hint.Hint, error) {
	// Self-reference during definition: a bare name matching an enclosing
	// class currently being defined must NOT bind to any same-named stale
	// registration; it stays deferred until the class completes. This
	// deliberately covers only top-level unqualified names.
	if isBareName(expr) {
		for i := len(s.classes) - 1; i >= 0; i-- {
			if s.classes[i].name == expr {
				if _, done := s.classes[i].Hint(); !done {
					return s.Defer(expr), nil
				}
				break
			}
		}
	}

	h, err := hint.Parse(expr, s.Lookup)
	if err != nil {
		if debug {
			return nil, fmt.Errorf("%w (scope: %s)", err, s.dump())
		}
		return nil, err
	}
	return deferUnresolved(h, s), nil
}

// deferUnresolved replaces raw name strings the parser left unresolved with
// scope-bound proxies, descending into compound hints.
func deferUnresolved(h hint.Hint, s *Scope) hint.Hint {
	switch v := h.(type) {
	case string:
		return s.Defer(v)
	case *hint.UnionHint:
		members := make([]hint.Hint, len(v.Members))
		changed := false
		for i, m := range v.Members {
			members[i] = deferUnresolved(m, s)
			changed = changed || !identical(members[i], m)
		}
		if changed {
			return hint.Union(members...)
		}
	case *hint.SeqHint:
		if e := deferUnresolved(v.Elem, s); !identical(e, v.Elem) {
			if v.Kind == hint.SeqSet {
				return hint.Set(e)
			}
			return hint.List(e)
		}
	case *hint.MapHint:
		k := deferUnresolved(v.Key, s)
		val := deferUnresolved(v.Value, s)
		if !identical(k, v.Key) || !identical(val, v.Value) {
			return hint.Map(k, val)
		}
	case *hint.TupleHint:
		items := make([]hint.Hint, len(v.Items))
		changed := false
		for i, it := range v.Items {
			items[i] = deferUnresolved(it, s)
			changed = changed || !identical(items[i], it)
		}
		if changed {
			if v.Variadic {
				return hint.Tuple(items[0], hint.Ellipsis)
			}
			return hint.Tuple(items...)
		}
	}
	return h
}

func identical(a, b hint.Hint) bool { return a == b }

func isBareName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

// dump renders the scope for debug-mode resolution errors.
func (s *Scope) dump() string {
	var parts []string
	appendNames := func(layer string, names []string) {
		if len(names) == 0 {
			return
		}
		sort.Strings(names)
		parts = append(parts, layer+"{"+strings.Join(names, ",")+"}")
	}
	tp := make([]string, 0, len(s.typeParams))
	for k := range s.typeParams {
		tp = append(tp, k)
	}
	appendNames("typeparams", tp)
	lo := make([]string, 0, len(s.locals))
	for k := range s.locals {
		lo = append(lo, k)
	}
	appendNames("locals", lo)
	for i := len(s.classes) - 1; i >= 0; i-- {
		parts = append(parts, "class{"+s.classes[i].name+"}")
	}
	s.registry.mu.RLock()
	rg := make([]string, 0, len(s.registry.names))
	for k := range s.registry.names {
		rg = append(rg, k)
	}
	s.registry.mu.RUnlock()
	appendNames("globals", rg)
	parts = append(parts, "builtins{...}")
	return strings.Join(parts, " > ")
}
