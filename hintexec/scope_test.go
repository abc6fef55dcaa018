package hintexec

import (
	"reflect"
	"testing"

	"github.com/typegate-dev/typegate/hint"
)

func TestScopePrecedence(t *testing.T) {
	reg := NewRegistry()
	reg.Register("X", hint.Bool)

	cd := BeginClassIn(reg, "Outer")
	cd.Define("X", hint.Float)

	s := newScope(reg, []*ClassDef{cd},
		map[string]hint.Hint{"X": hint.String}, // locals
		map[string]hint.Hint{"X": hint.Int},    // type params
	)

	// Type parameters shadow everything.
	if h, ok := s.Lookup("X"); !ok || h != hint.Hint(hint.Int) {
		t.Errorf("Lookup(X) = %v, want type-param binding int", h)
	}

	// Drop the type-param layer: locals win.
	s = newScope(reg, []*ClassDef{cd}, map[string]hint.Hint{"X": hint.String}, nil)
	if h, _ := s.Lookup("X"); h != hint.Hint(hint.String) {
		t.Errorf("Lookup(X) = %v, want local binding str", h)
	}

	// Drop locals: class members win over the registry.
	s = newScope(reg, []*ClassDef{cd}, nil, nil)
	if h, _ := s.Lookup("X"); h != hint.Hint(hint.Float) {
		t.Errorf("Lookup(X) = %v, want class member float", h)
	}

	// Drop the class: registry wins over builtins.
	s = newScope(reg, nil, nil, nil)
	if h, _ := s.Lookup("X"); h != hint.Hint(hint.Bool) {
		t.Errorf("Lookup(X) = %v, want registry binding bool", h)
	}

	// Builtins are the floor.
	if h, ok := s.Lookup("int"); !ok || h != hint.Hint(hint.Int) {
		t.Errorf("Lookup(int) = %v, want builtin int", h)
	}
	if _, ok := s.Lookup("Nowhere"); ok {
		t.Errorf("Lookup(Nowhere) unexpectedly resolved")
	}
}

func TestScopeInnermostClassWins(t *testing.T) {
	reg := NewRegistry()
	outer := BeginClassIn(reg, "Outer")
	outer.Define("M", hint.Int)
	inner := BeginClassIn(reg, "Inner")
	inner.Define("M", hint.String)

	s := newScope(reg, []*ClassDef{outer, inner}, nil, nil)
	if h, _ := s.Lookup("M"); h != hint.Hint(hint.String) {
		t.Errorf("Lookup(M) = %v, want innermost member str", h)
	}
}

// A bare name matching a class still being defined must defer, even when a
// stale registration for the same name exists.
func TestScopeSelfReferenceDefers(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Node", hint.Int) // stale prior registration

	cd := BeginClassIn(reg, "Node")
	s := newScope(reg, []*ClassDef{cd}, nil, nil)

	h, err := s.resolveExpr("Node", false)
	if err != nil {
		t.Fatalf("resolveExpr: %v", err)
	}
	proxy, ok := h.(*hint.ForwardRef)
	if !ok {
		t.Fatalf("resolveExpr(Node) = %T, want deferred proxy", h)
	}
	if _, resolved := proxy.Resolved(); resolved {
		t.Errorf("proxy resolved before the class completed")
	}

	type node struct{ Child any }
	cd.Complete(node{})

	got, err := proxy.Resolve()
	if err != nil {
		t.Fatalf("Resolve after completion: %v", err)
	}
	if got != hint.Hint(reflect.TypeOf(node{})) {
		t.Errorf("Resolve = %v, want the completed type", got)
	}
}

// The deferral rule covers only top-level bare names: a qualified or
// embedded reference resolves eagerly.
func TestScopeDeferralIsNarrow(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Node", hint.Int)
	cd := BeginClassIn(reg, "Node")
	s := newScope(reg, []*ClassDef{cd}, nil, nil)

	h, err := s.resolveExpr("list[Node]", false)
	if err != nil {
		t.Fatalf("resolveExpr: %v", err)
	}
	sq, ok := h.(*hint.SeqHint)
	if !ok {
		t.Fatalf("resolveExpr(list[Node]) = %T, want *SeqHint", h)
	}
	// Inside a subscript the in-progress class name still defers through
	// a proxy (Lookup reports it unresolvable), but the bare-name fast
	// path is not what produced it.
	if _, isProxy := sq.Elem.(*hint.ForwardRef); !isProxy {
		t.Errorf("embedded in-progress name = %T, want proxy", sq.Elem)
	}
}

func TestScopeDeferCachesProxies(t *testing.T) {
	s := newScope(NewRegistry(), nil, nil, nil)
	if s.Defer("A") != s.Defer("A") {
		t.Errorf("repeated Defer(A) produced distinct proxies")
	}
	if s.Defer("A") == s.Defer("B") {
		t.Errorf("Defer(A) and Defer(B) share a proxy")
	}
}

func TestResolveExprSyntaxError(t *testing.T) {
	s := newScope(NewRegistry(), nil, nil, nil)
	if _, err := s.resolveExpr("list[", false); err == nil {
		t.Errorf("resolveExpr with syntax error: want error")
	}
	_, err := s.resolveExpr("list[", true)
	if err == nil {
		t.Fatalf("resolveExpr debug: want error")
	}
}

func TestRegistryRegisterType(t *testing.T) {
	reg := NewRegistry()
	type widget struct{ N int }
	name := reg.RegisterType(&widget{})
	if name != "widget" {
		t.Errorf("RegisterType = %q, want widget", name)
	}
	if _, ok := reg.Lookup("widget"); !ok {
		t.Errorf("registered type not resolvable")
	}
}
