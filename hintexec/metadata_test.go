package hintexec

import (
	"strings"
	"testing"

	"github.com/typegate-dev/typegate/hint"
)

func newMeta(t *testing.T, fn any, classes ...*ClassDef) *CallMeta {
	t.Helper()
	m := acquireMeta()
	t.Cleanup(func() { releaseMeta(m) })
	if err := m.init(fn, fn, DefaultConfig(), classes); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m
}

func TestMetaPoolReuse(t *testing.T) {
	m1 := acquireMeta()
	releaseMeta(m1)
	m2 := acquireMeta()
	defer releaseMeta(m2)
	if m1 != m2 {
		t.Errorf("pool allocated a fresh record with a free one available")
	}
	if m2.ID != "" || m2.Func != nil || m2.Sig != nil {
		t.Errorf("released record retained state: %+v", m2)
	}
}

func TestMetaInitValidation(t *testing.T) {
	fn := func() {}
	m := acquireMeta()
	defer releaseMeta(m)

	testCases := []struct {
		name    string
		fn      any
		conf    *Config
		classes []*ClassDef
		frag    string
	}{
		{"nil target", nil, DefaultConfig(), nil, "cannot decorate nil"},
		{"non-func", 42, DefaultConfig(), nil, "want a func"},
		{"nil config", fn, nil, nil, "must come from NewConfig"},
		{"uninterned config", fn, &Config{}, nil, "must come from NewConfig"},
		{"nil class entry", fn, DefaultConfig(), []*ClassDef{nil}, "class stack entry 0 is nil"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.init(tc.fn, tc.fn, tc.conf, tc.classes)
			if err == nil {
				t.Fatalf("init: want error")
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Errorf("init error %q does not contain %q", err, tc.frag)
			}
		})
	}
}

func TestMetaDecorationIDs(t *testing.T) {
	fn := func() {}
	a := newMeta(t, fn)
	b := newMeta(t, fn)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("decoration IDs not unique: %q vs %q", a.ID, b.ID)
	}
}

func TestMetaLabels(t *testing.T) {
	fn := func() {}
	free := newMeta(t, fn)
	if !strings.HasPrefix(free.Label, "function ") || !strings.HasSuffix(free.Label, "()") {
		t.Errorf("free function label %q", free.Label)
	}

	cd := BeginClassIn(NewRegistry(), "Greeter")
	method := newMeta(t, fn, cd)
	if !strings.HasPrefix(method.Label, "method ") {
		t.Errorf("method label %q", method.Label)
	}
}

func TestMetaMethodName(t *testing.T) {
	fn := func() {}
	free := newMeta(t, fn)
	if got := free.methodName(); got != "" {
		t.Errorf("methodName outside a class = %q, want empty", got)
	}

	cd := BeginClassIn(NewRegistry(), "Vec")
	m := newMeta(t, fn, cd)
	m.Label = "method demo.Vec.Equal()"
	if got := m.methodName(); got != "Equal" {
		t.Errorf("methodName = %q, want Equal", got)
	}
}

func TestMetaScopeMemoized(t *testing.T) {
	m := newMeta(t, func() {})
	if m.Scope() != m.Scope() {
		t.Errorf("Scope rebuilt on second call")
	}
}

func TestAnnotationStore(t *testing.T) {
	t.Cleanup(ClearAnnotations)
	fn := func(x int) int { return x }
	sig := &Signature{Params: []Param{{Name: "x", Hint: hint.Int}}}

	if got, err := DefaultAnnotations.Get(fn); err != nil || got != nil {
		t.Fatalf("Get before Set = (%v, %v), want (nil, nil)", got, err)
	}
	if err := DefaultAnnotations.Set(fn, sig); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := DefaultAnnotations.Get(fn)
	if err != nil || got == nil {
		t.Fatalf("Get after Set = (%v, %v)", got, err)
	}
	if got == sig {
		t.Errorf("store returned the caller's signature instead of a copy")
	}
	if len(got.Params) != 1 || got.Params[0].Name != "x" {
		t.Errorf("stored signature mangled: %+v", got)
	}

	ClearAnnotations()
	if got, _ := DefaultAnnotations.Get(fn); got != nil {
		t.Errorf("Get after ClearAnnotations = %+v, want nil", got)
	}
}

func TestAnnotationStoreRejectsNonFuncs(t *testing.T) {
	if _, err := DefaultAnnotations.Get(42); err == nil {
		t.Errorf("Get(42): want *NotAnnotatableError")
	} else if _, ok := err.(*NotAnnotatableError); !ok {
		t.Errorf("Get(42) error %T, want *NotAnnotatableError", err)
	}
	if err := DefaultAnnotations.Set(nil, &Signature{}); err == nil {
		t.Errorf("Set(nil): want *NotAnnotatableError")
	}
	var nilFn func()
	if _, err := DefaultAnnotations.Get(nilFn); err == nil {
		t.Errorf("Get(nil func): want *NotAnnotatableError")
	}
}
