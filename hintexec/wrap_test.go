package hintexec

import (
	"reflect"
	"strings"
	"testing"

	"github.com/typegate-dev/typegate/hint"
)

func wrapFunc(t *testing.T, fn any, sig *Signature, conf *Config, opts ...Option) any {
	t.Helper()
	w, err := Wrap(fn, sig, conf, opts...)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	return w
}

// recoverViolation invokes f and returns the violation it panicked with.
func recoverViolation(t *testing.T, f func()) (v error) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("call completed, expected a violation panic")
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %#v is not an error", r)
		}
		v = err
	}()
	f()
	return nil
}

func samePointer(a, b any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func TestWrapParamViolation(t *testing.T) {
	sig := &Signature{Params: []Param{{Name: "x", Hint: hint.Union(hint.Int, hint.String)}}}
	echo := func(x any) any { return x }
	w := wrapFunc(t, echo, sig, DefaultConfig(), WithLabel("function echo()")).(func(any) any)

	if got := w(3); got != 3 {
		t.Errorf("w(3) = %v, want 3", got)
	}
	if got := w("hi"); got != "hi" {
		t.Errorf(`w("hi") = %v, want "hi"`, got)
	}

	err := recoverViolation(t, func() { w(3.5) })
	pv, ok := err.(*ParamViolation)
	if !ok {
		t.Fatalf("panic error %T, want *ParamViolation", err)
	}
	msg := pv.Error()
	for _, frag := range []string{"function echo()", "parameter x", "violates type hint", "int | str"} {
		if !strings.Contains(msg, frag) {
			t.Errorf("violation %q does not contain %q", msg, frag)
		}
	}
}

func TestWrapReturnViolation(t *testing.T) {
	sig := &Signature{Returns: []any{hint.Int}}
	leak := func() any { return "oops" }
	w := wrapFunc(t, leak, sig, DefaultConfig()).(func() any)

	err := recoverViolation(t, func() { w() })
	rv, ok := err.(*ReturnViolation)
	if !ok {
		t.Fatalf("panic error %T, want *ReturnViolation", err)
	}
	if !strings.Contains(rv.Error(), "return") {
		t.Errorf("violation %q does not name the return", rv.Error())
	}
}

func TestWrapMultiReturnNames(t *testing.T) {
	sig := &Signature{Returns: []any{hint.Int, hint.String}}
	pair := func() (any, any) { return "x", 3 }
	w := wrapFunc(t, pair, sig, DefaultConfig()).(func() (any, any))

	err := recoverViolation(t, func() { w() })
	if !strings.Contains(err.Error(), "return") {
		t.Errorf("violation %q does not name a return", err.Error())
	}
	if v := err.(*ReturnViolation); v.Name != "return 0" {
		t.Errorf("violated return named %q, want %q", v.Name, "return 0")
	}
}

// The linear strategy catches an item the constant strategy never samples,
// and the violation blames the exact index.
func TestWrapLinearBlamesIndex(t *testing.T) {
	sig := &Signature{Params: []Param{{Name: "items", Hint: hint.List(hint.Int)}}}
	count := func(items []any) int { return len(items) }

	constant := wrapFunc(t, count, sig, DefaultConfig()).(func([]any) int)
	if got := constant([]any{1, 2, "3"}); got != 3 {
		t.Errorf("constant wrapper rejected a list its sample conforms on")
	}

	linear := wrapFunc(t, count, sig, MustConfig(ConfigSpec{Strategy: StrategyLinear})).(func([]any) int)
	err := recoverViolation(t, func() { linear([]any{1, 2, "3"}) })
	if !strings.Contains(err.Error(), "list item 2") {
		t.Errorf("violation %q does not blame item 2", err.Error())
	}
	if got := linear([]any{1, 2, 3}); got != 3 {
		t.Errorf("linear wrapper rejected a conforming list")
	}
}

func TestWrapVariadic(t *testing.T) {
	sig := &Signature{Params: []Param{{Name: "xs", Hint: hint.List(hint.Int)}}}
	sum := func(xs ...any) int { return len(xs) }
	conf := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	w := wrapFunc(t, sum, sig, conf).(func(...any) int)

	if got := w(1, 2, 3); got != 3 {
		t.Errorf("w(1, 2, 3) = %d, want 3", got)
	}
	err := recoverViolation(t, func() { w(1, "2") })
	if !strings.Contains(err.Error(), "parameter xs") {
		t.Errorf("violation %q does not blame the variadic parameter", err.Error())
	}
}

func TestWrapPassthrough(t *testing.T) {
	// Signatures flush to the annotation store even when decoration is
	// skipped, so each case gets its own func literal.
	offFn := func(x int) int { return x }
	off := wrapFunc(t, offFn, &Signature{Params: []Param{{Name: "x", Hint: hint.Int}}},
		MustConfig(ConfigSpec{Strategy: StrategyOff}))
	if !samePointer(off, offFn) {
		t.Errorf("StrategyOff did not return the callable unchanged")
	}

	// No signature and no stored annotations leaves fn unchanged.
	plainFn := func(x int) int { return x + 1 }
	plain := wrapFunc(t, plainFn, nil, DefaultConfig())
	if !samePointer(plain, plainFn) {
		t.Errorf("unannotated callable was wrapped")
	}

	// Every hint ignorable compiles to zero checks.
	ignFn := func(x int) int { return x * 2 }
	ignorable := wrapFunc(t, ignFn, &Signature{Params: []Param{{Name: "x", Hint: hint.Any}}},
		DefaultConfig())
	if !samePointer(ignorable, ignFn) {
		t.Errorf("all-ignorable signature was wrapped")
	}
}

// A signature passed to Wrap is written back to the annotation store, so a
// later decoration of the same callable can recover it.
func TestWrapStoresAnnotations(t *testing.T) {
	t.Cleanup(ClearAnnotations)
	sig := &Signature{Params: []Param{{Name: "x", Hint: hint.Int}}}
	fn := func(x any) any { return x }

	wrapFunc(t, fn, sig, DefaultConfig())

	rewrapped := wrapFunc(t, fn, nil, DefaultConfig()).(func(any) any)
	err := recoverViolation(t, func() { rewrapped("x") })
	if _, ok := err.(*ParamViolation); !ok {
		t.Errorf("stored signature not applied on re-wrap, got %T", err)
	}
}

func TestWrapArityMismatch(t *testing.T) {
	fn := func(x int) int { return x }
	sig := &Signature{Params: []Param{
		{Name: "x", Hint: hint.Int},
		{Name: "y", Hint: hint.Int},
	}}
	if _, err := Wrap(fn, sig, DefaultConfig()); err == nil {
		t.Fatalf("Wrap: want arity error")
	} else if !strings.Contains(err.Error(), "annotates 2 parameters") {
		t.Errorf("Wrap error %q does not report the arity mismatch", err)
	}
}

func TestWrapDecorationErrorHasContext(t *testing.T) {
	sig := &Signature{Params: []Param{{Name: "x", Hint: "int("}}}
	fn := func(x any) any { return x }
	_, err := Wrap(fn, sig, DefaultConfig())
	if err == nil {
		t.Fatalf("Wrap: want hint error for malformed expression")
	}
	var he *HintError
	if !asHintError(err, &he) {
		t.Fatalf("Wrap error %T, want *HintError", err)
	}
	if !strings.Contains(he.Error(), "parameter x") {
		t.Errorf("hint error %q does not name the parameter", he.Error())
	}
}

func asHintError(err error, out **HintError) bool {
	for err != nil {
		if he, ok := err.(*HintError); ok {
			*out = he
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestWrapWarnOnDecorationError(t *testing.T) {
	sig := &Signature{Params: []Param{{Name: "x", Hint: "int("}}}
	fn := func(x any) any { return x }
	conf := MustConfig(ConfigSpec{WarnOnDecorationError: true})
	w, err := Wrap(fn, sig, conf)
	if err != nil {
		t.Fatalf("Wrap: %v, want downgraded decoration error", err)
	}
	if !samePointer(w, fn) {
		t.Errorf("forgiving mode did not return the callable unchecked")
	}
}

// A method hinted with its own class name resolves through a forward
// reference that settles once the class completes.
func TestWrapSelfReferentialClass(t *testing.T) {
	type node struct {
		Label string
	}
	reg := NewRegistry()
	cd := BeginClassIn(reg, "Node")

	sig := &Signature{Params: []Param{{Name: "n", Hint: "Node"}}}
	visit := func(n any) string { return "ok" }
	w := wrapFunc(t, visit, sig, DefaultConfig(),
		WithClass(cd), WithRegistry(reg)).(func(any) string)

	cd.Complete(node{})

	if got := w(node{Label: "root"}); got != "ok" {
		t.Errorf("w(node) = %q, want ok", got)
	}
	err := recoverViolation(t, func() { w(3) })
	if !strings.Contains(err.Error(), "parameter n") {
		t.Errorf("violation %q does not blame parameter n", err.Error())
	}
}

// Wrapping a wrapper again yields a behaviorally equivalent callable.
func TestWrapIdempotentBehavior(t *testing.T) {
	sig := &Signature{Params: []Param{{Name: "x", Hint: hint.Int}}}
	fn := func(x any) any { return x }
	conf := DefaultConfig()
	once := wrapFunc(t, fn, sig, conf).(func(any) any)
	twice := wrapFunc(t, once, sig, conf).(func(any) any)

	if got := twice(7); got != 7 {
		t.Errorf("twice(7) = %v, want 7", got)
	}
	err := recoverViolation(t, func() { twice("x") })
	if _, ok := err.(*ParamViolation); !ok {
		t.Errorf("double wrapper panicked with %T, want *ParamViolation", err)
	}
}

func TestWrapCustomViolationMaker(t *testing.T) {
	conf := MustConfig(ConfigSpec{
		MakeParamViolation: func(v *Violation) error {
			return &HintError{Context: "custom", Err: &ParamViolation{Violation: *v}}
		},
	})

	sig := &Signature{Params: []Param{{Name: "x", Hint: hint.Int}}}
	fn := func(x any) any { return x }
	w := wrapFunc(t, fn, sig, conf).(func(any) any)
	err := recoverViolation(t, func() { w("x") })
	if !strings.Contains(err.Error(), "custom") {
		t.Errorf("maker not honored, got %T: %v", err, err)
	}
}

func TestMustWrapPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("MustWrap did not panic on decoration error")
		}
	}()
	sig := &Signature{Params: []Param{{Name: "x", Hint: "int("}}}
	MustWrap(func(x any) any { return x }, sig, DefaultConfig())
}

func TestCheckDoor(t *testing.T) {
	ok, err := Check(3, hint.Int, nil)
	if err != nil || !ok {
		t.Errorf("Check(3, int) = (%t, %v), want (true, nil)", ok, err)
	}
	ok, err = Check("3", hint.Int, nil)
	if err != nil || ok {
		t.Errorf(`Check("3", int) = (%t, %v), want (false, nil)`, ok, err)
	}

	if derr := Die(3, hint.Int, nil); derr != nil {
		t.Errorf("Die(3, int) = %v, want nil", derr)
	}
	derr := Die("3", hint.Int, nil)
	dv, isDoor := derr.(*DoorViolation)
	if !isDoor {
		t.Fatalf("Die error %T, want *DoorViolation", derr)
	}
	if !strings.Contains(dv.Error(), "violates type hint") {
		t.Errorf("door violation %q lacks the verdict", dv.Error())
	}
}
