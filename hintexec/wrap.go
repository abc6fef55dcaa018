package hintexec

import (
	"fmt"
	"reflect"

	"github.com/typegate-dev/typegate/hint"
)

// Option adjusts one decoration.
type Option func(*wrapOptions)

type wrapOptions struct {
	classes    []*ClassDef
	locals     map[string]hint.Hint
	typeParams map[string]hint.Hint
	registry   *Registry
	label      string
	store      AnnotationStore
}

// WithClass appends a class definition to the decoration's class stack,
// outermost first. Needed for Self hints and member references.
func WithClass(cd *ClassDef) Option {
	return func(o *wrapOptions) { o.classes = append(o.classes, cd) }
}

// WithLocals supplies the enclosing function's hint-relevant locals, since
// closure scopes cannot be introspected.
func WithLocals(locals map[string]hint.Hint) Option {
	return func(o *wrapOptions) { o.locals = locals }
}

// WithTypeParams binds type parameters for the decoration.
func WithTypeParams(params map[string]hint.Hint) Option {
	return func(o *wrapOptions) { o.typeParams = params }
}

// WithRegistry substitutes the global-name registry, mainly for tests.
func WithRegistry(r *Registry) Option {
	return func(o *wrapOptions) { o.registry = r }
}

// WithLabel overrides the derived callable label in violations and logs.
func WithLabel(label string) Option {
	return func(o *wrapOptions) { o.label = label }
}

// WithAnnotations substitutes the annotation store.
func WithAnnotations(store AnnotationStore) Option {
	return func(o *wrapOptions) { o.store = store }
}

// paramCheck is one compiled parameter or return check.
type paramCheck struct {
	index int
	name  string
	hint  hint.Hint
	san   *Sanified
	prog  *Program
}

// Wrap compiles fn's annotated signature into checks and returns a wrapper
// of identical type that runs them on every call. Parameter and return
// violations surface as panics carrying the configured violation errors,
// the closest Go analog to raising from inside a fixed signature.
//
// Wrapping is idempotent in effect: wrapping an already returned wrapper
// with the same signature and configuration produces a behaviorally
// equivalent callable. With nothing to check, StrategyOff, or a nil
// signature and no stored annotations, fn is returned unchanged.
func Wrap(fn any, sig *Signature, conf *Config, opts ...Option) (any, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	var o wrapOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = DefaultAnnotations
	}

	meta := acquireMeta()
	defer releaseMeta(meta)
	if err := meta.init(fn, fn, conf, o.classes); err != nil {
		return nil, err
	}
	if o.locals != nil {
		meta.Locals = o.locals
	}
	if o.typeParams != nil {
		meta.TypeParams = o.typeParams
	}
	if o.registry != nil {
		meta.Registry = o.registry
	}
	if o.label != "" {
		meta.Label = o.label
	}

	if sig != nil {
		meta.SetSignature(sig.clone())
	} else {
		stored, err := o.store.Get(fn)
		if err != nil {
			return nil, err
		}
		meta.Sig = stored
	}
	if err := meta.flushAnnotations(o.store); err != nil {
		return nil, err
	}
	if meta.Sig == nil || conf.Strategy() == StrategyOff {
		return fn, nil
	}

	wrapped, err := compileWrapper(meta, conf)
	if err == nil {
		return wrapped, nil
	}
	// A decoration error is the author's bug, not the caller's. The
	// forgiving mode logs it and leaves the callable unchecked instead of
	// failing program startup. Internal errors are never downgraded.
	if _, internal := err.(*InternalError); !internal && conf.WarnOnDecorationError() {
		meta.log.Warnf("decoration skipped: %v", err)
		return fn, nil
	}
	return nil, err
}

// MustWrap is Wrap, panicking on decoration error. For package-level use:
//
//	var Greet = hintexec.MustWrap(greet, sig, conf).(func(string) string)
func MustWrap(fn any, sig *Signature, conf *Config, opts ...Option) any {
	w, err := Wrap(fn, sig, conf, opts...)
	if err != nil {
		panic(err)
	}
	return w
}

func compileWrapper(meta *CallMeta, conf *Config) (any, error) {
	ft := meta.ft
	sig := meta.Sig

	if len(sig.Params) > ft.NumIn() {
		return nil, fmt.Errorf("%s: signature annotates %d parameters, func takes %d",
			meta.Label, len(sig.Params), ft.NumIn())
	}
	if len(sig.Returns) > ft.NumOut() {
		return nil, fmt.Errorf("%s: signature annotates %d returns, func yields %d",
			meta.Label, len(sig.Returns), ft.NumOut())
	}

	var params, returns []paramCheck
	for i, p := range sig.Params {
		if p.Hint == nil {
			continue
		}
		san, err := SanifyRoot(p.Hint, meta, p.Name, false)
		if err != nil {
			return nil, err
		}
		if san.Ignorable {
			continue
		}
		prog, err := Synthesize(san, conf)
		if err != nil {
			return nil, err
		}
		params = append(params, paramCheck{index: i, name: p.Name, hint: p.Hint, san: san, prog: prog})
	}
	for i, rh := range sig.Returns {
		if rh == nil {
			continue
		}
		name := returnName(i, len(sig.Returns))
		san, err := SanifyRoot(rh, meta, name, true)
		if err != nil {
			return nil, err
		}
		if san.Ignorable {
			continue
		}
		prog, err := Synthesize(san, conf)
		if err != nil {
			return nil, err
		}
		returns = append(returns, paramCheck{index: i, name: name, hint: rh, san: san, prog: prog})
	}
	if len(params) == 0 && len(returns) == 0 {
		return meta.Func, nil
	}

	meta.log.Debugf("compiled %d parameter and %d return checks", len(params), len(returns))

	// The meta record goes back to the pool when decoration ends; the
	// closure must not retain it.
	fv := meta.fv
	label := meta.Label
	variadic := ft.IsVariadic()

	wrapper := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		for _, c := range params {
			enforce(c, args[c.index].Interface(), label, conf, ViolationParam)
		}
		var outs []reflect.Value
		if variadic {
			outs = fv.CallSlice(args)
		} else {
			outs = fv.Call(args)
		}
		for _, c := range returns {
			enforce(c, outs[c.index].Interface(), label, conf, ViolationReturn)
		}
		return outs
	})
	return wrapper.Interface(), nil
}

// enforce runs one compiled check and panics with the configured violation
// error on rejection. Rejections are diagnosed by structural re-walk; a
// re-walk that disagrees with the compiled program panics with a
// DesyncError instead of blaming the value.
func enforce(c paramCheck, v any, label string, conf *Config, kind ViolationKind) {
	ok, err := RunProgram(c.prog, v, conf)
	if err != nil {
		panic(err)
	}
	if ok {
		return
	}
	cause, conforms, err := Diagnose(c.san, v, conf)
	if err != nil {
		panic(err)
	}
	if conforms {
		panic(&DesyncError{Label: label, Name: c.name, Value: v, Hint: c.hint})
	}
	viol := &Violation{
		Kind:      kind,
		Label:     label,
		Name:      c.name,
		Value:     v,
		Hint:      c.hint,
		Cause:     cause,
		ReprWidth: conf.ReprWidth(),
	}
	maker := conf.paramViolation()
	if kind == ViolationReturn {
		maker = conf.returnViolation()
	}
	panic(maker(viol))
}

func returnName(i, n int) string {
	if n == 1 {
		return "return"
	}
	return fmt.Sprintf("return %d", i)
}

// Check reports whether a value satisfies a hint under conf, compiling and
// caching the hint's program on first use. The standalone door into the
// engine: no callable, no panic.
func Check(v any, h hint.Hint, conf *Config) (bool, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	s, err := SanifyLoose(hint.CoerceRoot(h, "", false), conf)
	if err != nil {
		return false, err
	}
	if s.Ignorable {
		return true, nil
	}
	p, err := Synthesize(s, conf)
	if err != nil {
		return false, err
	}
	return RunProgram(p, v, conf)
}

// Die is Check returning the configured violation error on rejection and
// nil on conformance.
func Die(v any, h hint.Hint, conf *Config) error {
	if conf == nil {
		conf = DefaultConfig()
	}
	s, err := SanifyLoose(hint.CoerceRoot(h, "", false), conf)
	if err != nil {
		return err
	}
	if s.Ignorable {
		return nil
	}
	p, err := Synthesize(s, conf)
	if err != nil {
		return err
	}
	ok, err := RunProgram(p, v, conf)
	if err != nil || ok {
		return err
	}
	cause, conforms, err := Diagnose(s, v, conf)
	if err != nil {
		return err
	}
	if conforms {
		return &DesyncError{Label: "value", Name: "", Value: v, Hint: h}
	}
	return conf.doorViolation()(&Violation{
		Kind:      ViolationDoor,
		Value:     v,
		Hint:      h,
		Cause:     cause,
		ReprWidth: conf.ReprWidth(),
	})
}
