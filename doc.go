// Package typegate wraps ordinary Go funcs with runtime type checks driven
// by hints: constraints richer than Go's static types, such as unions,
// literal sets, validated strings, structured records, and JSON Schemas.
//
// A hint is attached to a func through a Signature and compiled once, at
// wrap time, into a small check program. Calls through the wrapper run the
// compiled checks against arguments and returns; a rejected value panics
// with an error that names the callable, the parameter, the value, and the
// deepest failing sub-path:
//
//	sig := &typegate.Signature{
//		Params: []typegate.Param{{Name: "names", Hint: hint.List(hint.String)}},
//	}
//	greet := typegate.MustWrap(Greet, sig, nil).(func([]string) int)
//
// The default strategy checks containers in constant time by sampling;
// StrategyLinear scans them fully, under an advisory time budget, and
// StrategyOff disables wrapping entirely.
//
// Hints may also be written as strings ("int | list[str]", "Node") and are
// then resolved lazily against registered names, enclosing class
// definitions, and explicit locals, so self-referential and mutually
// recursive types need no forward declarations.
//
// The sub-packages carry the machinery: package hint defines the hint
// algebra and parser, package hintexec the compilation and execution
// engine, and pkg/hintfmt the display formatting used in violation
// messages.
package typegate
