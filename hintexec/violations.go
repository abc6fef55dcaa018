// Package hintexec is the type-checking engine: it resolves, sanifies, and
// compiles hints into check programs, executes them against call arguments
// and returns, and renders violation diagnoses.
package hintexec

import (
	"fmt"

	"github.com/typegate-dev/typegate/hint"
	"github.com/typegate-dev/typegate/pkg/hintfmt"
)

// ViolationKind distinguishes the three user-visible violation flavors.
type ViolationKind int

const (
	ViolationParam ViolationKind = iota
	ViolationReturn
	ViolationDoor
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationParam:
		return "parameter"
	case ViolationReturn:
		return "return"
	default:
		return "value"
	}
}

// Violation carries everything needed to render a type violation as one
// coherent sentence: the callable label, the offending parameter or return
// name, the value, the hint, and the diagnosed sub-path cause.
type Violation struct {
	Kind      ViolationKind
	Label     string // callable label, e.g. "function main.Greet()"
	Name      string // parameter name, or "return"
	Value     any
	Hint      hint.Hint
	Cause     string
	ReprWidth int
}

func (v *Violation) sentence() string {
	valueRepr := hintfmt.FormatValue(v.Value, v.ReprWidth)
	subject := v.Kind.String()
	if v.Kind == ViolationParam {
		subject = "parameter " + v.Name
	}
	where := ""
	if v.Label != "" {
		where = v.Label + " "
	}
	s := fmt.Sprintf("%s%s=%s violates type hint %s",
		where, subject, valueRepr, hintfmt.Format(v.Hint))
	if v.Cause != "" {
		s += ", as " + v.Cause
	}
	return s + "."
}

// ParamViolation is the default parameter-violation error.
type ParamViolation struct{ Violation }

func (e *ParamViolation) Error() string { return e.sentence() }

// ReturnViolation is the default return-violation error.
type ReturnViolation struct{ Violation }

func (e *ReturnViolation) Error() string { return e.sentence() }

// DoorViolation is the default violation for standalone predicate-style
// checks (Check/Die).
type DoorViolation struct{ Violation }

func (e *DoorViolation) Error() string { return e.sentence() }

// ViolationMaker converts a diagnosed violation into the error the wrapper
// raises. Configurations may substitute arbitrary constructors.
type ViolationMaker func(*Violation) error

func defaultParamViolation(v *Violation) error  { return &ParamViolation{Violation: *v} }
func defaultReturnViolation(v *Violation) error { return &ReturnViolation{Violation: *v} }
func defaultDoorViolation(v *Violation) error   { return &DoorViolation{Violation: *v} }

// ConfigError is a user-configuration error, raised at configuration
// construction time and never deferred to check time.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "typegate config: " + e.Msg }

// HintError is a hint-definition error (malformed or unsupported hint,
// unresolvable forward reference), raised at decoration time and
// attributable to a specific parameter or return by name.
type HintError struct {
	Context string // e.g. "function main.Greet() parameter x"
	Err     error
}

func (e *HintError) Error() string {
	if e.Context == "" {
		return e.Err.Error()
	}
	return e.Context + ": " + e.Err.Error()
}

func (e *HintError) Unwrap() error { return e.Err }

const reportInvite = "; this is a bug in typegate itself, please report it at https://github.com/typegate-dev/typegate/issues"

// InternalError is an internal consistency error: the classification and
// synthesis rule tables drifted out of sync, or similar. Never downgraded.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "typegate internal: " + e.Msg + reportInvite }

// DesyncError reports that diagnosis re-derivation concluded a value
// satisfies its hint even though the generated check rejected it. It
// indicates a bug in the synthesis engine, not in the caller's value.
type DesyncError struct {
	Label string
	Name  string
	Value any
	Hint  hint.Hint
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf(
		"typegate internal: generated check for %s %s rejected a value that satisfies hint %s%s",
		e.Label, e.Name, hintfmt.Format(e.Hint), reportInvite)
}

// NotAnnotatableError reports a target the annotation store cannot
// introspect (a non-func, or a nil func value).
type NotAnnotatableError struct {
	Target any
}

func (e *NotAnnotatableError) Error() string {
	return fmt.Sprintf("typegate: target %T is not annotatable", e.Target)
}
