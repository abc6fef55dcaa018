package typegate

import (
	"github.com/typegate-dev/typegate/hint"
	"github.com/typegate-dev/typegate/hintexec"
)

// The facade re-exports the handful of names most programs need, so casual
// use reads typegate.Wrap / typegate.Check without importing the engine
// packages directly.

type (
	// Config is an interned, immutable engine configuration.
	Config = hintexec.Config
	// ConfigSpec is the mutable builder consumed by NewConfig.
	ConfigSpec = hintexec.ConfigSpec
	// Signature maps a func's parameters and returns to hints.
	Signature = hintexec.Signature
	// Param is one named, hinted parameter.
	Param = hintexec.Param
	// Option adjusts one decoration.
	Option = hintexec.Option
	// Hint is an opaque type constraint.
	Hint = hint.Hint
)

var (
	// NewConfig validates and interns a configuration.
	NewConfig = hintexec.NewConfig
	// MustConfig is NewConfig, panicking on error.
	MustConfig = hintexec.MustConfig
	// DefaultConfig is the interned all-defaults configuration.
	DefaultConfig = hintexec.DefaultConfig
	// LoadConfig reads a configuration from a YAML file.
	LoadConfig = hintexec.LoadConfig

	// Wrap returns a type-checking wrapper of identical type.
	Wrap = hintexec.Wrap
	// MustWrap is Wrap, panicking on decoration error.
	MustWrap = hintexec.MustWrap
	// Check reports whether a value satisfies a hint.
	Check = hintexec.Check
	// Die returns a violation error when a value rejects its hint.
	Die = hintexec.Die

	// WithClass, WithLocals, WithLabel adjust a single decoration.
	WithClass  = hintexec.WithClass
	WithLocals = hintexec.WithLocals
	WithLabel  = hintexec.WithLabel

	// BeginClass opens a class definition for Self and member references.
	BeginClass = hintexec.BeginClass

	// ResetCaches empties the engine's memo caches.
	ResetCaches = hintexec.ResetCaches
)

// Register binds a global name for forward references.
func Register(name string, h Hint) { hintexec.DefaultRegistry.Register(name, h) }

// RegisterType registers a value's type under its type name and returns
// that name.
func RegisterType(v any) string { return hintexec.DefaultRegistry.RegisterType(v) }
