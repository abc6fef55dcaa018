package hintexec

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/typegate-dev/typegate/hint"
)

// Strategy selects how much of a container the generated checks inspect.
type Strategy int

const (
	// StrategyConstant checks containers in O(1): the container's own type
	// plus a single representative item. The default.
	StrategyConstant Strategy = iota
	// StrategyLinear checks every container item, subject to the advisory
	// deadline budget.
	StrategyLinear
	// StrategyOff disables checking entirely; decoration returns the
	// original callable unmodified.
	StrategyOff
)

func (s Strategy) String() string {
	switch s {
	case StrategyConstant:
		return "constant"
	case StrategyLinear:
		return "linear"
	case StrategyOff:
		return "off"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ConfigSpec is the caller-facing bag of settings. The zero value is valid
// and yields the defaults documented field by field.
type ConfigSpec struct {
	// Strategy selects the container-checking cost model (default: constant).
	Strategy Strategy
	// NumericTower, when set, widens float hints to accept integers and
	// complex hints to accept floats and integers. Off by default to avoid
	// masking precision bugs.
	NumericTower bool
	// Debug enriches decoration-time errors with the full composite scope.
	Debug bool
	// WarnOnDecorationError downgrades decoration-time (never call-time)
	// errors to log warnings, returning the callable undecorated.
	WarnOnDecorationError bool
	// DeadlineMultiplier is the advisory budget for linear container scans:
	// scanning stops early once cumulative checking time exceeds this
	// fraction of total process running time (default: 0.1). A soft
	// fairness heuristic, not a hard deadline.
	DeadlineMultiplier float64
	// LinearSampleLimit caps items inspected per container scan under the
	// linear strategy; 0 means unlimited (default: 0).
	LinearSampleLimit int
	// ReprWidth bounds the display width of value reprs in violation
	// sentences (default: 96).
	ReprWidth int
	// LogLevel: "error", "warn", "info", "debug" (default: "warn").
	LogLevel string
	// LogTimeFormat is the strftime-style timestamp layout for log lines
	// (default: "%Y-%m-%dT%H:%M:%S").
	LogTimeFormat string
	// Overrides maps hints to replacement hints, applied during
	// sanification before classification.
	Overrides map[hint.Hint]hint.Hint
	// MakeParamViolation, MakeReturnViolation, MakeDoorViolation replace
	// the default violation error constructors.
	MakeParamViolation  ViolationMaker
	MakeReturnViolation ViolationMaker
	MakeDoorViolation   ViolationMaker
}

// Config is an immutable, structurally interned settings bag. Two configs
// constructed with identical parameter values are the same object, which is
// what lets downstream memoization key on config identity.
type Config struct {
	spec ConfigSpec
	key  string
}

func (c *Config) Strategy() Strategy                 { return c.spec.Strategy }
func (c *Config) NumericTower() bool                 { return c.spec.NumericTower }
func (c *Config) Debug() bool                        { return c.spec.Debug }
func (c *Config) WarnOnDecorationError() bool        { return c.spec.WarnOnDecorationError }
func (c *Config) DeadlineMultiplier() float64        { return c.spec.DeadlineMultiplier }
func (c *Config) LinearSampleLimit() int             { return c.spec.LinearSampleLimit }
func (c *Config) ReprWidth() int                     { return c.spec.ReprWidth }
func (c *Config) LogLevel() string                   { return c.spec.LogLevel }
func (c *Config) LogTimeFormat() string              { return c.spec.LogTimeFormat }
func (c *Config) Override(h hint.Hint) (hint.Hint, bool) {
	o, ok := c.spec.Overrides[h]
	return o, ok
}
// Spec returns a copy of the underlying spec, for deriving adjusted
// configurations.
func (c *Config) Spec() ConfigSpec { return c.spec }

func (c *Config) paramViolation() ViolationMaker  { return c.spec.MakeParamViolation }
func (c *Config) returnViolation() ViolationMaker { return c.spec.MakeReturnViolation }
func (c *Config) doorViolation() ViolationMaker   { return c.spec.MakeDoorViolation }

// interning table. Constructing a config has multiple steps (default
// filling, validation, key derivation, table insert) that must appear
// atomic to other threads, so the whole construct-or-reuse section runs
// under one non-reentrant lock.
var configIntern struct {
	mu sync.Mutex
	m  map[string]*Config
}

// NewConfig validates a spec, fills defaults, and returns the interned
// config for it. Invalid option values raise immediately, never at check
// time.
func NewConfig(spec ConfigSpec) (*Config, error) {
	configIntern.mu.Lock()
	defer configIntern.mu.Unlock()

	if err := fillAndValidate(&spec); err != nil {
		return nil, err
	}
	key := configKey(&spec)
	if configIntern.m == nil {
		configIntern.m = make(map[string]*Config, 8)
	}
	if c, ok := configIntern.m[key]; ok {
		return c, nil
	}
	c := &Config{spec: spec, key: key}
	configIntern.m[key] = c
	return c, nil
}

// MustConfig is NewConfig, panicking on error.
func MustConfig(spec ConfigSpec) *Config {
	c, err := NewConfig(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultConfig returns the all-defaults config.
func DefaultConfig() *Config { return MustConfig(ConfigSpec{}) }

func fillAndValidate(spec *ConfigSpec) error {
	switch spec.Strategy {
	case StrategyConstant, StrategyLinear, StrategyOff:
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown strategy %d", int(spec.Strategy))}
	}
	if spec.DeadlineMultiplier < 0 {
		return &ConfigError{Msg: "DeadlineMultiplier must be non-negative"}
	}
	if spec.DeadlineMultiplier == 0 {
		spec.DeadlineMultiplier = 0.1
	}
	if spec.LinearSampleLimit < 0 {
		return &ConfigError{Msg: "LinearSampleLimit must be non-negative"}
	}
	if spec.ReprWidth < 0 {
		return &ConfigError{Msg: "ReprWidth must be non-negative"}
	}
	if spec.ReprWidth == 0 {
		spec.ReprWidth = 96
	}
	if spec.LogLevel == "" {
		spec.LogLevel = "warn"
	}
	switch strings.ToLower(spec.LogLevel) {
	case "error", "warn", "warning", "info", "debug":
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown log level %q", spec.LogLevel)}
	}
	if spec.LogTimeFormat == "" {
		spec.LogTimeFormat = "%Y-%m-%dT%H:%M:%S"
	}
	if len(spec.Overrides) > 0 {
		// Sanification looks overrides up by the coerced canonical hint,
		// so keys must be canonical too or a structurally equal descriptor
		// key never matches. Rebuilt fresh: the caller's map stays theirs.
		canon := make(map[hint.Hint]hint.Hint, len(spec.Overrides))
		for k, v := range spec.Overrides {
			canon[hint.Coerce(k)] = v
		}
		spec.Overrides = canon
	}
	if spec.MakeParamViolation == nil {
		spec.MakeParamViolation = defaultParamViolation
	}
	if spec.MakeReturnViolation == nil {
		spec.MakeReturnViolation = defaultReturnViolation
	}
	if spec.MakeDoorViolation == nil {
		spec.MakeDoorViolation = defaultDoorViolation
	}
	return nil
}

// configKey derives the canonical interning key. Function options compare
// by code pointer; hint overrides by canonical repr, sorted.
func configKey(spec *ConfigSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "strategy=%s;tower=%t;debug=%t;warn=%t;deadline=%g;sample=%d;repr=%d;loglevel=%s;logtime=%s",
		spec.Strategy, spec.NumericTower, spec.Debug, spec.WarnOnDecorationError,
		spec.DeadlineMultiplier, spec.LinearSampleLimit, spec.ReprWidth,
		strings.ToLower(spec.LogLevel), spec.LogTimeFormat)
	if len(spec.Overrides) > 0 {
		pairs := make([]string, 0, len(spec.Overrides))
		for k, v := range spec.Overrides {
			pairs = append(pairs, hint.Repr(k)+"=>"+hint.Repr(v))
		}
		sort.Strings(pairs)
		fmt.Fprintf(&b, ";overrides=%s", strings.Join(pairs, ","))
	}
	fmt.Fprintf(&b, ";makers=%x,%x,%x",
		reflect.ValueOf(spec.MakeParamViolation).Pointer(),
		reflect.ValueOf(spec.MakeReturnViolation).Pointer(),
		reflect.ValueOf(spec.MakeDoorViolation).Pointer())
	return b.String()
}

// yamlConfig is the on-disk configuration shape.
type yamlConfig struct {
	Strategy              string  `yaml:"strategy"`
	NumericTower          bool    `yaml:"numeric_tower"`
	Debug                 bool    `yaml:"debug"`
	WarnOnDecorationError bool    `yaml:"warn_on_decoration_error"`
	DeadlineMultiplier    float64 `yaml:"deadline_multiplier"`
	LinearSampleLimit     int     `yaml:"linear_sample_limit"`
	ReprWidth             int     `yaml:"repr_width"`
	LogLevel              string  `yaml:"log_level"`
	LogTimeFormat         string  `yaml:"log_time_format"`
}

// LoadConfig reads a YAML configuration file and interns the result.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parse %s: %v", path, err)}
	}
	spec := ConfigSpec{
		NumericTower:          yc.NumericTower,
		Debug:                 yc.Debug,
		WarnOnDecorationError: yc.WarnOnDecorationError,
		DeadlineMultiplier:    yc.DeadlineMultiplier,
		LinearSampleLimit:     yc.LinearSampleLimit,
		ReprWidth:             yc.ReprWidth,
		LogLevel:              yc.LogLevel,
		LogTimeFormat:         yc.LogTimeFormat,
	}
	switch strings.ToLower(yc.Strategy) {
	case "", "constant":
		spec.Strategy = StrategyConstant
	case "linear":
		spec.Strategy = StrategyLinear
	case "off":
		spec.Strategy = StrategyOff
	default:
		return nil, &ConfigError{Msg: fmt.Sprintf("unknown strategy %q in %s", yc.Strategy, path)}
	}
	return NewConfig(spec)
}
