package hintexec

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/typegate-dev/typegate/hint"
)

// CallMeta is the per-decoration aggregate: the wrapped callable, its
// configuration, its signature, the enclosing-class stack, and the lazily
// built forward scope. One record is exclusively owned by one decoration at
// a time; records are pooled, acquired at the start of a decoration and
// released at its end.
type CallMeta struct {
	ID string // decoration ID, for log correlation

	Func     any
	fv       reflect.Value
	ft       reflect.Type
	Wrappee  any // pre-wrapping original
	Conf     *Config
	Sig      *Signature
	sigDirty bool

	Classes    []*ClassDef
	Locals     map[string]hint.Hint
	TypeParams map[string]hint.Hint
	Registry   *Registry
	Label      string

	scope *Scope
	log   Logger
}

var metaPool struct {
	mu   sync.Mutex
	free []*CallMeta
}

// acquireMeta pulls a record from the pool, or allocates one. The record is
// uninitialized until init succeeds.
func acquireMeta() *CallMeta {
	metaPool.mu.Lock()
	defer metaPool.mu.Unlock()
	if n := len(metaPool.free); n > 0 {
		m := metaPool.free[n-1]
		metaPool.free = metaPool.free[:n-1]
		return m
	}
	return &CallMeta{}
}

// releaseMeta deinitializes a record and returns it to the pool. The caller
// must not touch the record afterwards.
func releaseMeta(m *CallMeta) {
	*m = CallMeta{}
	metaPool.mu.Lock()
	metaPool.free = append(metaPool.free, m)
	metaPool.mu.Unlock()
}

// init (re)initializes an acquired record, validating its inputs: the
// target and unwrap target must be callable, the configuration must be a
// genuine interned config, and the class stack may contain only live
// definitions. Violations raise immediately rather than silently coercing.
func (m *CallMeta) init(fn, wrappee any, conf *Config, classes []*ClassDef) error {
	if fn == nil {
		return fmt.Errorf("typegate: cannot decorate nil")
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return fmt.Errorf("typegate: cannot decorate %T, want a func", fn)
	}
	if wrappee != nil {
		wv := reflect.ValueOf(wrappee)
		if wv.Kind() != reflect.Func {
			return fmt.Errorf("typegate: unwrap target %T is not a func", wrappee)
		}
	}
	if conf == nil || conf.key == "" {
		return fmt.Errorf("typegate: configuration must come from NewConfig")
	}
	for i, cd := range classes {
		if cd == nil {
			return fmt.Errorf("typegate: class stack entry %d is nil", i)
		}
	}

	m.ID = uuid.NewString()
	m.Func = fn
	m.fv = fv
	m.ft = fv.Type()
	m.Wrappee = wrappee
	m.Conf = conf
	m.Classes = classes
	m.Registry = DefaultRegistry
	m.Label = funcLabel(fv, classes)
	m.log = loggerFor(conf).With(map[string]any{"decoration": m.ID, "func": m.Label})
	return nil
}

// Scope builds (or reuses) the composite forward scope for this record.
// Built once, reused by every hint on the same callable.
func (m *CallMeta) Scope() *Scope {
	if m.scope == nil {
		m.scope = newScope(m.Registry, m.Classes, m.Locals, m.TypeParams)
	}
	return m.scope
}

// SetSignature replaces the record's annotation mapping, deferring the
// write-back to the callable's annotation store until flush.
func (m *CallMeta) SetSignature(sig *Signature) {
	m.Sig = sig
	m.sigDirty = true
}

// flushAnnotations pushes pending signature edits back through the
// annotation storage protocol, batching all edits into one update. A no-op
// when nothing changed.
func (m *CallMeta) flushAnnotations(store AnnotationStore) error {
	if !m.sigDirty || m.Sig == nil {
		return nil
	}
	if err := store.Set(m.Wrappee, m.Sig); err != nil {
		return err
	}
	m.sigDirty = false
	return nil
}

// methodName extracts the bare method name from the label, for
// symmetric-comparison return widening. Empty outside class contexts.
func (m *CallMeta) methodName() string {
	if len(m.Classes) == 0 {
		return ""
	}
	label := m.Label
	if i := strings.LastIndexByte(label, '.'); i >= 0 {
		label = label[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSuffix(label, "()"), "-fm")
}

func funcLabel(fv reflect.Value, classes []*ClassDef) string {
	name := ""
	if rf := runtime.FuncForPC(fv.Pointer()); rf != nil {
		name = rf.Name()
	}
	if name == "" {
		name = fv.Type().String()
	}
	if len(classes) > 0 {
		return fmt.Sprintf("method %s()", name)
	}
	return fmt.Sprintf("function %s()", name)
}
