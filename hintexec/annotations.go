package hintexec

import (
	"reflect"
	"sync"
)

// Signature is the annotation mapping for a callable: ordered parameter
// hints plus return hints aligned positionally to the function's results.
type Signature struct {
	Params  []Param
	Returns []any // hints aligned to the function's results
}

// Param names one annotated parameter. Params are matched to function
// inputs positionally, in declaration order.
type Param struct {
	Name string
	Hint any
}

// clone returns a deep-enough copy: slices are fresh, hints are shared
// (hints are externally owned and never mutated).
func (s *Signature) clone() *Signature {
	if s == nil {
		return nil
	}
	c := &Signature{
		Params:  make([]Param, len(s.Params)),
		Returns: make([]any, len(s.Returns)),
	}
	copy(c.Params, s.Params)
	copy(c.Returns, s.Returns)
	return c
}

// AnnotationStore is the annotation storage protocol: how signatures are
// read from and written back to callables. Implementations must tolerate
// deferred hint evaluation: a stored signature may contain string hints
// whose names do not resolve yet.
type AnnotationStore interface {
	// Get reads the target's signature. Fails with *NotAnnotatableError
	// for non-introspectable targets; a missing signature is (nil, nil).
	Get(target any) (*Signature, error)
	// Set writes the target's signature back, preserving deferred hints
	// as-is rather than forcing resolution.
	Set(target any, sig *Signature) error
}

// memStore keys signatures by function code pointer, the closest Go analog
// to attaching annotations to the callable itself.
type memStore struct {
	mu sync.RWMutex
	m  map[uintptr]*Signature
}

// DefaultAnnotations is the process-wide annotation store.
var DefaultAnnotations AnnotationStore = &memStore{m: make(map[uintptr]*Signature, 32)}

func funcKey(target any) (uintptr, bool) {
	if target == nil {
		return 0, false
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0, false
	}
	return v.Pointer(), true
}

func (s *memStore) Get(target any) (*Signature, error) {
	key, ok := funcKey(target)
	if !ok {
		return nil, &NotAnnotatableError{Target: target}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[key].clone(), nil
}

func (s *memStore) Set(target any, sig *Signature) error {
	key, ok := funcKey(target)
	if !ok {
		return &NotAnnotatableError{Target: target}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = sig.clone()
	return nil
}

// ClearAnnotations drops every stored signature. For test isolation.
func ClearAnnotations() {
	if ms, ok := DefaultAnnotations.(*memStore); ok {
		ms.mu.Lock()
		ms.m = make(map[uintptr]*Signature, 32)
		ms.mu.Unlock()
	}
}
