package hint

import (
	"fmt"
	"reflect"
	"sync"
)

// signCache memoizes classification for hints that are hashable and
// self-caching (identity-stable descriptors and reflect.Types). Hints keyed
// by content, like strings, are classified structurally every time; content
// equality is never used as a cache key.
var signCache sync.Map // Hint → *Sign

// Classify determines the sign of an arbitrary hint. It is a pure function
// of the hint's shape. A nil sign with a nil error means the hint is
// unsupported and should be treated as a plain (unclassifiable) value by
// the caller. Structurally malformed hints raise a descriptive error.
func Classify(h Hint) (*Sign, error) {
	if h == nil {
		return SignNone, nil
	}
	if cacheable := selfCaching(h); cacheable {
		if s, ok := signCache.Load(h); ok {
			return s.(*Sign), nil
		}
	}

	s, err := classifySlow(h)
	if err != nil {
		return nil, err
	}
	if s != nil && selfCaching(h) {
		signCache.Store(h, s)
	}
	return s, nil
}

func classifySlow(h Hint) (*Sign, error) {
	switch v := h.(type) {
	case *Special:
		switch h {
		case Any:
			return SignAny, nil
		case None:
			return SignNone, nil
		case Self:
			return SignSelf, nil
		case NotImplemented:
			return SignNotImplemented, nil
		case Ellipsis:
			return nil, fmt.Errorf("hint: ellipsis is only valid as the final tuple item")
		}
		return nil, fmt.Errorf("hint: unknown sentinel %q", v.name)
	case reflect.Type:
		return SignType, nil
	case string:
		return SignRef, nil
	case *ForwardRef:
		return SignRef, nil
	case *UnionHint:
		if len(v.Members) == 0 {
			return nil, fmt.Errorf("hint: union with zero members")
		}
		return SignUnion, nil
	case *SeqHint:
		return SignSequence, nil
	case *TupleHint:
		return SignTuple, nil
	case *MapHint:
		return SignMapping, nil
	case *LiteralHint:
		if len(v.Values) == 0 {
			return nil, fmt.Errorf("hint: literal with zero candidates")
		}
		return SignLiteral, nil
	case *AnnotatedHint:
		return SignAnnotated, nil
	case *NewTypeHint:
		return SignNewType, nil
	case *TypeVarHint:
		return SignTypeVar, nil
	case *GenericHint:
		return SignGeneric, nil
	case *ProtocolHint:
		return SignProtocol, nil
	case *RecordHint:
		return SignRecord, nil
	case *SchemaHint:
		return SignSchema, nil
	case []Hint:
		// The legacy union-as-slice idiom is rewritten by root coercion;
		// reaching classification means it was nested inside another hint.
		return nil, fmt.Errorf("hint: slice-of-hints union is only valid as a root annotation")
	}
	// Unsupported: no sign.
	return nil, nil
}

// Ignorable reports whether a hint trivially carries no constraint, so the
// engine can short-circuit instead of synthesizing a check for it.
func Ignorable(h Hint) bool {
	switch v := h.(type) {
	case nil:
		return false
	case *Special:
		return h == Any
	case *AnnotatedHint:
		return len(v.Predicates) == 0 && Ignorable(v.Base)
	case *NewTypeHint:
		return Ignorable(v.Base)
	case *GenericHint:
		// An unsubscripted marker factory conveys nothing beyond its
		// (absent) origin type.
		return v.Type == nil && len(v.Supers) == 0 && len(v.Args) == 0
	case *UnionHint:
		for _, m := range v.Members {
			if Ignorable(m) {
				return true
			}
		}
		return false
	}
	return false
}

// selfCaching reports whether the hint's factory guarantees that identical
// construction yields the identical object, making the hint safe to use as
// an identity cache key and exempt from the dedup cache.
func selfCaching(h Hint) bool {
	switch h.(type) {
	case reflect.Type:
		// The runtime interns reflect.Type values.
		return true
	case *Special, *ForwardRef, *TypeVarHint, *ProtocolHint, *RecordHint, *SchemaHint:
		// Held as singletons by their declarers (or, for proxies, cached
		// per scope and name).
		return true
	case *GenericHint:
		// Factories are declarer-held singletons; subscriptions are not.
		g := h.(*GenericHint)
		return g.origin == nil && len(g.Args) == 0
	}
	return false
}
