package hint

import (
	"sync"
)

// coerceCache deduplicates non-self-caching hints: two structurally equal
// but distinct hint objects collapse to one canonical instance. It is keyed
// by the hint's canonical textual representation, is safe for concurrent
// read/insert without external locking, and grows without eviction. See
// ResetCaches for test isolation.
var coerceCache sync.Map // repr string → Hint

// Coerce returns the canonical instance of an arbitrary hint. Self-caching
// hints (those whose own factory guarantees identity stability) pass
// through untouched; everything else is deduplicated through the
// representation-keyed cache. Coerce is idempotent: the cache converges
// after one pass.
func Coerce(h Hint) Hint {
	if h == nil {
		return None
	}
	if selfCaching(h) {
		return h
	}
	key := Repr(h)
	if cached, ok := coerceCache.Load(key); ok {
		return cached
	}
	actual, _ := coerceCache.LoadOrStore(key, h)
	return actual
}

// symmetric comparison methods whose return hints are widened with the
// NotImplemented sentinel, mirroring static-checker convention.
var symmetricMethods = map[string]bool{
	"Equal":   true,
	"Less":    true,
	"Compare": true,
	"Cmp":     true,
}

// CoerceRoot coerces a top-level parameter or return annotation. Beyond
// generic coercion it rewrites the legacy union-as-slice idiom and widens
// the return hints of symmetric comparison methods defined inside a class.
func CoerceRoot(h Hint, methodName string, isReturn bool) Hint {
	if members, ok := h.([]Hint); ok {
		h = Union(members...)
	}
	if isReturn && methodName != "" && symmetricMethods[methodName] {
		if !unionContains(h, NotImplemented) {
			h = Union(h, NotImplemented)
		}
	}
	return Coerce(h)
}

func unionContains(h Hint, member Hint) bool {
	u, ok := h.(*UnionHint)
	if !ok {
		return h == member
	}
	for _, m := range u.Members {
		if m == member {
			return true
		}
	}
	return false
}

// ResetCaches clears the process-wide hint caches (dedup and
// classification memo). Intended for test isolation only; concurrent use
// with live coercion is safe but forfeits deduplication guarantees for
// hints coerced across the reset.
func ResetCaches() {
	coerceCache.Range(func(k, _ any) bool {
		coerceCache.Delete(k)
		return true
	})
	signCache.Range(func(k, _ any) bool {
		signCache.Delete(k)
		return true
	})
}
