package hintexec

import (
	"fmt"

	"github.com/typegate-dev/typegate/hint"
)

// Sanified is the immutable result of reducing a hint: the canonical hint,
// its sign, the reduced children, and the contextual facts accumulated on
// the way down. Children reference but do not own the parent's context.
type Sanified struct {
	Hint hint.Hint
	Sign *hint.Sign

	// Ignorable marks a hint reduced to "no constraint".
	Ignorable bool
	// Cacheable marks a non-contextual hint: no forward references, no
	// self-references, no type-variable bindings. Only cacheable hints
	// may enter the synthesis memo cache.
	Cacheable bool
	// Cyclic marks a self-referential back-edge; its check degrades to
	// the origin-type test.
	Cyclic bool

	// Children are the reduced child hints, in declared order: union
	// members, the sequence element, map key then value, tuple items,
	// the annotated or newtype base, record fields.
	Children []*Sanified
	// Supers are a generic's reduced unignorable pseudo-superclasses,
	// extrinsic members first.
	Supers []*Sanified
}

// ignorableSan is the shared "no constraint" marker, propagated instead of
// allocating fresh objects.
var ignorableSan = &Sanified{Hint: hint.Any, Sign: hint.SignAny, Ignorable: true, Cacheable: true}

type sanifyCtx struct {
	meta       *CallMeta
	conf       *Config
	typeParams map[string]hint.Hint
	guard      map[hint.Hint]bool
	depth      int
	label      string
}

const (
	sanifyMaxDepth  = 1000
	sanifyMaxSupers = 4096
	overrideLimit   = 16
)

// SanifyRoot reduces a top-level parameter or return annotation: root
// coercion first, then the recursive reduction. Errors are prefixed with
// the caller-supplied context for traceability.
func SanifyRoot(h hint.Hint, meta *CallMeta, name string, isReturn bool) (*Sanified, error) {
	h = hint.CoerceRoot(h, meta.methodName(), isReturn)
	// Return names arrive pre-labeled ("return", "return 1").
	where := "parameter " + name
	if isReturn {
		where = name
	}
	ctx := &sanifyCtx{
		meta:       meta,
		conf:       meta.Conf,
		typeParams: meta.TypeParams,
		guard:      make(map[hint.Hint]bool, 8),
		label:      meta.Label + " " + where,
	}
	s, err := sanify(h, ctx)
	if err != nil {
		if _, ok := err.(*HintError); ok {
			return nil, err
		}
		return nil, &HintError{Context: ctx.label, Err: err}
	}
	return s, nil
}

// SanifyLoose reduces a hint with no owning callable, for the standalone
// Check/Die door and for re-checking resolved forward references.
func SanifyLoose(h hint.Hint, conf *Config) (*Sanified, error) {
	ctx := &sanifyCtx{
		conf:  conf,
		guard: make(map[hint.Hint]bool, 8),
		label: "hint",
	}
	return sanify(h, ctx)
}

func sanify(h hint.Hint, ctx *sanifyCtx) (*Sanified, error) {
	ctx.depth++
	defer func() { ctx.depth-- }()
	if ctx.depth > sanifyMaxDepth {
		return nil, fmt.Errorf("hint nesting exceeds %d levels", sanifyMaxDepth)
	}

	h = hint.Coerce(h)

	// Configured hint overrides, applied before classification. Chains are
	// followed to a fixed bound so a cyclic override table cannot hang
	// decoration.
	if ctx.conf != nil {
		for i := 0; i < overrideLimit; i++ {
			o, ok := ctx.conf.Override(h)
			if !ok {
				break
			}
			h = hint.Coerce(o)
		}
	}

	// Stringified hints resolve against the callable's forward scope.
	if expr, ok := h.(string); ok {
		if ctx.meta == nil {
			return nil, fmt.Errorf("stringified hint %q outside a decoration scope", expr)
		}
		debug := ctx.conf != nil && ctx.conf.Debug()
		resolved, err := ctx.meta.Scope().resolveExpr(expr, debug)
		if err != nil {
			return nil, err
		}
		return sanify(resolved, ctx)
	}

	sign, err := hint.Classify(h)
	if err != nil {
		return nil, err
	}
	if sign == nil {
		return nil, fmt.Errorf("unsupported hint %v (%T)", h, h)
	}
	if hint.Ignorable(h) {
		return ignorableSan, nil
	}

	switch sign {
	case hint.SignAny:
		return ignorableSan, nil
	case hint.SignType, hint.SignNone, hint.SignNotImplemented,
		hint.SignLiteral, hint.SignProtocol, hint.SignSchema:
		return &Sanified{Hint: h, Sign: sign, Cacheable: true}, nil
	case hint.SignRef:
		// Proxies defer to first use; their meaning depends on the call
		// site, so they are never cacheable.
		return &Sanified{Hint: h, Sign: sign, Cacheable: false}, nil
	case hint.SignSelf:
		return sanifySelf(ctx)
	case hint.SignTypeVar:
		return sanifyTypeVar(h.(*hint.TypeVarHint), ctx)
	}

	// Compound hints: guard against self-referential structures, reduce
	// children in declared order, and reconstruct the compound hint only
	// if a child changed.
	if ctx.guard[h] {
		return &Sanified{Hint: h, Sign: sign, Cyclic: true}, nil
	}
	ctx.guard[h] = true
	defer delete(ctx.guard, h)

	switch sign {
	case hint.SignUnion:
		return sanifyUnion(h.(*hint.UnionHint), ctx)
	case hint.SignSequence:
		return sanifySeq(h.(*hint.SeqHint), ctx)
	case hint.SignTuple:
		return sanifyTuple(h.(*hint.TupleHint), ctx)
	case hint.SignMapping:
		return sanifyMap(h.(*hint.MapHint), ctx)
	case hint.SignAnnotated:
		return sanifyAnnotated(h.(*hint.AnnotatedHint), ctx)
	case hint.SignNewType:
		return sanifyNewType(h.(*hint.NewTypeHint), ctx)
	case hint.SignGeneric:
		return sanifyGeneric(h.(*hint.GenericHint), ctx)
	case hint.SignRecord:
		return sanifyRecord(h.(*hint.RecordHint), ctx)
	}
	return nil, &InternalError{Msg: fmt.Sprintf("no sanification rule for sign %q", sign)}
}

func sanifySelf(ctx *sanifyCtx) (*Sanified, error) {
	if ctx.meta == nil || len(ctx.meta.Classes) == 0 {
		return nil, fmt.Errorf("Self hint outside a class context")
	}
	innermost := ctx.meta.Classes[len(ctx.meta.Classes)-1]
	if t, done := innermost.Hint(); done {
		return &Sanified{Hint: t, Sign: hint.SignType, Cacheable: false}, nil
	}
	proxy := ctx.meta.Scope().Defer(innermost.Name())
	return &Sanified{Hint: proxy, Sign: hint.SignRef, Cacheable: false}, nil
}

func sanifyTypeVar(tv *hint.TypeVarHint, ctx *sanifyCtx) (*Sanified, error) {
	if bound, ok := ctx.typeParams[tv.Name]; ok {
		s, err := sanify(bound, ctx)
		if err != nil {
			return nil, err
		}
		return contextual(s), nil
	}
	if tv.Bound != nil {
		s, err := sanify(tv.Bound, ctx)
		if err != nil {
			return nil, err
		}
		return contextual(s), nil
	}
	// Unbound and unbounded: no constraint, but still call-site dependent.
	return &Sanified{Hint: hint.Any, Sign: hint.SignAny, Ignorable: true, Cacheable: false}, nil
}

// contextual returns a copy marked uncacheable; type-variable substitution
// makes the result depend on the call site even when the binding itself
// would be cacheable.
func contextual(s *Sanified) *Sanified {
	if !s.Cacheable {
		return s
	}
	c := *s
	c.Cacheable = false
	return &c
}

func sanifyUnion(u *hint.UnionHint, ctx *sanifyCtx) (*Sanified, error) {
	children := make([]*Sanified, 0, len(u.Members))
	memberHints := make([]hint.Hint, 0, len(u.Members))
	changed := false
	for _, m := range u.Members {
		c, err := sanify(m, ctx)
		if err != nil {
			return nil, err
		}
		if c.Ignorable {
			// A union with an unconstrained member constrains nothing.
			return ignorableSan, nil
		}
		children = append(children, c)
		memberHints = append(memberHints, c.Hint)
		changed = changed || !sameHint(c.Hint, m)
	}
	var canonical hint.Hint = u
	if changed {
		canonical = hint.Coerce(hint.Union(memberHints...))
	}
	return &Sanified{
		Hint:      canonical,
		Sign:      hint.SignUnion,
		Cacheable: allCacheable(children),
		Children:  children,
	}, nil
}

func sanifySeq(sq *hint.SeqHint, ctx *sanifyCtx) (*Sanified, error) {
	elem, err := sanify(sq.Elem, ctx)
	if err != nil {
		return nil, err
	}
	canonical := hint.Hint(sq)
	if !sameHint(elem.Hint, sq.Elem) {
		if sq.Kind == hint.SeqSet {
			canonical = hint.Coerce(hint.Set(elem.Hint))
		} else {
			canonical = hint.Coerce(hint.List(elem.Hint))
		}
	}
	return &Sanified{
		Hint:      canonical,
		Sign:      hint.SignSequence,
		Cacheable: elem.Cacheable,
		Children:  []*Sanified{elem},
	}, nil
}

func sanifyTuple(t *hint.TupleHint, ctx *sanifyCtx) (*Sanified, error) {
	children := make([]*Sanified, 0, len(t.Items))
	items := make([]hint.Hint, 0, len(t.Items))
	changed := false
	for _, it := range t.Items {
		c, err := sanify(it, ctx)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
		items = append(items, c.Hint)
		changed = changed || !sameHint(c.Hint, it)
	}
	canonical := hint.Hint(t)
	if changed {
		if t.Variadic {
			canonical = hint.Coerce(hint.Tuple(items[0], hint.Ellipsis))
		} else {
			canonical = hint.Coerce(hint.Tuple(items...))
		}
	}
	return &Sanified{
		Hint:      canonical,
		Sign:      hint.SignTuple,
		Cacheable: allCacheable(children),
		Children:  children,
	}, nil
}

func sanifyMap(mp *hint.MapHint, ctx *sanifyCtx) (*Sanified, error) {
	key, err := sanify(mp.Key, ctx)
	if err != nil {
		return nil, err
	}
	val, err := sanify(mp.Value, ctx)
	if err != nil {
		return nil, err
	}
	canonical := hint.Hint(mp)
	if !sameHint(key.Hint, mp.Key) || !sameHint(val.Hint, mp.Value) {
		canonical = hint.Coerce(hint.Map(key.Hint, val.Hint))
	}
	return &Sanified{
		Hint:      canonical,
		Sign:      hint.SignMapping,
		Cacheable: key.Cacheable && val.Cacheable,
		Children:  []*Sanified{key, val},
	}, nil
}

func sanifyAnnotated(a *hint.AnnotatedHint, ctx *sanifyCtx) (*Sanified, error) {
	base, err := sanify(a.Base, ctx)
	if err != nil {
		return nil, err
	}
	if len(a.Predicates) == 0 {
		return base, nil
	}
	return &Sanified{
		Hint:      hint.Hint(a),
		Sign:      hint.SignAnnotated,
		Cacheable: base.Cacheable,
		Children:  []*Sanified{base},
	}, nil
}

func sanifyNewType(nt *hint.NewTypeHint, ctx *sanifyCtx) (*Sanified, error) {
	base, err := sanify(nt.Base, ctx)
	if err != nil {
		return nil, err
	}
	return &Sanified{
		Hint:      hint.Hint(nt),
		Sign:      hint.SignNewType,
		Cacheable: base.Cacheable,
		Children:  []*Sanified{base},
	}, nil
}

func sanifyRecord(r *hint.RecordHint, ctx *sanifyCtx) (*Sanified, error) {
	children := make([]*Sanified, 0, len(r.Fields))
	for _, f := range r.Fields {
		c, err := sanify(f.Hint, ctx)
		if err != nil {
			return nil, fmt.Errorf("record field %q: %w", f.Name, err)
		}
		children = append(children, c)
	}
	return &Sanified{
		Hint:      hint.Hint(r),
		Sign:      hint.SignRecord,
		Cacheable: allCacheable(children),
		Children:  children,
	}, nil
}

// superEntry is one worklist slot of the pseudo-superclass walk: the hint
// plus the type-parameter bindings in force where it was discovered.
type superEntry struct {
	h          hint.Hint
	typeParams map[string]hint.Hint
}

// sanifyGeneric reduces a generic's pseudo-superclass hierarchy with an
// explicit FIFO worklist rather than native recursion: append discovered
// pseudo-superclasses at the tail, process from a moving head index. This
// bounds stack depth under pathological inheritance chains and keeps the
// extrinsic/intrinsic distinction explicit.
func sanifyGeneric(g *hint.GenericHint, ctx *sanifyCtx) (*Sanified, error) {
	params := bindTypeParams(g, ctx.typeParams)
	if len(g.Args) > 0 && len(g.Args) != len(g.Origin().Params) {
		return nil, fmt.Errorf("generic %s subscripted with %d arguments, declares %d parameters",
			g.Name, len(g.Args), len(g.Origin().Params))
	}

	worklist := make([]superEntry, 0, len(g.Supers))
	for _, s := range g.Supers {
		worklist = append(worklist, superEntry{h: s, typeParams: params})
	}
	// visited holds every generic layer already walked on this hierarchy,
	// seeded with g itself so a self-referential super is a back-edge.
	visited := map[*hint.GenericHint]bool{g: true}
	cycled := map[*hint.GenericHint]bool{}

	var extrinsic, intrinsic []*Sanified
	for head := 0; head < len(worklist); head++ {
		if head >= sanifyMaxSupers {
			return nil, fmt.Errorf("generic %s pseudo-superclass hierarchy exceeds %d entries", g.Name, sanifyMaxSupers)
		}
		entry := worklist[head]
		sh := hint.Coerce(entry.h)

		switch sv := sh.(type) {
		case *hint.RecordHint:
			// Extrinsic: the record check depends on the concrete
			// subscripted subclass's bindings, and takes precedence over
			// any intrinsic reading of the same shape.
			sub, err := withTypeParams(ctx, entry.typeParams, func(c *sanifyCtx) (*Sanified, error) {
				return sanify(sv, c)
			})
			if err != nil {
				return nil, err
			}
			if !sub.Ignorable {
				extrinsic = append(extrinsic, sub)
			}
		case *hint.GenericHint:
			// A layer already walked on this hierarchy, or one being
			// reduced further up the recursion, is a back-edge: degrade it
			// to a cyclic shape test instead of re-enqueueing its supers.
			if visited[sv] || ctx.guard[hint.Hint(sv)] {
				if !cycled[sv] {
					cycled[sv] = true
					intrinsic = append(intrinsic, &Sanified{
						Hint:   hint.Hint(sv),
						Sign:   hint.SignGeneric,
						Cyclic: true,
					})
				}
				continue
			}
			visited[sv] = true
			// A user-defined intermediate generic layer is walked through:
			// no check for the layer itself (redundant with the final
			// origin-type test), but its own superclasses are still
			// enqueued so deeper constraints are not lost.
			subParams := bindTypeParams(sv, entry.typeParams)
			for _, super := range sv.Supers {
				worklist = append(worklist, superEntry{h: super, typeParams: subParams})
			}
		default:
			sub, err := withTypeParams(ctx, entry.typeParams, func(c *sanifyCtx) (*Sanified, error) {
				return sanify(sh, c)
			})
			if err != nil {
				return nil, err
			}
			if !sub.Ignorable {
				intrinsic = append(intrinsic, sub)
			}
		}
	}

	supers := append(extrinsic, intrinsic...)
	cacheable := allCacheable(supers)
	for _, a := range g.Args {
		if _, isTV := a.(*hint.TypeVarHint); isTV {
			cacheable = false
		}
	}
	return &Sanified{
		Hint:      hint.Hint(g),
		Sign:      hint.SignGeneric,
		Cacheable: cacheable,
		Supers:    supers,
	}, nil
}

func bindTypeParams(g *hint.GenericHint, outer map[string]hint.Hint) map[string]hint.Hint {
	decl := g.Origin().Params
	if len(g.Args) == 0 || len(decl) == 0 {
		return outer
	}
	bound := make(map[string]hint.Hint, len(outer)+len(decl))
	for k, v := range outer {
		bound[k] = v
	}
	n := len(decl)
	if len(g.Args) < n {
		n = len(g.Args)
	}
	for i := 0; i < n; i++ {
		bound[decl[i].Name] = g.Args[i]
	}
	return bound
}

func withTypeParams(ctx *sanifyCtx, params map[string]hint.Hint, fn func(*sanifyCtx) (*Sanified, error)) (*Sanified, error) {
	if sameParams(ctx.typeParams, params) {
		return fn(ctx)
	}
	sub := *ctx
	sub.typeParams = params
	return fn(&sub)
}

func sameParams(a, b map[string]hint.Hint) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || !sameHint(v, bv) {
			return false
		}
	}
	return true
}

func allCacheable(children []*Sanified) bool {
	for _, c := range children {
		if !c.Cacheable {
			return false
		}
	}
	return true
}

func sameHint(a, b hint.Hint) bool { return a == b }
