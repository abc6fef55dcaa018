package hintexec

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/typegate-dev/typegate/hint"
)

// synthesizer accumulates instructions for one program. Composition is
// jump-based: a conjunction fails fast through OpJumpIfFalse, a union
// short-circuits through OpJumpIfTrue, both patched to the segment end.
type synthesizer struct {
	prog *Program
	conf *Config
}

type emitFunc func(sy *synthesizer, s *Sanified) error

// emitters dispatches synthesis per sign. Signs absent here are reduced
// away before synthesis; reaching one is an engine bug surfaced as an
// InternalError. Populated in init: the compound emitters recurse through
// node, so a package-level map literal would form an initialization cycle.
var emitters map[*hint.Sign]emitFunc

func init() {
	emitters = map[*hint.Sign]emitFunc{
		hint.SignAny:            (*synthesizer).emitPass,
		hint.SignType:           (*synthesizer).emitType,
		hint.SignNone:           (*synthesizer).emitNil,
		hint.SignNotImplemented: (*synthesizer).emitNotImpl,
		hint.SignUnion:          (*synthesizer).emitUnion,
		hint.SignSequence:       (*synthesizer).emitSeq,
		hint.SignTuple:          (*synthesizer).emitTuple,
		hint.SignMapping:        (*synthesizer).emitMap,
		hint.SignLiteral:        (*synthesizer).emitLiteral,
		hint.SignAnnotated:      (*synthesizer).emitAnnotated,
		hint.SignNewType:        (*synthesizer).emitNewType,
		hint.SignGeneric:        (*synthesizer).emitGeneric,
		hint.SignProtocol:       (*synthesizer).emitProtocol,
		hint.SignRecord:         (*synthesizer).emitRecord,
		hint.SignRef:            (*synthesizer).emitRef,
		hint.SignSchema:         (*synthesizer).emitSchema,
	}
}

type synthKey struct {
	h    hint.Hint
	conf *Config
}

var synthCache = struct {
	sync.RWMutex
	m map[synthKey]*Program
}{m: make(map[synthKey]*Program)}

// Synthesize compiles a reduced hint into a check program under conf.
// Cacheable hints are memoized per configuration: repeated decorations of
// the same hint share one Program. Contextual hints, those carrying
// deferred references or call-site bindings, are compiled fresh each time.
func Synthesize(s *Sanified, conf *Config) (*Program, error) {
	if s.Ignorable {
		return passProgram, nil
	}
	var key synthKey
	if s.Cacheable {
		key = synthKey{h: s.Hint, conf: conf}
		synthCache.RLock()
		p, ok := synthCache.m[key]
		synthCache.RUnlock()
		if ok {
			return p, nil
		}
	}

	sy := &synthesizer{prog: &Program{Cacheable: s.Cacheable}, conf: conf}
	if err := sy.node(s); err != nil {
		return nil, err
	}

	if s.Cacheable {
		synthCache.Lock()
		// A concurrent synthesis may have won; keep the first stored
		// program so identity stays stable.
		if p, ok := synthCache.m[key]; ok {
			synthCache.Unlock()
			return p, nil
		}
		synthCache.m[key] = sy.prog
		synthCache.Unlock()
	}
	return sy.prog, nil
}

// ResetCaches empties the synthesis memo and the hint coercion caches.
// Intended for tests and long-lived processes that redefine hints.
func ResetCaches() {
	synthCache.Lock()
	synthCache.m = make(map[synthKey]*Program)
	synthCache.Unlock()
	hint.ResetCaches()
}

func (sy *synthesizer) emit(op Opcode, a int) int {
	sy.prog.Ops = append(sy.prog.Ops, Instr{Op: op, A: a})
	return len(sy.prog.Ops) - 1
}

func (sy *synthesizer) patch(pcs []int) {
	end := len(sy.prog.Ops)
	for _, pc := range pcs {
		sy.prog.Ops[pc].A = end
	}
}

func (sy *synthesizer) node(s *Sanified) error {
	if s.Cyclic {
		return sy.emitCyclic(s)
	}
	emit, ok := emitters[s.Sign]
	if !ok {
		return &InternalError{Msg: fmt.Sprintf("no synthesis rule for sign %q", s.Sign)}
	}
	return emit(sy, s)
}

// conjoin emits nodes as a fail-fast conjunction.
func (sy *synthesizer) conjoin(nodes []*Sanified) error {
	var pending []int
	for i, n := range nodes {
		if err := sy.node(n); err != nil {
			return err
		}
		if i < len(nodes)-1 {
			pending = append(pending, sy.emit(OpJumpIfFalse, -1))
		}
	}
	sy.patch(pending)
	return nil
}

func (sy *synthesizer) emitPass(s *Sanified) error {
	sy.emit(OpNop, 0)
	return nil
}

func (sy *synthesizer) emitType(s *Sanified) error {
	t := s.Hint.(reflect.Type)
	op := OpType
	if sy.conf != nil && sy.conf.NumericTower() && (t == hint.Float || t == hint.Complex) {
		op = OpTypeTower
	}
	sy.emit(op, sy.prog.bind(t))
	return nil
}

func (sy *synthesizer) emitNil(s *Sanified) error {
	sy.emit(OpNil, 0)
	return nil
}

func (sy *synthesizer) emitNotImpl(s *Sanified) error {
	sy.emit(OpNotImpl, 0)
	return nil
}

func (sy *synthesizer) emitLiteral(s *Sanified) error {
	sy.emit(OpLiteral, sy.prog.bind(s.Hint.(*hint.LiteralHint)))
	return nil
}

func (sy *synthesizer) emitProtocol(s *Sanified) error {
	sy.emit(OpProto, sy.prog.bind(s.Hint.(*hint.ProtocolHint)))
	return nil
}

func (sy *synthesizer) emitSchema(s *Sanified) error {
	sy.emit(OpSchema, sy.prog.bind(s.Hint.(*hint.SchemaHint)))
	return nil
}

func (sy *synthesizer) emitRef(s *Sanified) error {
	sy.emit(OpRef, sy.prog.bind(&refCheck{ref: s.Hint.(*hint.ForwardRef), conf: sy.conf}))
	return nil
}

// emitUnion compiles members in declared order with short-circuit on the
// first success.
func (sy *synthesizer) emitUnion(s *Sanified) error {
	var pending []int
	for i, m := range s.Children {
		if err := sy.node(m); err != nil {
			return err
		}
		if i < len(s.Children)-1 {
			pending = append(pending, sy.emit(OpJumpIfTrue, -1))
		}
	}
	sy.patch(pending)
	return nil
}

// subProgram compiles a container child into its own program, sharing the
// memo cache with top-level synthesis.
func (sy *synthesizer) subProgram(child *Sanified) (*Program, error) {
	return Synthesize(child, sy.conf)
}

func (sy *synthesizer) emitSeq(s *Sanified) error {
	sq := s.Hint.(*hint.SeqHint)
	elem, err := sy.subProgram(s.Children[0])
	if err != nil {
		return err
	}
	op := OpSeqSample
	if sy.strategy() == StrategyLinear {
		op = OpSeqScan
	}
	sy.emit(op, sy.prog.bind(&seqCheck{elem: elem, unique: sq.Kind == hint.SeqSet}))
	return nil
}

func (sy *synthesizer) emitMap(s *Sanified) error {
	key, err := sy.subProgram(s.Children[0])
	if err != nil {
		return err
	}
	val, err := sy.subProgram(s.Children[1])
	if err != nil {
		return err
	}
	op := OpMapSample
	if sy.strategy() == StrategyLinear {
		op = OpMapScan
	}
	sy.emit(op, sy.prog.bind(&mapCheck{key: key, value: val}))
	return nil
}

func (sy *synthesizer) emitTuple(s *Sanified) error {
	t := s.Hint.(*hint.TupleHint)
	if t.Variadic {
		// A variadic tuple is a homogeneous sequence of its single slot.
		elem, err := sy.subProgram(s.Children[0])
		if err != nil {
			return err
		}
		op := OpSeqSample
		if sy.strategy() == StrategyLinear {
			op = OpSeqScan
		}
		sy.emit(op, sy.prog.bind(&seqCheck{elem: elem}))
		return nil
	}
	slots := make([]*Program, 0, len(s.Children))
	for _, c := range s.Children {
		p, err := sy.subProgram(c)
		if err != nil {
			return err
		}
		slots = append(slots, p)
	}
	sy.emit(OpTuple, sy.prog.bind(&tupleCheck{slots: slots}))
	return nil
}

func (sy *synthesizer) emitRecord(s *Sanified) error {
	r := s.Hint.(*hint.RecordHint)
	check := &recordCheck{name: r.Name, rtype: r.Type}
	st := structTypeOf(r.Type)
	for i, f := range r.Fields {
		prog, err := sy.subProgram(s.Children[i])
		if err != nil {
			return err
		}
		fc := recordFieldCheck{name: f.Name, optional: f.Optional, prog: prog}
		if st != nil {
			sf, ok := st.FieldByName(f.Name)
			if !ok {
				return fmt.Errorf("record %s names field %q not present in %v", r.Name, f.Name, r.Type)
			}
			fc.index = sf.Index
		}
		check.fields = append(check.fields, fc)
	}
	sy.emit(OpRecord, sy.prog.bind(check))
	return nil
}

func (sy *synthesizer) emitAnnotated(s *Sanified) error {
	a := s.Hint.(*hint.AnnotatedHint)
	base := s.Children[0]
	var pending []int
	if !base.Ignorable {
		if err := sy.node(base); err != nil {
			return err
		}
		pending = append(pending, sy.emit(OpJumpIfFalse, -1))
	}
	for i, p := range a.Predicates {
		sy.emit(OpPred, sy.prog.bind(p))
		if i < len(a.Predicates)-1 {
			pending = append(pending, sy.emit(OpJumpIfFalse, -1))
		}
	}
	// The last test leaves the verdict; earlier failures land here too.
	sy.patch(pending)
	return nil
}

func (sy *synthesizer) emitNewType(s *Sanified) error {
	return sy.node(s.Children[0])
}

// emitGeneric conjoins the origin type test with every reduced
// pseudo-superclass check, extrinsic members first.
func (sy *synthesizer) emitGeneric(s *Sanified) error {
	g := s.Hint.(*hint.GenericHint)
	origin := g.Origin()

	var pending []int
	if origin.Type != nil {
		sy.emit(OpType, sy.prog.bind(origin.Type))
		if len(s.Supers) > 0 {
			pending = append(pending, sy.emit(OpJumpIfFalse, -1))
		}
	} else if len(s.Supers) == 0 {
		sy.emit(OpNop, 0)
		return nil
	}
	for i, sup := range s.Supers {
		if err := sy.node(sup); err != nil {
			return err
		}
		if i < len(s.Supers)-1 {
			pending = append(pending, sy.emit(OpJumpIfFalse, -1))
		}
	}
	sy.patch(pending)
	return nil
}

// emitCyclic degrades a self-referential back-edge to its outermost
// shape test, breaking the recursion while still rejecting foreign values.
func (sy *synthesizer) emitCyclic(s *Sanified) error {
	switch s.Sign {
	case hint.SignGeneric:
		g := s.Hint.(*hint.GenericHint).Origin()
		if g.Type != nil {
			sy.emit(OpType, sy.prog.bind(g.Type))
		} else {
			sy.emit(OpNop, 0)
		}
	case hint.SignRecord:
		r := s.Hint.(*hint.RecordHint)
		if r.Type != nil {
			sy.emit(OpType, sy.prog.bind(r.Type))
		} else {
			sy.emit(OpNop, 0)
		}
	case hint.SignSequence, hint.SignTuple:
		sy.emit(OpSeqSample, sy.prog.bind(&seqCheck{elem: passProgram}))
	case hint.SignMapping:
		sy.emit(OpMapSample, sy.prog.bind(&mapCheck{key: passProgram, value: passProgram}))
	default:
		sy.emit(OpNop, 0)
	}
	return nil
}

func (sy *synthesizer) strategy() Strategy {
	if sy.conf == nil {
		return StrategyConstant
	}
	return sy.conf.Strategy()
}

func structTypeOf(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		return t
	}
	return nil
}
