package hintexec

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/typegate-dev/typegate/hint"
)

// Opcode identifies one check instruction. Every test sets the machine's
// boolean flag from the current value; jumps compose tests into the and/or
// structure of the reduced hint.
type Opcode int

const (
	// OpNop sets the flag true. An empty program passes.
	OpNop Opcode = iota
	// OpType tests reflect assignability against Bindings[A], a reflect.Type.
	OpType
	// OpTypeTower is OpType widened by the numeric tower; Bindings[A] is
	// float64 or complex128.
	OpTypeTower
	// OpNil tests the value for nil or the None sentinel.
	OpNil
	// OpNotImpl tests the value for the NotImplemented sentinel.
	OpNotImpl
	// OpLiteral tests membership in Bindings[A], a *hint.LiteralHint, by
	// type first and only then by equality.
	OpLiteral
	// OpPred evaluates Bindings[A], a *hint.Predicate, over the value.
	OpPred
	// OpSchema validates the value against Bindings[A], a *hint.SchemaHint.
	OpSchema
	// OpProto tests whether the value's type implements Bindings[A], a
	// *hint.ProtocolHint.
	OpProto
	// OpRef resolves Bindings[A], a *hint.ForwardRef, then synthesizes and
	// runs the referent's program. The slow path of deferred references.
	OpRef
	// OpSeqSample guards the value as a sequence and checks one sampled
	// item against Bindings[A], a *seqCheck. Constant strategy.
	OpSeqSample
	// OpSeqScan guards the value as a sequence and checks every item
	// against Bindings[A] under the scan budget. Linear strategy.
	OpSeqScan
	// OpMapSample guards the value as a map and checks one sampled entry
	// against Bindings[A], a *mapCheck.
	OpMapSample
	// OpMapScan guards the value as a map and checks every entry against
	// Bindings[A] under the scan budget.
	OpMapScan
	// OpTuple checks per-slot hints of Bindings[A], a *tupleCheck, against
	// a fixed-length sequence.
	OpTuple
	// OpRecord checks named fields of Bindings[A], a *recordCheck, against
	// a struct or string-keyed map.
	OpRecord
	// OpJumpIfTrue jumps to A when the flag is set. Union short-circuit.
	OpJumpIfTrue
	// OpJumpIfFalse jumps to A when the flag is clear. Conjunction
	// fail-fast.
	OpJumpIfFalse
)

func (op Opcode) String() string {
	switch op {
	case OpNop:
		return "nop"
	case OpType:
		return "type"
	case OpTypeTower:
		return "typetower"
	case OpNil:
		return "nil"
	case OpNotImpl:
		return "notimpl"
	case OpLiteral:
		return "literal"
	case OpPred:
		return "pred"
	case OpSchema:
		return "schema"
	case OpProto:
		return "proto"
	case OpRef:
		return "ref"
	case OpSeqSample:
		return "seqsample"
	case OpSeqScan:
		return "seqscan"
	case OpMapSample:
		return "mapsample"
	case OpMapScan:
		return "mapscan"
	case OpTuple:
		return "tuple"
	case OpRecord:
		return "record"
	case OpJumpIfTrue:
		return "jumpiftrue"
	case OpJumpIfFalse:
		return "jumpiffalse"
	}
	return fmt.Sprintf("opcode(%d)", int(op))
}

// Instr is one instruction. A is a jump target for control ops and a
// bindings index for test ops.
type Instr struct {
	Op Opcode
	A  int
}

// seqCheck carries a sequence instruction's element program. Unique marks
// set semantics: scanned items must additionally be distinct.
type seqCheck struct {
	elem   *Program
	unique bool
}

// mapCheck carries a mapping instruction's key and value programs.
type mapCheck struct {
	key   *Program
	value *Program
}

// tupleCheck carries per-slot programs. Variadic tuples never reach here:
// synthesis lowers them to a homogeneous sequence check.
type tupleCheck struct {
	slots []*Program
}

// recordFieldCheck is one record field: the program plus the struct field
// index path, resolved once at synthesis when the record names a type.
type recordFieldCheck struct {
	name     string
	optional bool
	index    []int
	prog     *Program
}

type recordCheck struct {
	name   string
	rtype  reflect.Type
	fields []recordFieldCheck
}

// Program is a compiled check: a flat instruction sequence over a shared
// bindings table, with sub-programs for container element checks. The
// machine's final flag is the check verdict.
//
// Programs are immutable after synthesis and shared across calls; the
// memo cache hands out one Program per cacheable hint and configuration.
type Program struct {
	Ops      []Instr
	Bindings []any

	// Cacheable mirrors the sanified hint: contextual programs are built
	// per decoration and never enter the memo cache.
	Cacheable bool

	textOnce sync.Once
	text     string
}

// bind appends v to the bindings table and returns its index.
func (p *Program) bind(v any) int {
	p.Bindings = append(p.Bindings, v)
	return len(p.Bindings) - 1
}

// Text renders the program as deterministic canonical text: one line per
// instruction, sub-programs indented. Two programs with equal text perform
// the same check; the rendering is memoized.
func (p *Program) Text() string {
	p.textOnce.Do(func() {
		var b strings.Builder
		p.writeText(&b, 0)
		p.text = b.String()
	})
	return p.text
}

func (p *Program) writeText(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if len(p.Ops) == 0 {
		b.WriteString(indent)
		b.WriteString("pass\n")
		return
	}
	for i, in := range p.Ops {
		fmt.Fprintf(b, "%s%03d %s", indent, i, in.Op)
		switch in.Op {
		case OpJumpIfTrue, OpJumpIfFalse:
			fmt.Fprintf(b, " ->%03d\n", in.A)
		case OpNop, OpNil, OpNotImpl:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
			p.writeBindingText(b, in.A, depth)
		}
	}
}

func (p *Program) writeBindingText(b *strings.Builder, idx int, depth int) {
	if idx < 0 || idx >= len(p.Bindings) {
		fmt.Fprintf(b, "binding?%d\n", idx)
		return
	}
	switch v := p.Bindings[idx].(type) {
	case reflect.Type:
		fmt.Fprintf(b, "%v\n", v)
	case *hint.LiteralHint:
		fmt.Fprintf(b, "%s\n", hint.Repr(v))
	case *hint.Predicate:
		fmt.Fprintf(b, "%q\n", v.Expr)
	case *hint.SchemaHint:
		fmt.Fprintf(b, "%s\n", hint.Repr(v))
	case *hint.ProtocolHint:
		fmt.Fprintf(b, "%s(%v)\n", v.Name, v.Iface)
	case *refCheck:
		fmt.Fprintf(b, "%q\n", v.ref.Name)
	case *seqCheck:
		kind := "list"
		if v.unique {
			kind = "set"
		}
		fmt.Fprintf(b, "%s:\n", kind)
		v.elem.writeText(b, depth+1)
	case *mapCheck:
		b.WriteString("map key:\n")
		v.key.writeText(b, depth+1)
		fmt.Fprintf(b, "%s    value:\n", strings.Repeat("  ", depth))
		v.value.writeText(b, depth+1)
	case *tupleCheck:
		fmt.Fprintf(b, "%d slots:\n", len(v.slots))
		for _, s := range v.slots {
			s.writeText(b, depth+1)
		}
	case *recordCheck:
		fmt.Fprintf(b, "%s:\n", v.name)
		for _, f := range v.fields {
			opt := ""
			if f.optional {
				opt = "?"
			}
			fmt.Fprintf(b, "%s  .%s%s:\n", strings.Repeat("  ", depth), f.name, opt)
			f.prog.writeText(b, depth+2)
		}
	default:
		fmt.Fprintf(b, "%v\n", v)
	}
}

// refCheck carries a deferred reference plus the configuration its slow
// path will synthesize under.
type refCheck struct {
	ref  *hint.ForwardRef
	conf *Config
}

// passProgram is the shared trivially-true program, used for ignorable
// container children.
var passProgram = &Program{Cacheable: true}
