package hintexec

import (
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/typegate-dev/typegate/hint"
)

// Scan budget state. Linear container scans are advisory: once the process
// has spent more than DeadlineMultiplier of its uptime inside scans, the
// remainder of a scan is waved through rather than stalling the caller.
var (
	procStart = time.Now()
	scanNanos atomic.Int64
)

const budgetCheckStride = 64

// RunProgram executes a compiled check against a value and reports the
// verdict. Errors are engine-level: failed predicate compilation targets,
// unresolvable references, malformed programs. An ordinary type mismatch
// is a false verdict, not an error.
func RunProgram(p *Program, v any, conf *Config) (bool, error) {
	flag := true
	for pc := 0; pc < len(p.Ops); pc++ {
		in := p.Ops[pc]
		switch in.Op {
		case OpNop:
			flag = true
		case OpJumpIfTrue:
			if flag {
				pc = in.A - 1
			}
		case OpJumpIfFalse:
			if !flag {
				pc = in.A - 1
			}
		case OpNil:
			flag = isNilValue(v)
		case OpNotImpl:
			flag = v == hint.NotImplementedValue
		case OpType:
			flag = isInstance(v, p.Bindings[in.A].(reflect.Type))
		case OpTypeTower:
			flag = isTowerInstance(v, p.Bindings[in.A].(reflect.Type))
		case OpLiteral:
			flag = literalMatch(v, p.Bindings[in.A].(*hint.LiteralHint))
		case OpPred:
			ok, err := p.Bindings[in.A].(*hint.Predicate).Check(v)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpSchema:
			flag = p.Bindings[in.A].(*hint.SchemaHint).Validate(v) == nil
		case OpProto:
			flag = implementsProtocol(v, p.Bindings[in.A].(*hint.ProtocolHint))
		case OpRef:
			ok, err := runRef(p.Bindings[in.A].(*refCheck), v)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpSeqSample:
			ok, err := runSeqSample(p.Bindings[in.A].(*seqCheck), v, conf)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpSeqScan:
			ok, err := runSeqScan(p.Bindings[in.A].(*seqCheck), v, conf)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpMapSample:
			ok, err := runMapSample(p.Bindings[in.A].(*mapCheck), v, conf)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpMapScan:
			ok, err := runMapScan(p.Bindings[in.A].(*mapCheck), v, conf)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpTuple:
			ok, err := runTuple(p.Bindings[in.A].(*tupleCheck), v, conf)
			if err != nil {
				return false, err
			}
			flag = ok
		case OpRecord:
			ok, err := runRecord(p.Bindings[in.A].(*recordCheck), v, conf)
			if err != nil {
				return false, err
			}
			flag = ok
		default:
			return false, &InternalError{Msg: fmt.Sprintf("unknown opcode %v at pc %d", in.Op, pc)}
		}
	}
	return flag, nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan,
		reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isInstance(v any, t reflect.Type) bool {
	vt := reflect.TypeOf(v)
	if vt == nil {
		return false
	}
	if t.Kind() == reflect.Interface {
		return vt.Implements(t)
	}
	return vt.AssignableTo(t)
}

// isTowerInstance widens float64 to accept the integer kinds and
// complex128 to accept both float and integer kinds.
func isTowerInstance(v any, t reflect.Type) bool {
	if isInstance(v, t) {
		return true
	}
	vt := reflect.TypeOf(v)
	if vt == nil {
		return false
	}
	switch t {
	case hint.Float:
		return isIntKind(vt.Kind())
	case hint.Complex:
		return isIntKind(vt.Kind()) || isFloatKind(vt.Kind())
	}
	return false
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// literalMatch requires an exact dynamic type before comparing values, so
// a bool never satisfies an integer candidate and vice versa.
func literalMatch(v any, lit *hint.LiteralHint) bool {
	vt := reflect.TypeOf(v)
	for _, c := range lit.Values {
		if reflect.TypeOf(c) != vt {
			continue
		}
		if vt != nil && !vt.Comparable() {
			continue
		}
		if v == c {
			return true
		}
	}
	return false
}

func implementsProtocol(v any, p *hint.ProtocolHint) bool {
	vt := reflect.TypeOf(v)
	return vt != nil && vt.Implements(p.Iface)
}

// runRef is the deferred-reference slow path: resolve, reduce, compile,
// run. The referent's program lands in the memo cache, so only the first
// call through a proxy pays the full cost.
func runRef(rc *refCheck, v any) (bool, error) {
	resolved, err := rc.ref.Resolve()
	if err != nil {
		return false, err
	}
	s, err := SanifyLoose(resolved, rc.conf)
	if err != nil {
		return false, err
	}
	p, err := Synthesize(s, rc.conf)
	if err != nil {
		return false, err
	}
	return RunProgram(p, v, rc.conf)
}

func asSequence(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv, true
	}
	return reflect.Value{}, false
}

func runSeqSample(sc *seqCheck, v any, conf *Config) (bool, error) {
	rv, ok := asSequence(v)
	if !ok {
		return false, nil
	}
	if rv.Len() == 0 {
		return true, nil
	}
	return RunProgram(sc.elem, rv.Index(0).Interface(), conf)
}

func runSeqScan(sc *seqCheck, v any, conf *Config) (bool, error) {
	rv, ok := asSequence(v)
	if !ok {
		return false, nil
	}
	n := scanLimit(rv.Len(), conf)
	var seen map[any]struct{}
	if sc.unique {
		seen = make(map[any]struct{}, n)
	}
	start := time.Now()
	defer func() { scanNanos.Add(int64(time.Since(start))) }()
	for i := 0; i < n; i++ {
		if i%budgetCheckStride == budgetCheckStride-1 && budgetExceeded(conf, start) {
			return true, nil
		}
		item := rv.Index(i).Interface()
		ok, err := RunProgram(sc.elem, item, conf)
		if err != nil || !ok {
			return ok, err
		}
		if seen != nil && comparableValue(item) {
			if _, dup := seen[item]; dup {
				return false, nil
			}
			seen[item] = struct{}{}
		}
	}
	return true, nil
}

func runMapSample(mc *mapCheck, v any, conf *Config) (bool, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return false, nil
	}
	it := rv.MapRange()
	if !it.Next() {
		return true, nil
	}
	ok, err := RunProgram(mc.key, it.Key().Interface(), conf)
	if err != nil || !ok {
		return ok, err
	}
	return RunProgram(mc.value, it.Value().Interface(), conf)
}

func runMapScan(mc *mapCheck, v any, conf *Config) (bool, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return false, nil
	}
	n := scanLimit(rv.Len(), conf)
	start := time.Now()
	defer func() { scanNanos.Add(int64(time.Since(start))) }()
	it := rv.MapRange()
	for i := 0; i < n && it.Next(); i++ {
		if i%budgetCheckStride == budgetCheckStride-1 && budgetExceeded(conf, start) {
			return true, nil
		}
		ok, err := RunProgram(mc.key, it.Key().Interface(), conf)
		if err != nil || !ok {
			return ok, err
		}
		ok, err = RunProgram(mc.value, it.Value().Interface(), conf)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

func runTuple(tc *tupleCheck, v any, conf *Config) (bool, error) {
	rv, ok := asSequence(v)
	if !ok {
		return false, nil
	}
	if rv.Len() != len(tc.slots) {
		return false, nil
	}
	for i, slot := range tc.slots {
		ok, err := RunProgram(slot, rv.Index(i).Interface(), conf)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// runRecord dispatches on the value's shape: struct fields when the record
// names a type, string-keyed map entries otherwise.
func runRecord(rc *recordCheck, v any, conf *Config) (bool, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false, nil
		}
		rv = rv.Elem()
	}
	switch {
	case rc.rtype != nil:
		want := rc.rtype
		if want.Kind() == reflect.Pointer {
			want = want.Elem()
		}
		if !rv.IsValid() || rv.Type() != want {
			return false, nil
		}
		for _, f := range rc.fields {
			ok, err := RunProgram(f.prog, rv.FieldByIndex(f.index).Interface(), conf)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		for _, f := range rc.fields {
			mv := rv.MapIndex(reflect.ValueOf(f.name).Convert(rv.Type().Key()))
			if !mv.IsValid() {
				if f.optional {
					continue
				}
				return false, nil
			}
			ok, err := RunProgram(f.prog, mv.Interface(), conf)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}
	return false, nil
}

func scanLimit(n int, conf *Config) int {
	if conf == nil {
		return n
	}
	if limit := conf.LinearSampleLimit(); limit > 0 && limit < n {
		return limit
	}
	return n
}

func budgetExceeded(conf *Config, scanStart time.Time) bool {
	if conf == nil {
		return false
	}
	mult := conf.DeadlineMultiplier()
	if mult <= 0 {
		return false
	}
	uptime := time.Since(procStart)
	spent := time.Duration(scanNanos.Load()) + time.Since(scanStart)
	return float64(spent) > float64(uptime)*mult
}

func comparableValue(v any) bool {
	t := reflect.TypeOf(v)
	return t == nil || t.Comparable()
}
