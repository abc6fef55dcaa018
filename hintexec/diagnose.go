package hintexec

import (
	"fmt"
	"reflect"

	"github.com/typegate-dev/typegate/hint"
	"github.com/typegate-dev/typegate/pkg/hintfmt"
)

// Diagnose re-derives the verdict for a rejected value by walking the
// reduced hint structurally, blaming the first failing sub-path in
// declared order. It is deliberately independent of the compiled program:
// a walk that concludes the value conforms exposes a synthesis bug, which
// the caller reports as a DesyncError instead of a misleading blame.
//
// The walk always inspects containers exhaustively, so it can blame an
// item the constant-strategy check never sampled; that is a stricter
// verdict, never a desync.
func Diagnose(s *Sanified, v any, conf *Config) (cause string, conforms bool, err error) {
	d := &diagnoser{conf: conf, width: 96}
	if conf != nil {
		d.width = conf.ReprWidth()
	}
	ok, cause, err := d.walk(s, v)
	if err != nil {
		return "", false, err
	}
	return cause, ok, nil
}

type diagnoser struct {
	conf  *Config
	width int
}

func (d *diagnoser) fmtValue(v any) string { return hintfmt.FormatValue(v, d.width) }

func (d *diagnoser) walk(s *Sanified, v any) (bool, string, error) {
	if s.Ignorable {
		return true, "", nil
	}
	if s.Cyclic {
		return d.walkCyclic(s, v)
	}
	switch s.Sign {
	case hint.SignAny:
		return true, "", nil
	case hint.SignType:
		return d.walkType(s.Hint.(reflect.Type), v)
	case hint.SignNone:
		if isNilValue(v) {
			return true, "", nil
		}
		return false, fmt.Sprintf("%s is not nil", d.fmtValue(v)), nil
	case hint.SignNotImplemented:
		if v == hint.NotImplementedValue {
			return true, "", nil
		}
		return false, fmt.Sprintf("%s is not the NotImplemented sentinel", d.fmtValue(v)), nil
	case hint.SignLiteral:
		lit := s.Hint.(*hint.LiteralHint)
		if literalMatch(v, lit) {
			return true, "", nil
		}
		return false, fmt.Sprintf("%s equals none of the candidates of %s",
			d.fmtValue(v), hintfmt.Format(lit)), nil
	case hint.SignProtocol:
		p := s.Hint.(*hint.ProtocolHint)
		if implementsProtocol(v, p) {
			return true, "", nil
		}
		return false, fmt.Sprintf("%T does not implement %s", v, p.Name), nil
	case hint.SignSchema:
		sc := s.Hint.(*hint.SchemaHint)
		if verr := sc.Validate(v); verr != nil {
			return false, fmt.Sprintf("%s fails schema validation: %v", d.fmtValue(v), verr), nil
		}
		return true, "", nil
	case hint.SignRef:
		return d.walkRef(s.Hint.(*hint.ForwardRef), v)
	case hint.SignUnion:
		return d.walkUnion(s, v)
	case hint.SignSequence:
		return d.walkSeq(s, v)
	case hint.SignTuple:
		return d.walkTuple(s, v)
	case hint.SignMapping:
		return d.walkMap(s, v)
	case hint.SignAnnotated:
		return d.walkAnnotated(s, v)
	case hint.SignNewType:
		return d.walk(s.Children[0], v)
	case hint.SignGeneric:
		return d.walkGeneric(s, v)
	case hint.SignRecord:
		return d.walkRecord(s, v)
	}
	return false, "", &InternalError{Msg: fmt.Sprintf("no diagnosis rule for sign %q", s.Sign)}
}

func (d *diagnoser) walkType(t reflect.Type, v any) (bool, string, error) {
	tower := d.conf != nil && d.conf.NumericTower() && (t == hint.Float || t == hint.Complex)
	if tower {
		if isTowerInstance(v, t) {
			return true, "", nil
		}
	} else if isInstance(v, t) {
		return true, "", nil
	}
	return false, fmt.Sprintf("%s %s is not an instance of %s",
		typeLabel(v), d.fmtValue(v), hintfmt.Format(t)), nil
}

func (d *diagnoser) walkCyclic(s *Sanified, v any) (bool, string, error) {
	switch s.Sign {
	case hint.SignGeneric:
		if t := s.Hint.(*hint.GenericHint).Origin().Type; t != nil {
			return d.walkType(t, v)
		}
	case hint.SignRecord:
		if t := s.Hint.(*hint.RecordHint).Type; t != nil {
			return d.walkType(t, v)
		}
	case hint.SignSequence, hint.SignTuple:
		if _, ok := asSequence(v); !ok {
			return false, fmt.Sprintf("%s %s is not a sequence", typeLabel(v), d.fmtValue(v)), nil
		}
	case hint.SignMapping:
		if reflect.ValueOf(v).Kind() != reflect.Map {
			return false, fmt.Sprintf("%s %s is not a map", typeLabel(v), d.fmtValue(v)), nil
		}
	}
	return true, "", nil
}

func (d *diagnoser) walkRef(r *hint.ForwardRef, v any) (bool, string, error) {
	resolved, err := r.Resolve()
	if err != nil {
		return false, "", err
	}
	s, err := SanifyLoose(resolved, d.conf)
	if err != nil {
		return false, "", err
	}
	return d.walk(s, v)
}

// walkUnion blames the union as a whole: with every member rejecting the
// value, singling one out would mislead.
func (d *diagnoser) walkUnion(s *Sanified, v any) (bool, string, error) {
	for _, m := range s.Children {
		ok, _, err := d.walk(m, v)
		if err != nil {
			return false, "", err
		}
		if ok {
			return true, "", nil
		}
	}
	return false, fmt.Sprintf("%s %s matches none of %s",
		typeLabel(v), d.fmtValue(v), hintfmt.Format(s.Hint)), nil
}

func (d *diagnoser) walkSeq(s *Sanified, v any) (bool, string, error) {
	sq := s.Hint.(*hint.SeqHint)
	rv, isSeq := asSequence(v)
	if !isSeq {
		return false, fmt.Sprintf("%s %s is not a sequence", typeLabel(v), d.fmtValue(v)), nil
	}
	var seen map[any]struct{}
	if sq.Kind == hint.SeqSet {
		seen = make(map[any]struct{}, rv.Len())
	}
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		ok, cause, err := d.walk(s.Children[0], item)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("%s item %d %s", sq.Kind, i, cause), nil
		}
		if seen != nil && comparableValue(item) {
			if _, dup := seen[item]; dup {
				return false, fmt.Sprintf("set item %d %s is a duplicate", i, d.fmtValue(item)), nil
			}
			seen[item] = struct{}{}
		}
	}
	return true, "", nil
}

func (d *diagnoser) walkTuple(s *Sanified, v any) (bool, string, error) {
	t := s.Hint.(*hint.TupleHint)
	rv, isSeq := asSequence(v)
	if !isSeq {
		return false, fmt.Sprintf("%s %s is not a sequence", typeLabel(v), d.fmtValue(v)), nil
	}
	if t.Variadic {
		for i := 0; i < rv.Len(); i++ {
			ok, cause, err := d.walk(s.Children[0], rv.Index(i).Interface())
			if err != nil {
				return false, "", err
			}
			if !ok {
				return false, fmt.Sprintf("tuple item %d %s", i, cause), nil
			}
		}
		return true, "", nil
	}
	if rv.Len() != len(s.Children) {
		return false, fmt.Sprintf("tuple has length %d, hint expects %d slots",
			rv.Len(), len(s.Children)), nil
	}
	for i, slot := range s.Children {
		ok, cause, err := d.walk(slot, rv.Index(i).Interface())
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("tuple item %d %s", i, cause), nil
		}
	}
	return true, "", nil
}

func (d *diagnoser) walkMap(s *Sanified, v any) (bool, string, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return false, fmt.Sprintf("%s %s is not a map", typeLabel(v), d.fmtValue(v)), nil
	}
	it := rv.MapRange()
	for it.Next() {
		key := it.Key().Interface()
		ok, cause, err := d.walk(s.Children[0], key)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("map key %s", cause), nil
		}
		ok, cause, err = d.walk(s.Children[1], it.Value().Interface())
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("map value at key %s %s", d.fmtValue(key), cause), nil
		}
	}
	return true, "", nil
}

// walkAnnotated blames the base first, then the predicates in declaration
// order.
func (d *diagnoser) walkAnnotated(s *Sanified, v any) (bool, string, error) {
	a := s.Hint.(*hint.AnnotatedHint)
	ok, cause, err := d.walk(s.Children[0], v)
	if err != nil || !ok {
		return ok, cause, err
	}
	for _, p := range a.Predicates {
		ok, perr := p.Check(v)
		if perr != nil {
			return false, "", perr
		}
		if !ok {
			return false, fmt.Sprintf("%s does not satisfy validator %q", d.fmtValue(v), p.Expr), nil
		}
	}
	return true, "", nil
}

func (d *diagnoser) walkGeneric(s *Sanified, v any) (bool, string, error) {
	g := s.Hint.(*hint.GenericHint).Origin()
	if g.Type != nil {
		ok, cause, err := d.walkType(g.Type, v)
		if err != nil || !ok {
			return ok, cause, err
		}
	}
	for _, sup := range s.Supers {
		ok, cause, err := d.walk(sup, v)
		if err != nil || !ok {
			return ok, cause, err
		}
	}
	return true, "", nil
}

func (d *diagnoser) walkRecord(s *Sanified, v any) (bool, string, error) {
	r := s.Hint.(*hint.RecordHint)
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false, fmt.Sprintf("nil pointer is not a %s record", r.Name), nil
		}
		rv = rv.Elem()
	}
	if r.Type != nil {
		want := r.Type
		if want.Kind() == reflect.Pointer {
			want = want.Elem()
		}
		if !rv.IsValid() || rv.Type() != want {
			return false, fmt.Sprintf("%s %s is not a %s record", typeLabel(v), d.fmtValue(v), r.Name), nil
		}
		for i, f := range r.Fields {
			fv := rv.FieldByName(f.Name)
			if !fv.IsValid() {
				return false, fmt.Sprintf("record %s is missing field %q", r.Name, f.Name), nil
			}
			ok, cause, err := d.walk(s.Children[i], fv.Interface())
			if err != nil {
				return false, "", err
			}
			if !ok {
				return false, fmt.Sprintf("field %s.%s %s", r.Name, f.Name, cause), nil
			}
		}
		return true, "", nil
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return false, fmt.Sprintf("%s %s is not a string-keyed map", typeLabel(v), d.fmtValue(v)), nil
	}
	for i, f := range r.Fields {
		mv := rv.MapIndex(reflect.ValueOf(f.Name).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			if f.Optional {
				continue
			}
			return false, fmt.Sprintf("record %s is missing required key %q", r.Name, f.Name), nil
		}
		ok, cause, err := d.walk(s.Children[i], mv.Interface())
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("field %s.%s %s", r.Name, f.Name, cause), nil
		}
	}
	return true, "", nil
}

func typeLabel(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
