package hintexec

import (
	"reflect"
	"testing"

	"github.com/typegate-dev/typegate/hint"
)

func runCheck(t *testing.T, h hint.Hint, v any, conf *Config) bool {
	t.Helper()
	ok, err := Check(v, h, conf)
	if err != nil {
		t.Fatalf("Check(%v, %v): %v", v, h, err)
	}
	return ok
}

func TestCheckTypes(t *testing.T) {
	conf := DefaultConfig()
	testCases := []struct {
		name string
		h    hint.Hint
		v    any
		want bool
	}{
		{"int ok", hint.Int, 3, true},
		{"int vs float", hint.Int, 3.0, false},
		{"int vs string", hint.Int, "3", false},
		{"str ok", hint.String, "hi", true},
		{"none ok", hint.None, nil, true},
		{"none vs value", hint.None, 0, false},
		{"none vs nil slice", hint.None, []int(nil), true},
		{"union first", hint.Union(hint.Int, hint.String), 3, true},
		{"union second", hint.Union(hint.Int, hint.String), "x", true},
		{"union miss", hint.Union(hint.Int, hint.String), 3.0, false},
		{"optional nil", hint.Optional(hint.Int), nil, true},
		{"any", hint.Any, struct{}{}, true},
		{"not implemented", hint.NotImplemented, hint.NotImplementedValue, true},
		{"not implemented miss", hint.NotImplemented, 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := runCheck(t, tc.h, tc.v, conf); got != tc.want {
				t.Errorf("Check = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestCheckLiteral(t *testing.T) {
	conf := DefaultConfig()
	lit := hint.Literal(1, "a")
	if !runCheck(t, lit, 1, conf) || !runCheck(t, lit, "a", conf) {
		t.Errorf("literal rejected its own candidates")
	}
	if runCheck(t, lit, 2, conf) {
		t.Errorf("literal accepted a non-candidate")
	}
	// Same type before equality: a bool never satisfies an int candidate
	// and an int64 never satisfies an int one.
	if runCheck(t, hint.Literal(1), true, conf) {
		t.Errorf("Literal[1] accepted true")
	}
	if runCheck(t, hint.Literal(1), int64(1), conf) {
		t.Errorf("Literal[1] accepted int64(1)")
	}
}

func TestCheckNumericTower(t *testing.T) {
	plain := DefaultConfig()
	tower := MustConfig(ConfigSpec{NumericTower: true})

	if runCheck(t, hint.Float, 3, plain) {
		t.Errorf("float hint accepted int without the tower")
	}
	if !runCheck(t, hint.Float, 3, tower) {
		t.Errorf("float hint rejected int under the tower")
	}
	if !runCheck(t, hint.Float, 3.5, tower) {
		t.Errorf("float hint rejected float under the tower")
	}
	if !runCheck(t, hint.Complex, 3.5, tower) || !runCheck(t, hint.Complex, 3, tower) {
		t.Errorf("complex hint rejected a narrower numeric under the tower")
	}
	if runCheck(t, hint.Complex, "3", tower) {
		t.Errorf("complex hint accepted a string under the tower")
	}
	// The tower widens only downward-compatible kinds; int stays strict.
	if runCheck(t, hint.Int, 3.0, tower) {
		t.Errorf("int hint accepted float under the tower")
	}
}

// The constant strategy samples; the linear strategy scans. A bad item
// beyond the sample is caught only by the scan.
func TestCheckStrategies(t *testing.T) {
	constant := DefaultConfig()
	linear := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	bad := []any{1, 2, "3"}

	if !runCheck(t, hint.List(hint.Int), bad, constant) {
		t.Errorf("constant strategy scanned past its sample")
	}
	if runCheck(t, hint.List(hint.Int), bad, linear) {
		t.Errorf("linear strategy missed the bad item")
	}
	if !runCheck(t, hint.List(hint.Int), []any{1, 2, 3}, linear) {
		t.Errorf("linear strategy rejected a conforming list")
	}
	if !runCheck(t, hint.List(hint.Int), []any{}, linear) {
		t.Errorf("empty list rejected")
	}
	if runCheck(t, hint.List(hint.Int), "not a list", linear) {
		t.Errorf("non-sequence accepted")
	}
}

func TestCheckTypedSlices(t *testing.T) {
	conf := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	if !runCheck(t, hint.List(hint.Int), []int{1, 2, 3}, conf) {
		t.Errorf("typed int slice rejected")
	}
	if !runCheck(t, hint.List(hint.Int), [3]int{1, 2, 3}, conf) {
		t.Errorf("array rejected")
	}
}

func TestCheckSetUniqueness(t *testing.T) {
	linear := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	if !runCheck(t, hint.Set(hint.Int), []int{1, 2, 3}, linear) {
		t.Errorf("unique set rejected")
	}
	if runCheck(t, hint.Set(hint.Int), []int{1, 2, 1}, linear) {
		t.Errorf("duplicate items accepted under set semantics")
	}
}

func TestCheckLinearSampleLimit(t *testing.T) {
	capped := MustConfig(ConfigSpec{Strategy: StrategyLinear, LinearSampleLimit: 2})
	// The bad item sits beyond the cap.
	if !runCheck(t, hint.List(hint.Int), []any{1, 2, "3"}, capped) {
		t.Errorf("scan did not stop at the sample limit")
	}
}

func TestCheckMap(t *testing.T) {
	linear := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	h := hint.Map(hint.String, hint.Int)
	if !runCheck(t, h, map[string]int{"a": 1}, linear) {
		t.Errorf("conforming map rejected")
	}
	if runCheck(t, h, map[string]any{"a": "x"}, linear) {
		t.Errorf("bad value type accepted")
	}
	if runCheck(t, h, map[int]int{1: 1}, linear) {
		t.Errorf("bad key type accepted")
	}
	if runCheck(t, h, "not a map", linear) {
		t.Errorf("non-map accepted")
	}
	if !runCheck(t, h, map[string]int{}, linear) {
		t.Errorf("empty map rejected")
	}
}

func TestCheckTuple(t *testing.T) {
	conf := DefaultConfig()
	h := hint.Tuple(hint.Int, hint.String)
	if !runCheck(t, h, []any{1, "a"}, conf) {
		t.Errorf("conforming tuple rejected")
	}
	if runCheck(t, h, []any{1}, conf) {
		t.Errorf("short tuple accepted")
	}
	if runCheck(t, h, []any{1, 2}, conf) {
		t.Errorf("bad slot type accepted")
	}

	variadic := hint.Tuple(hint.Int, hint.Ellipsis)
	linear := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	if !runCheck(t, variadic, []any{1, 2, 3}, linear) {
		t.Errorf("variadic tuple rejected conforming items")
	}
	if runCheck(t, variadic, []any{1, "2"}, linear) {
		t.Errorf("variadic tuple accepted a bad item")
	}
}

func TestCheckRecord(t *testing.T) {
	conf := DefaultConfig()
	type point struct {
		X int
		Y int
	}
	rec := hint.Record("Point", reflect.TypeOf(point{}),
		hint.RecordField{Name: "X", Hint: hint.Int},
		hint.RecordField{Name: "Y", Hint: hint.Int})

	if !runCheck(t, rec, point{X: 1, Y: 2}, conf) {
		t.Errorf("conforming struct rejected")
	}
	if !runCheck(t, rec, &point{X: 1, Y: 2}, conf) {
		t.Errorf("pointer to conforming struct rejected")
	}
	if runCheck(t, rec, struct{ X, Y int }{1, 2}, conf) {
		t.Errorf("foreign struct type accepted")
	}

	loose := hint.Record("Point", nil,
		hint.RecordField{Name: "x", Hint: hint.Int},
		hint.RecordField{Name: "y", Hint: hint.Int, Optional: true})
	if !runCheck(t, loose, map[string]any{"x": 1, "y": 2}, conf) {
		t.Errorf("conforming map record rejected")
	}
	if !runCheck(t, loose, map[string]any{"x": 1}, conf) {
		t.Errorf("map record missing an optional field rejected")
	}
	if runCheck(t, loose, map[string]any{"y": 2}, conf) {
		t.Errorf("map record missing a required field accepted")
	}
	if runCheck(t, loose, map[string]any{"x": "1"}, conf) {
		t.Errorf("map record with a bad field type accepted")
	}
}

func TestCheckProtocol(t *testing.T) {
	conf := DefaultConfig()
	stringer := hint.MustProtocol("Stringer",
		reflect.TypeOf((*interface{ String() string })(nil)).Elem())
	if !runCheck(t, stringer, StrategyLinear, conf) {
		t.Errorf("Stringer implementor rejected")
	}
	if runCheck(t, stringer, 42, conf) {
		t.Errorf("non-implementor accepted")
	}
}

func TestCheckAnnotated(t *testing.T) {
	conf := DefaultConfig()
	positive := hint.Annotated(hint.Int, hint.MustIs("value > 0"))
	if !runCheck(t, positive, 3, conf) {
		t.Errorf("conforming annotated value rejected")
	}
	if runCheck(t, positive, -3, conf) {
		t.Errorf("failing predicate accepted")
	}
	if runCheck(t, positive, "3", conf) {
		t.Errorf("failing base accepted")
	}

	// Predicates run in declaration order after the base.
	banded := hint.Annotated(hint.Int, hint.MustIs("value > 0"), hint.MustIs("value < 10"))
	if !runCheck(t, banded, 5, conf) || runCheck(t, banded, 50, conf) {
		t.Errorf("chained predicates misbehaved")
	}
}

func TestCheckSchema(t *testing.T) {
	conf := DefaultConfig()
	h := hint.MustJSONSchema(`{"type": "array", "items": {"type": "integer"}}`)
	if !runCheck(t, h, []any{1.0, 2.0}, conf) {
		t.Errorf("conforming document rejected")
	}
	if runCheck(t, h, []any{"x"}, conf) {
		t.Errorf("non-conforming document accepted")
	}
}

func TestCheckGeneric(t *testing.T) {
	conf := MustConfig(ConfigSpec{Strategy: StrategyLinear})
	type intBox struct{ Items []int }
	rec := hint.Record("HasItems", reflect.TypeOf(intBox{}),
		hint.RecordField{Name: "Items", Hint: hint.List(hint.Int)})
	boxed := hint.NewGeneric("Box", reflect.TypeOf(intBox{}), rec)

	if !runCheck(t, boxed, intBox{Items: []int{1, 2}}, conf) {
		t.Errorf("conforming generic rejected")
	}
	if runCheck(t, boxed, 3, conf) {
		t.Errorf("origin type mismatch accepted")
	}
}

func TestCheckForwardRef(t *testing.T) {
	conf := DefaultConfig()
	ref := hint.NewRef("Node", func(string) (hint.Hint, bool) { return hint.Int, true })
	s, err := SanifyLoose(ref, conf)
	if err != nil {
		t.Fatal(err)
	}
	p, err := Synthesize(s, conf)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := RunProgram(p, 3, conf); err != nil || !ok {
		t.Errorf("RunProgram through ref = %t, %v; want true", ok, err)
	}
	if ok, _ := RunProgram(p, "x", conf); ok {
		t.Errorf("ref check accepted a mismatching value")
	}

	dangling, err := SanifyLoose(hint.NewRef("Gone", func(string) (hint.Hint, bool) { return nil, false }), conf)
	if err != nil {
		t.Fatal(err)
	}
	dp, err := Synthesize(dangling, conf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RunProgram(dp, 3, conf); err == nil {
		t.Errorf("unresolvable ref: want error at first use")
	}
}

func TestCheckUnionDeclaredOrder(t *testing.T) {
	// Membership, not order, is observable through the verdict; order is
	// pinned by the program text.
	ResetCaches()
	p := mustSynthesize(t, hint.Union(hint.Int, hint.String), DefaultConfig())
	text := p.Text()
	intAt := indexOf(text, "type int")
	strAt := indexOf(text, "type string")
	if intAt < 0 || strAt < 0 || intAt > strAt {
		t.Errorf("union members compiled out of declared order:\n%s", text)
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
