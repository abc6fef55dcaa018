package hint_test

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/typegate-dev/typegate/hint"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want hint.Hint
	}{
		{"builtin", "int", hint.Int},
		{"builtin alias", "str", hint.String},
		{"none", "None", hint.None},
		{"any", "Any", hint.Any},
		{"self", "Self", hint.Self},
		{"union", "int | str", hint.Union(hint.Int, hint.String)},
		{"list", "list[int]", hint.List(hint.Int)},
		{"set", "set[str]", hint.Set(hint.String)},
		{"dict", "dict[str, int]", hint.Map(hint.String, hint.Int)},
		{"map alias", "map[str, int]", hint.Map(hint.String, hint.Int)},
		{"tuple", "tuple[int, str]", hint.Tuple(hint.Int, hint.String)},
		{"variadic tuple", "tuple[int, ...]", hint.Tuple(hint.Int, hint.Ellipsis)},
		{"optional", "Optional[int]", hint.Optional(hint.Int)},
		{"union subscript", "Union[int, str]", hint.Union(hint.Int, hint.String)},
		{"nested", "list[int | None]", hint.List(hint.Union(hint.Int, hint.None))},
		{"parens", "(int | str)", hint.Union(hint.Int, hint.String)},
		{"literal ints", "Literal[1, 2]", hint.Literal(1, 2)},
		{"literal mixed", `Literal[1, 'a', True, None]`, hint.Literal(1, "a", true, nil)},
		{"literal float", "Literal[1.5]", hint.Literal(1.5)},
		{"literal negative", "Literal[-3]", hint.Literal(-3)},
		{"unresolved name", "Node", "Node"},
		{"unresolved dotted", "pkg.Node", "pkg.Node"},
		{"union with unresolved", "int | Node", hint.Union(hint.Int, "Node")},
	}
	opts := cmp.Options{
		cmp.Comparer(func(a, b reflect.Type) bool { return a == b }),
		cmp.Comparer(func(a, b *hint.Special) bool { return a == b }),
		cmpopts.IgnoreUnexported(hint.GenericHint{}, hint.ForwardRef{}),
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := hint.Parse(tc.src, nil)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.src, err)
			}
			if diff := cmp.Diff(tc.want, got, opts); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tc.src, diff)
			}
		})
	}
}

func TestParseLookup(t *testing.T) {
	node := reflect.TypeOf(struct{ V int }{})
	lookup := func(name string) (hint.Hint, bool) {
		if name == "Node" {
			return node, true
		}
		return nil, false
	}
	got, err := hint.Parse("Node | None", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	u, ok := got.(*hint.UnionHint)
	if !ok || len(u.Members) != 2 {
		t.Fatalf("Parse = %v, want a two-member union", got)
	}
	if u.Members[0] != hint.Hint(node) {
		t.Errorf("resolved member = %v, want %v", u.Members[0], node)
	}
}

func TestParseGenericSubscript(t *testing.T) {
	g := hint.NewGeneric("Box", reflect.TypeOf(struct{ V any }{})).
		WithParams(hint.TypeVar("T"))
	lookup := func(name string) (hint.Hint, bool) {
		if name == "Box" {
			return g, true
		}
		return nil, false
	}
	got, err := hint.Parse("Box[int]", lookup)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sub, ok := got.(*hint.GenericHint)
	if !ok {
		t.Fatalf("Parse = %T, want *GenericHint", got)
	}
	if sub.Origin() != g {
		t.Errorf("subscripted generic does not track its origin")
	}
	if len(sub.Args) != 1 || sub.Args[0] != hint.Hint(hint.Int) {
		t.Errorf("subscription args = %v, want [int]", sub.Args)
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"dangling union", "int |"},
		{"unclosed subscript", "list[int"},
		{"unterminated string", `Literal['a`},
		{"trailing garbage", "int str"},
		{"non-value literal", "Literal[foo]"},
		{"subscripted builtin", "int[str]"},
		{"missing subscript", "list"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := hint.Parse(tc.src, nil); err == nil {
				t.Errorf("Parse(%q): want error, got nil", tc.src)
			}
		})
	}
}
