package hint

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// LookupFunc resolves a bare or dotted name appearing in a hint expression.
// A miss leaves the name as a deferred forward reference.
type LookupFunc func(name string) (Hint, bool)

// Parse evaluates a stringified hint expression, e.g. "list[int] | Node".
//
// The grammar covers union bars, subscripted builtins (list, set, map/dict,
// tuple, Literal, Optional, Union), literal atoms inside Literal, the
// variadic `...` marker inside tuple, parenthesized groups, and bare or
// dotted names. Names not recognized as builtins are resolved through
// lookup; unresolved names are returned as string hints, deferring
// resolution to the caller's scope.
func Parse(src string, lookup LookupFunc) (Hint, error) {
	toks, err := lexHint(src)
	if err != nil {
		return nil, err
	}
	p := &hintParser{src: src, toks: toks, lookup: lookup}
	h, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, p.errorf("unexpected %q after hint expression", p.peek().text)
	}
	return h, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokEllipsis
	tokPunct // one of [ ] ( ) , | .
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lexHint(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], "..."):
			toks = append(toks, token{tokEllipsis, "...", i})
			i += 3
		case c == '[' || c == ']' || c == '(' || c == ')' || c == ',' || c == '|' || c == '.':
			toks = append(toks, token{tokPunct, string(c), i})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var b strings.Builder
			for j < len(src) && src[j] != quote {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				b.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("hint: unterminated string at offset %d in %q", i, src)
			}
			toks = append(toks, token{tokString, b.String(), i})
			i = j + 1
		case c >= '0' && c <= '9' || c == '-':
			j := i
			if c == '-' {
				j++
			}
			isFloat := false
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				if src[j] == '.' {
					// Keep `1.` from eating a following ellipsis.
					if strings.HasPrefix(src[j:], "...") {
						break
					}
					isFloat = true
				}
				j++
			}
			kind := tokInt
			if isFloat {
				kind = tokFloat
			}
			toks = append(toks, token{kind, src[i:j], i})
			i = j
		case isIdentStart(rune(c)):
			j := i
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("hint: unexpected character %q at offset %d in %q", c, i, src)
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isIdentPart(r rune) bool  { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

type hintParser struct {
	src    string
	toks   []token
	pos    int
	lookup LookupFunc
}

func (p *hintParser) peek() token  { return p.toks[p.pos] }
func (p *hintParser) next() token  { t := p.toks[p.pos]; p.pos++; return t }
func (p *hintParser) atEOF() bool  { return p.peek().kind == tokEOF }
func (p *hintParser) errorf(format string, args ...any) error {
	return fmt.Errorf("hint: %s in %q", fmt.Sprintf(format, args...), p.src)
}

func (p *hintParser) accept(text string) bool {
	if p.peek().kind == tokPunct && p.peek().text == text {
		p.pos++
		return true
	}
	return false
}

func (p *hintParser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf("expected %q, got %q", text, p.peek().text)
	}
	return nil
}

// parseExpr := term ('|' term)*
func (p *hintParser) parseExpr() (Hint, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokPunct || p.peek().text != "|" {
		return first, nil
	}
	members := []Hint{first}
	for p.accept("|") {
		m, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return Union(members...), nil
}

func (p *hintParser) parseTerm() (Hint, error) {
	if p.accept("(") {
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return h, nil
	}
	t := p.peek()
	if t.kind != tokIdent {
		return nil, p.errorf("expected a hint, got %q", t.text)
	}
	name := p.parseDottedName()
	return p.resolveName(name)
}

func (p *hintParser) parseDottedName() string {
	var b strings.Builder
	b.WriteString(p.next().text)
	for p.peek().kind == tokPunct && p.peek().text == "." {
		if p.toks[p.pos+1].kind != tokIdent {
			break
		}
		p.next()
		b.WriteByte('.')
		b.WriteString(p.next().text)
	}
	return b.String()
}

var builtinPlain = map[string]Hint{
	"int":     Int,
	"int64":   Int64,
	"uint":    Uint,
	"float":   Float,
	"float64": Float,
	"complex": Complex,
	"bool":    Bool,
	"str":     String,
	"string":  String,
	"bytes":   Bytes,
	"None":    None,
	"Any":     Any,
	"object":  Any,
	"Self":    Self,
}

func (p *hintParser) resolveName(name string) (Hint, error) {
	subscriptable := name == "list" || name == "set" || name == "dict" ||
		name == "map" || name == "tuple" || name == "Literal" ||
		name == "Optional" || name == "Union"
	if subscriptable {
		if err := p.expect("["); err != nil {
			return nil, err
		}
		return p.parseSubscript(name)
	}
	if h, ok := builtinPlain[name]; ok {
		return h, nil
	}
	if p.lookup != nil {
		if h, ok := p.lookup(name); ok {
			return p.maybeSubscript(h, name)
		}
	}
	// Unresolved: leave the dotted name as a deferred forward reference.
	return name, nil
}

// maybeSubscript applies `[...]` to resolved generics.
func (p *hintParser) maybeSubscript(h Hint, name string) (Hint, error) {
	if p.peek().kind != tokPunct || p.peek().text != "[" {
		return h, nil
	}
	g, ok := h.(*GenericHint)
	if !ok {
		return nil, p.errorf("%s is not subscriptable", name)
	}
	p.next()
	args, err := p.parseHintArgs()
	if err != nil {
		return nil, err
	}
	return g.Of(args...), nil
}

func (p *hintParser) parseSubscript(name string) (Hint, error) {
	switch name {
	case "Literal":
		values, err := p.parseLiteralArgs()
		if err != nil {
			return nil, err
		}
		return Literal(values...), nil
	case "tuple":
		return p.parseTupleArgs()
	}

	args, err := p.parseHintArgs()
	if err != nil {
		return nil, err
	}
	switch name {
	case "list", "set":
		if len(args) != 1 {
			return nil, p.errorf("%s[] takes exactly one argument", name)
		}
		if name == "set" {
			return Set(args[0]), nil
		}
		return List(args[0]), nil
	case "dict", "map":
		if len(args) != 2 {
			return nil, p.errorf("%s[] takes exactly two arguments", name)
		}
		return Map(args[0], args[1]), nil
	case "Optional":
		if len(args) != 1 {
			return nil, p.errorf("Optional[] takes exactly one argument")
		}
		return Optional(args[0]), nil
	case "Union":
		return Union(args...), nil
	}
	return nil, p.errorf("unknown subscriptable %q", name)
}

func (p *hintParser) parseHintArgs() ([]Hint, error) {
	var args []Hint
	for {
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, h)
		if p.accept(",") {
			continue
		}
		break
	}
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *hintParser) parseTupleArgs() (Hint, error) {
	var items []Hint
	variadic := false
	for {
		if p.peek().kind == tokEllipsis {
			p.next()
			variadic = true
			break
		}
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, h)
		if p.accept(",") {
			continue
		}
		break
	}
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	if variadic {
		if len(items) != 1 {
			return nil, p.errorf("variadic tuple takes exactly one item hint before ...")
		}
		return Tuple(items[0], Ellipsis), nil
	}
	return Tuple(items...), nil
}

func (p *hintParser) parseLiteralArgs() ([]any, error) {
	var values []any
	for {
		t := p.next()
		switch t.kind {
		case tokInt:
			n, err := strconv.Atoi(t.text)
			if err != nil {
				return nil, p.errorf("bad integer literal %q", t.text)
			}
			values = append(values, n)
		case tokFloat:
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, p.errorf("bad number literal %q", t.text)
			}
			values = append(values, f)
		case tokString:
			values = append(values, t.text)
		case tokIdent:
			switch t.text {
			case "True", "true":
				values = append(values, true)
			case "False", "false":
				values = append(values, false)
			case "None":
				values = append(values, nil)
			default:
				return nil, p.errorf("literal candidates must be values, got %q", t.text)
			}
		default:
			return nil, p.errorf("literal candidates must be values, got %q", t.text)
		}
		if p.accept(",") {
			continue
		}
		break
	}
	if err := p.expect("]"); err != nil {
		return nil, err
	}
	return values, nil
}
