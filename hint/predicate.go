package hint

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Predicate is a compiled validator expression attached to an Annotated
// hint. The expression sees the checked value as `value` and must evaluate
// to a boolean.
type Predicate struct {
	Expr string

	prog cel.Program
}

var (
	predicateEnvOnce sync.Once
	predicateEnv     *cel.Env
	predicateEnvErr  error
)

func celEnv() (*cel.Env, error) {
	predicateEnvOnce.Do(func() {
		predicateEnv, predicateEnvErr = cel.NewEnv(
			cel.Variable("value", cel.DynType),
		)
	})
	return predicateEnv, predicateEnvErr
}

// Is compiles a validator predicate. Compilation errors are
// hint-definition errors and surface immediately, never at check time.
func Is(expr string) (*Predicate, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("hint: predicate environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("hint: invalid predicate %q: %w", expr, iss.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("hint: predicate %q: %w", expr, err)
	}
	return &Predicate{Expr: expr, prog: prog}, nil
}

// MustIs is Is, panicking on error. For package-level hint declarations.
func MustIs(expr string) *Predicate {
	p, err := Is(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Check evaluates the predicate against a value. A non-boolean result is a
// hint-definition error, not a violation.
func (p *Predicate) Check(v any) (bool, error) {
	out, _, err := p.prog.Eval(map[string]any{"value": v})
	if err != nil {
		return false, fmt.Errorf("hint: predicate %q: %w", p.Expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("hint: predicate %q returned %T, want bool", p.Expr, out.Value())
	}
	return b, nil
}
