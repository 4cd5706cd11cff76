package events

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// newSelectionEnv builds the expression environment for a container
// schema. Every branch is declared as a dynamically typed variable so
// selections can compare numeric branches without caring about their
// physical width.
func newSelectionEnv(columns []string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(columns))
	for _, name := range columns {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	return cel.NewEnv(opts...)
}

// compileSelection compiles a selection expression against the
// environment, enforcing a boolean result. Compilation failures are
// reported before any entry is evaluated, which keeps selection
// application atomic.
func compileSelection(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &SelectionError{Expr: expr, Err: issues.Err()}
	}
	if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
		return nil, &SelectionError{Expr: expr, Err: fmt.Errorf("expression must evaluate to a boolean, found %s", t)}
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, &SelectionError{Expr: expr, Err: err}
	}
	return prg, nil
}

// evalSelection evaluates a compiled selection against one entry.
func evalSelection(prg cel.Program, expr string, entry Entry) (bool, error) {
	out, _, err := prg.Eval(map[string]interface{}(entry))
	if err != nil {
		return false, &SelectionError{Expr: expr, Err: err}
	}
	pass, ok := out.Value().(bool)
	if !ok {
		return false, &SelectionError{Expr: expr, Err: fmt.Errorf("expression evaluated to %T, expected bool", out.Value())}
	}
	return pass, nil
}
