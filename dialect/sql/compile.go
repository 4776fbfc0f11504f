package sql

import (
	"strings"

	"github.com/syssam/sqlmap/cond"
	"github.com/syssam/sqlmap/dialect"
)

// CompileWhere compiles a predicate tree into a parameterized SQL fragment.
// startAt is the 1-based position of the first placeholder to emit, so that
// fragments compose with parameters bound earlier in the statement. The
// returned parameter order exactly matches placeholder emission order.
func CompileWhere(d dialect.Dialect, expr cond.Expr, startAt int) (string, []any, error) {
	c := &whereCompiler{d: d, n: startAt}
	frag, err := c.compile(expr)
	if err != nil {
		return "", nil, err
	}
	return frag, c.args, nil
}

type whereCompiler struct {
	d    dialect.Dialect
	n    int // next placeholder position
	args []any
}

func (c *whereCompiler) compile(expr cond.Expr) (string, error) {
	switch e := expr.(type) {
	case cond.Comparison:
		return c.comparison(e)
	case cond.AndExpr:
		return c.group(e.Exprs, " AND ")
	case cond.OrExpr:
		return c.group(e.Exprs, " OR ")
	case cond.NotExpr:
		if e.Expr == nil {
			return "", &cond.InvalidConditionError{Reason: "NOT child expression is nil"}
		}
		frag, err := c.compile(e.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + frag + ")", nil
	case nil:
		return "", &cond.InvalidConditionError{Reason: "expression is nil"}
	default:
		return "", &cond.InvalidConditionError{Reason: "unsupported expression type"}
	}
}

func (c *whereCompiler) comparison(e cond.Comparison) (string, error) {
	col := c.d.Quote(e.Column)
	if e.Op.Unary() {
		return col + " " + string(e.Op), nil
	}
	if e.Op == cond.OpIn {
		if len(e.Values) == 0 {
			return "", &cond.InvalidConditionError{Column: e.Column, Reason: "IN candidate set is empty"}
		}
		phs := make([]string, len(e.Values))
		for i, v := range e.Values {
			phs[i] = c.next(v)
		}
		return col + " IN (" + strings.Join(phs, ", ") + ")", nil
	}
	return col + " " + string(e.Op) + " " + c.next(e.Value), nil
}

func (c *whereCompiler) group(exprs []cond.Expr, sep string) (string, error) {
	// Degenerate groups are rejected rather than flattened; callers must
	// not construct them.
	if len(exprs) < 2 {
		return "", &cond.InvalidConditionError{Reason: "logical group must contain at least two expressions"}
	}
	parts := make([]string, len(exprs))
	for i, child := range exprs {
		frag, err := c.compile(child)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + frag + ")"
	}
	return strings.Join(parts, sep), nil
}

func (c *whereCompiler) next(v any) string {
	ph := c.d.Placeholder(c.n)
	c.n++
	c.args = append(c.args, v)
	return ph
}
