// Package cond provides the immutable expression tree used to describe
// repository filter predicates. Expressions are built with factory functions
// (Eq, In, And, ...) and compiled to dialect-specific SQL by dialect/sql.
// Leaf values are never interpolated into SQL text; they are always bound
// as statement parameters.
package cond

import (
	"errors"
	"fmt"
)

// Op is a comparison operator supported by leaf predicates.
type Op string

// Comparison operators.
const (
	OpEQ      Op = "="
	OpNE      Op = "<>"
	OpLT      Op = "<"
	OpLE      Op = "<="
	OpGT      Op = ">"
	OpGE      Op = ">="
	OpLike    Op = "LIKE"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
	OpIn      Op = "IN"
)

// Unary reports whether the operator takes no bound value.
func (o Op) Unary() bool { return o == OpIsNull || o == OpNotNull }

// Expr is one node in a predicate tree. The concrete types are Comparison,
// AndExpr, OrExpr and NotExpr. Expressions are immutable once constructed.
type Expr interface {
	expr()
}

// Comparison is a leaf predicate comparing one column against a value.
// For OpIn, Values holds the candidate set and Value is unused. For unary
// operators both are unused.
type Comparison struct {
	Column string
	Op     Op
	Value  any
	Values []any
}

// AndExpr joins two or more expressions with AND.
type AndExpr struct {
	Exprs []Expr
}

// OrExpr joins two or more expressions with OR.
type OrExpr struct {
	Exprs []Expr
}

// NotExpr negates its child expression.
type NotExpr struct {
	Expr Expr
}

func (Comparison) expr() {}
func (AndExpr) expr()    {}
func (OrExpr) expr()     {}
func (NotExpr) expr()    {}

// Eq builds a `column = value` predicate.
func Eq(column string, v any) Comparison { return Comparison{Column: column, Op: OpEQ, Value: v} }

// Ne builds a `column <> value` predicate.
func Ne(column string, v any) Comparison { return Comparison{Column: column, Op: OpNE, Value: v} }

// Lt builds a `column < value` predicate.
func Lt(column string, v any) Comparison { return Comparison{Column: column, Op: OpLT, Value: v} }

// Le builds a `column <= value` predicate.
func Le(column string, v any) Comparison { return Comparison{Column: column, Op: OpLE, Value: v} }

// Gt builds a `column > value` predicate.
func Gt(column string, v any) Comparison { return Comparison{Column: column, Op: OpGT, Value: v} }

// Ge builds a `column >= value` predicate.
func Ge(column string, v any) Comparison { return Comparison{Column: column, Op: OpGE, Value: v} }

// Like builds a `column LIKE pattern` predicate.
func Like(column, pattern string) Comparison {
	return Comparison{Column: column, Op: OpLike, Value: pattern}
}

// IsNull builds a `column IS NULL` predicate.
func IsNull(column string) Comparison { return Comparison{Column: column, Op: OpIsNull} }

// NotNull builds a `column IS NOT NULL` predicate.
func NotNull(column string) Comparison { return Comparison{Column: column, Op: OpNotNull} }

// In builds a `column IN (...)` predicate. An empty candidate set is legal to
// construct but fails at compile time.
func In(column string, vs ...any) Comparison {
	values := make([]any, len(vs))
	copy(values, vs)
	return Comparison{Column: column, Op: OpIn, Values: values}
}

// And groups expressions with AND. Groups with fewer than two children are
// legal to construct but fail at compile time.
func And(exprs ...Expr) AndExpr {
	children := make([]Expr, len(exprs))
	copy(children, exprs)
	return AndExpr{Exprs: children}
}

// Or groups expressions with OR.
func Or(exprs ...Expr) OrExpr {
	children := make([]Expr, len(exprs))
	copy(children, exprs)
	return OrExpr{Exprs: children}
}

// Not negates an expression.
func Not(e Expr) NotExpr { return NotExpr{Expr: e} }

// All combines a plain sequence of expressions with an implicit AND. Unlike
// And it accepts any length: nil entries are dropped, zero expressions
// yield nil (no predicate) and a single expression is returned as-is
// rather than wrapped in a degenerate group.
func All(exprs ...Expr) Expr {
	kept := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And(kept...)
	}
}

// OrderBy is one ordering expression.
type OrderBy struct {
	Column string
	Desc   bool
}

// Asc orders ascending by column.
func Asc(column string) OrderBy { return OrderBy{Column: column} }

// Desc orders descending by column.
func Desc(column string) OrderBy { return OrderBy{Column: column, Desc: true} }

// ErrInvalidCondition is the sentinel matched by all InvalidConditionError
// values via errors.Is.
var ErrInvalidCondition = errors.New("sqlmap: invalid condition")

// InvalidConditionError reports a malformed predicate tree: a degenerate
// AND/OR group, an empty IN candidate set, or a nil child expression.
type InvalidConditionError struct {
	Column string // offending column, when the fault is on a leaf
	Reason string
}

// Error returns the error string.
func (e *InvalidConditionError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("sqlmap: invalid condition on column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("sqlmap: invalid condition: %s", e.Reason)
}

// Is reports whether the target matches ErrInvalidCondition.
func (e *InvalidConditionError) Is(err error) bool {
	return err == ErrInvalidCondition
}

// IsInvalidCondition reports whether err is an InvalidConditionError.
func IsInvalidCondition(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidConditionError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidCondition)
}
