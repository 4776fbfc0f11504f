package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/sqlmap/cond"
	"github.com/syssam/sqlmap/dialect"
)

// SelectBuilder assembles a complete SELECT statement from table metadata,
// an optional predicate, ordering and paging.
type SelectBuilder struct {
	d       dialect.Dialect
	table   string
	proj    string
	columns []string
	where   cond.Expr
	orderBy []cond.OrderBy
	limit   int
	offset  int
	hasLim  bool
	hasOff  bool
}

// Select returns a builder for `SELECT ... FROM table`.
func Select(d dialect.Dialect, table string) *SelectBuilder {
	return &SelectBuilder{d: d, table: table}
}

// Columns sets the projected columns. When neither Columns nor Expr is set,
// the statement projects `*`.
func (b *SelectBuilder) Columns(columns ...string) *SelectBuilder {
	b.columns = columns
	return b
}

// Expr sets a raw projection expression, e.g. `COUNT(*)`.
func (b *SelectBuilder) Expr(expr string) *SelectBuilder {
	b.proj = expr
	return b
}

// Count projects `COUNT(*)`.
func (b *SelectBuilder) Count() *SelectBuilder { return b.Expr("COUNT(*)") }

// Where sets the filter predicate.
func (b *SelectBuilder) Where(expr cond.Expr) *SelectBuilder {
	b.where = expr
	return b
}

// OrderBy sets the ordering expressions.
func (b *SelectBuilder) OrderBy(orderBy ...cond.OrderBy) *SelectBuilder {
	b.orderBy = orderBy
	return b
}

// Limit sets the row limit.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit, b.hasLim = n, true
	return b
}

// Offset sets the row offset.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset, b.hasOff = n, true
	return b
}

// Build returns the statement and its ordered parameters.
func (b *SelectBuilder) Build() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	switch {
	case b.proj != "":
		sb.WriteString(b.proj)
	case len(b.columns) > 0:
		sb.WriteString(quoteJoin(b.d, b.columns))
	default:
		sb.WriteString("*")
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.d.Quote(b.table))

	args, err := appendWhere(&sb, b.d, b.where, nil)
	if err != nil {
		return "", nil, err
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range b.orderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(b.d.Quote(o.Column))
			if o.Desc {
				sb.WriteString(" DESC")
			} else {
				sb.WriteString(" ASC")
			}
		}
	}
	if b.hasLim {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.d.Placeholder(len(args) + 1))
		args = append(args, b.limit)
	}
	if b.hasOff {
		sb.WriteString(" OFFSET ")
		sb.WriteString(b.d.Placeholder(len(args) + 1))
		args = append(args, b.offset)
	}
	return sb.String(), args, nil
}

// InsertBuilder assembles an INSERT statement for one or more rows.
type InsertBuilder struct {
	d         dialect.Dialect
	table     string
	columns   []string
	rows      [][]any
	returning string
}

// Insert returns a builder for `INSERT INTO table`.
func Insert(d dialect.Dialect, table string) *InsertBuilder {
	return &InsertBuilder{d: d, table: table}
}

// Columns sets the inserted column list. Auto-increment key columns are
// omitted by the caller when their value is unset.
func (b *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	b.columns = columns
	return b
}

// Values appends one row of values matching the column list. Calling it more
// than once produces a multi-row statement.
func (b *InsertBuilder) Values(values ...any) *InsertBuilder {
	b.rows = append(b.rows, values)
	return b
}

// Returning requests the generated value of the given column. It is emitted
// only when the dialect supports RETURNING; otherwise callers recover the
// key through the driver's LastInsertId.
func (b *InsertBuilder) Returning(column string) *InsertBuilder {
	b.returning = column
	return b
}

// UseReturning reports whether the built statement carries a RETURNING
// clause, deciding how the caller recovers the generated key.
func (b *InsertBuilder) UseReturning() bool {
	return b.returning != "" && b.d.SupportsReturning()
}

// Build returns the statement and its ordered parameters.
func (b *InsertBuilder) Build() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.d.Quote(b.table))

	var args []any
	if len(b.columns) == 0 {
		if b.d.Name() == dialect.MySQL {
			sb.WriteString(" () VALUES ()")
		} else {
			sb.WriteString(" DEFAULT VALUES")
		}
	} else {
		sb.WriteString(" (")
		sb.WriteString(quoteJoin(b.d, b.columns))
		sb.WriteString(") VALUES ")
		for i, row := range b.rows {
			if len(row) != len(b.columns) {
				return "", nil, &cond.InvalidConditionError{Reason: "insert row " + strconv.Itoa(i) + " does not match the column list"}
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			for j, v := range row {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(b.d.Placeholder(len(args) + 1))
				args = append(args, v)
			}
			sb.WriteString(")")
		}
	}
	if b.UseReturning() {
		sb.WriteString(" RETURNING ")
		sb.WriteString(b.d.Quote(b.returning))
	}
	return sb.String(), args, nil
}

// UpdateBuilder assembles an UPDATE statement.
type UpdateBuilder struct {
	d       dialect.Dialect
	table   string
	columns []string
	values  []any
	where   cond.Expr
}

// Update returns a builder for `UPDATE table SET ...`.
func Update(d dialect.Dialect, table string) *UpdateBuilder {
	return &UpdateBuilder{d: d, table: table}
}

// Set adds one column assignment.
func (b *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	b.columns = append(b.columns, column)
	b.values = append(b.values, v)
	return b
}

// Where sets the filter predicate. There is no mandatory-WHERE guard; the
// caller owns protection against full-table mutation.
func (b *UpdateBuilder) Where(expr cond.Expr) *UpdateBuilder {
	b.where = expr
	return b
}

// Build returns the statement and its ordered parameters: assignments
// first, then predicate bindings.
func (b *UpdateBuilder) Build() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.d.Quote(b.table))
	sb.WriteString(" SET ")
	args := make([]any, 0, len(b.values))
	for i, column := range b.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(b.d.Quote(column))
		sb.WriteString(" = ")
		sb.WriteString(b.d.Placeholder(len(args) + 1))
		args = append(args, b.values[i])
	}
	return appendWhereTail(&sb, b.d, b.where, args)
}

// DeleteBuilder assembles a DELETE statement.
type DeleteBuilder struct {
	d     dialect.Dialect
	table string
	where cond.Expr
}

// Delete returns a builder for `DELETE FROM table`.
func Delete(d dialect.Dialect, table string) *DeleteBuilder {
	return &DeleteBuilder{d: d, table: table}
}

// Where sets the filter predicate. As with UpdateBuilder, no mandatory-WHERE
// guard is applied.
func (b *DeleteBuilder) Where(expr cond.Expr) *DeleteBuilder {
	b.where = expr
	return b
}

// Build returns the statement and its ordered parameters.
func (b *DeleteBuilder) Build() (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.d.Quote(b.table))
	return appendWhereTail(&sb, b.d, b.where, nil)
}

func appendWhere(sb *strings.Builder, d dialect.Dialect, where cond.Expr, args []any) ([]any, error) {
	if where == nil {
		return args, nil
	}
	frag, whereArgs, err := CompileWhere(d, where, len(args)+1)
	if err != nil {
		return nil, err
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(frag)
	return append(args, whereArgs...), nil
}

func appendWhereTail(sb *strings.Builder, d dialect.Dialect, where cond.Expr, args []any) (string, []any, error) {
	args, err := appendWhere(sb, d, where, args)
	if err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

func quoteJoin(d dialect.Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}
