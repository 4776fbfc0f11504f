package sqlmap

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/sqlmap/cond"
	"github.com/syssam/sqlmap/dialect"
	velsql "github.com/syssam/sqlmap/dialect/sql"
	"github.com/syssam/sqlmap/dialect/sql/schema"
)

// Query bundles the optional clauses of a list operation.
type Query struct {
	Where   cond.Expr
	Order   []cond.OrderBy
	Limit   int
	Offset  int
	Include []string // relation names to eager-load
}

// tableSync tracks one table's schema synchronization. The first goroutine
// to claim a table performs the work and closes done; concurrent callers
// wait on it.
type tableSync struct {
	done chan struct{}
	err  error
}

// engine executes statements for registered models. It is untyped; the
// generic Repository and the Client are thin views over it.
type engine struct {
	conn dialect.ExecQuerier
	drv  dialect.Driver // root driver, used for schema synchronization
	d    dialect.Dialect
	reg  *Registry

	autoSchema bool
	policy     schema.ConflictPolicy
	idempotent bool

	cache    Cache
	cacheTTL time.Duration
	tx       bool

	mu     *sync.Mutex
	states map[string]*tableSync
}

func newEngine(drv dialect.Driver, reg *Registry, o options) (*engine, error) {
	d, err := dialect.New(drv.Dialect())
	if err != nil {
		return nil, err
	}
	return &engine{
		conn:       drv,
		drv:        drv,
		d:          d,
		reg:        reg,
		autoSchema: o.autoSchema,
		policy:     o.policy,
		idempotent: o.idempotent,
		cache:      o.cache,
		cacheTTL:   o.cacheTTL,
		mu:         &sync.Mutex{},
		states:     make(map[string]*tableSync),
	}, nil
}

// withTx returns a view of the engine that executes on tx. Schema state is
// shared with the parent so ensured tables are not re-ensured per
// transaction.
func (e *engine) withTx(tx dialect.Tx) *engine {
	txe := *e
	txe.conn = tx
	txe.tx = true
	return &txe
}

// cached loads a primary-key lookup from the cache. Cache reads are skipped
// inside transactions, which must observe their own writes.
func (e *engine) cached(ctx context.Context, spec *ModelSpec, rv reflect.Value, key any) bool {
	if e.cache == nil || e.tx {
		return false
	}
	b, err := e.cache.Get(ctx, cacheKey(spec.Table, key))
	if err != nil || b == nil {
		return false
	}
	return msgpack.Unmarshal(b, rv.Addr().Interface()) == nil
}

// remember stores a freshly loaded record. Cache failures are ignored; the
// cache is an accelerator, not a source of truth.
func (e *engine) remember(ctx context.Context, spec *ModelSpec, rv reflect.Value, key any) {
	if e.cache == nil || e.tx {
		return
	}
	b, err := msgpack.Marshal(rv.Addr().Interface())
	if err != nil {
		return
	}
	e.cache.Set(ctx, cacheKey(spec.Table, key), b, e.cacheTTL)
}

// invalidate drops every cached record of a table after a write touched it.
func (e *engine) invalidate(ctx context.Context, table string) {
	if e.cache != nil {
		e.cache.DeletePrefix(ctx, table+"/")
	}
}

// ensure synchronizes the model's table when auto-schema is on. Tables the
// model references through foreign keys are ensured first. Each table's
// synchronization runs at most once; concurrent callers of an in-progress
// table block until it finished.
func (e *engine) ensure(ctx context.Context, spec *ModelSpec) error {
	if !e.autoSchema {
		return nil
	}
	return e.ensureTable(ctx, spec, make(map[string]bool))
}

// ensureTable claims or awaits the table's synchronization. chain holds the
// tables already being ensured by this call stack and breaks foreign-key
// cycles without blocking on ourselves.
func (e *engine) ensureTable(ctx context.Context, spec *ModelSpec, chain map[string]bool) error {
	if chain[spec.Table] {
		return nil
	}
	e.mu.Lock()
	if ts, ok := e.states[spec.Table]; ok {
		e.mu.Unlock()
		select {
		case <-ts.done:
			return ts.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ts := &tableSync{done: make(chan struct{})}
	e.states[spec.Table] = ts
	e.mu.Unlock()

	chain[spec.Table] = true
	err := e.syncTable(ctx, spec, chain)

	ts.err = err
	if err != nil {
		// Drop the failed entry so a later call retries.
		e.mu.Lock()
		delete(e.states, spec.Table)
		e.mu.Unlock()
	}
	close(ts.done)
	return err
}

func (e *engine) syncTable(ctx context.Context, spec *ModelSpec, chain map[string]bool) error {
	for _, f := range spec.Fields {
		if f.ForeignKey == nil || f.ForeignKey.RefTable == spec.Table {
			continue
		}
		target, err := e.reg.SpecForTable(f.ForeignKey.RefTable)
		if err != nil {
			continue // string-form reference to an unmanaged table
		}
		if err := e.ensureTable(ctx, target, chain); err != nil {
			return err
		}
	}
	opts := []schema.MigrateOption{schema.WithConflictPolicy(e.policy)}
	if e.idempotent {
		opts = append(opts, schema.WithIdempotent())
	}
	m, err := schema.NewMigrate(e.drv, opts...)
	if err != nil {
		return err
	}
	return m.Ensure(ctx, spec.schemaTable())
}

func (e *engine) insert(ctx context.Context, spec *ModelSpec, rv reflect.Value) error {
	if err := e.ensure(ctx, spec); err != nil {
		return err
	}
	autoPK := spec.PK.AutoIncrement && spec.PK.structField(rv).IsZero()
	cols, vals, err := encodeRow(spec, rv, autoPK)
	if err != nil {
		return err
	}
	ins := velsql.Insert(e.d, spec.Table).Columns(cols...).Values(vals...)
	if !autoPK {
		query, args, err := ins.Build()
		if err != nil {
			return err
		}
		if err := e.conn.Exec(ctx, query, args, nil); err != nil {
			return e.writeErr(spec, "insert", err)
		}
		return nil
	}
	ins.Returning(spec.PK.Name)
	query, args, err := ins.Build()
	if err != nil {
		return err
	}
	if ins.UseReturning() {
		rows := &velsql.Rows{}
		if err := e.conn.Query(ctx, query, args, rows); err != nil {
			return e.writeErr(spec, "insert", err)
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return e.writeErr(spec, "insert", err)
			}
			return &MutationError{Table: spec.Table, Op: "insert", Err: fmt.Errorf("no id returned")}
		}
		var id any
		if err := rows.Scan(&id); err != nil {
			return e.writeErr(spec, "insert", err)
		}
		return decodeValue(spec.PK, id, spec.PK.structField(rv))
	}
	var res velsql.Result
	if err := e.conn.Exec(ctx, query, args, &res); err != nil {
		return e.writeErr(spec, "insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return e.writeErr(spec, "insert", err)
	}
	return decodeValue(spec.PK, id, spec.PK.structField(rv))
}

// insertMany writes all rows with a single multi-row INSERT. Generated ids
// are scanned back in row order on dialects with RETURNING; elsewhere they
// are reconstructed from LastInsertId, which MySQL defines as the first id
// of a multi-row insert.
func (e *engine) insertMany(ctx context.Context, spec *ModelSpec, rvs []reflect.Value) error {
	if len(rvs) == 0 {
		return nil
	}
	if err := e.ensure(ctx, spec); err != nil {
		return err
	}
	autoPK := spec.PK.AutoIncrement && spec.PK.structField(rvs[0]).IsZero()
	ins := velsql.Insert(e.d, spec.Table)
	for i, rv := range rvs {
		cols, vals, err := encodeRow(spec, rv, autoPK)
		if err != nil {
			return err
		}
		if i == 0 {
			ins.Columns(cols...)
		}
		ins.Values(vals...)
	}
	if autoPK {
		ins.Returning(spec.PK.Name)
	}
	query, args, err := ins.Build()
	if err != nil {
		return err
	}
	if autoPK && ins.UseReturning() {
		rows := &velsql.Rows{}
		if err := e.conn.Query(ctx, query, args, rows); err != nil {
			return e.writeErr(spec, "insert", err)
		}
		defer rows.Close()
		for i := 0; rows.Next(); i++ {
			var id any
			if err := rows.Scan(&id); err != nil {
				return e.writeErr(spec, "insert", err)
			}
			if i < len(rvs) {
				if err := decodeValue(spec.PK, id, spec.PK.structField(rvs[i])); err != nil {
					return err
				}
			}
		}
		return rows.Err()
	}
	var res velsql.Result
	if err := e.conn.Exec(ctx, query, args, &res); err != nil {
		return e.writeErr(spec, "insert", err)
	}
	if !autoPK {
		return nil
	}
	first, err := res.LastInsertId()
	if err != nil {
		return e.writeErr(spec, "insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return e.writeErr(spec, "insert", err)
	}
	if n != int64(len(rvs)) {
		return &MutationError{Table: spec.Table, Op: "insert", Err: fmt.Errorf("%d rows written for %d values", n, len(rvs))}
	}
	for i, rv := range rvs {
		if err := decodeValue(spec.PK, first+int64(i), spec.PK.structField(rv)); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) get(ctx context.Context, spec *ModelSpec, rv reflect.Value, id any) error {
	key, err := encodeValue(spec.PK, id)
	if err != nil {
		return err
	}
	if e.cached(ctx, spec, rv, key) {
		return nil
	}
	found, err := e.selectOne(ctx, spec, rv, cond.Eq(spec.PK.Name, key))
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError(spec.Table, id)
	}
	e.remember(ctx, spec, rv, key)
	return nil
}

// selectOne loads the first row matching where into rv and reports whether
// a row existed.
func (e *engine) selectOne(ctx context.Context, spec *ModelSpec, rv reflect.Value, where cond.Expr) (bool, error) {
	if err := e.ensure(ctx, spec); err != nil {
		return false, err
	}
	query, args, err := velsql.Select(e.d, spec.Table).
		Columns(spec.Columns()...).
		Where(where).
		Limit(1).
		Build()
	if err != nil {
		return false, err
	}
	rows := &velsql.Rows{}
	if err := e.conn.Query(ctx, query, args, rows); err != nil {
		return false, &QueryError{Table: spec.Table, Op: "get", Err: err}
	}
	defer rows.Close()
	if !rows.Next() {
		return false, rows.Err()
	}
	if err := scanRow(spec, rows, rv); err != nil {
		return false, &QueryError{Table: spec.Table, Op: "get", Err: err}
	}
	return true, rows.Err()
}

// list loads matching rows into dest, an addressable slice of T or *T.
func (e *engine) list(ctx context.Context, spec *ModelSpec, q Query, dest reflect.Value) error {
	if err := e.ensure(ctx, spec); err != nil {
		return err
	}
	sel := velsql.Select(e.d, spec.Table).Columns(spec.Columns()...)
	if q.Where != nil {
		sel.Where(q.Where)
	}
	if len(q.Order) > 0 {
		sel.OrderBy(q.Order...)
	}
	if q.Limit > 0 {
		sel.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sel.Offset(q.Offset)
	}
	query, args, err := sel.Build()
	if err != nil {
		return err
	}
	rows := &velsql.Rows{}
	if err := e.conn.Query(ctx, query, args, rows); err != nil {
		return &QueryError{Table: spec.Table, Op: "list", Err: err}
	}
	defer rows.Close()
	elem := dest.Type().Elem()
	ptr := elem.Kind() == reflect.Pointer
	for rows.Next() {
		rp := reflect.New(spec.Type)
		if err := scanRow(spec, rows, rp.Elem()); err != nil {
			return &QueryError{Table: spec.Table, Op: "list", Err: err}
		}
		if ptr {
			dest.Set(reflect.Append(dest, rp))
		} else {
			dest.Set(reflect.Append(dest, rp.Elem()))
		}
	}
	if err := rows.Err(); err != nil {
		return &QueryError{Table: spec.Table, Op: "list", Err: err}
	}
	if len(q.Include) > 0 {
		return e.eagerLoad(ctx, spec, dest, q.Include)
	}
	return nil
}

func (e *engine) update(ctx context.Context, spec *ModelSpec, rv reflect.Value) error {
	if err := e.ensure(ctx, spec); err != nil {
		return err
	}
	id := spec.PK.structField(rv)
	if id.IsZero() {
		return &MutationError{Table: spec.Table, Op: "update", Err: fmt.Errorf("primary key is unset")}
	}
	upd := velsql.Update(e.d, spec.Table)
	assigned := 0
	for _, f := range spec.Fields {
		if f == spec.PK {
			continue
		}
		enc, err := encodeValue(f, f.value(rv))
		if err != nil {
			return err
		}
		upd.Set(f.Name, enc)
		assigned++
	}
	if assigned == 0 {
		return &MutationError{Table: spec.Table, Op: "update", Err: fmt.Errorf("no columns besides the primary key")}
	}
	key, err := encodeValue(spec.PK, id.Interface())
	if err != nil {
		return err
	}
	query, args, err := upd.Where(cond.Eq(spec.PK.Name, key)).Build()
	if err != nil {
		return err
	}
	var res velsql.Result
	if err := e.conn.Exec(ctx, query, args, &res); err != nil {
		return e.writeErr(spec, "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return e.writeErr(spec, "update", err)
	}
	if n == 0 {
		return NewNotFoundError(spec.Table, id.Interface())
	}
	e.invalidate(ctx, spec.Table)
	return nil
}

func (e *engine) deleteByID(ctx context.Context, spec *ModelSpec, id any) error {
	if err := e.ensure(ctx, spec); err != nil {
		return err
	}
	key, err := encodeValue(spec.PK, id)
	if err != nil {
		return err
	}
	query, args, err := velsql.Delete(e.d, spec.Table).Where(cond.Eq(spec.PK.Name, key)).Build()
	if err != nil {
		return err
	}
	var res velsql.Result
	if err := e.conn.Exec(ctx, query, args, &res); err != nil {
		return e.writeErr(spec, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return e.writeErr(spec, "delete", err)
	}
	if n == 0 {
		return NewNotFoundError(spec.Table, id)
	}
	e.invalidate(ctx, spec.Table)
	return nil
}

func (e *engine) count(ctx context.Context, spec *ModelSpec, where cond.Expr) (int64, error) {
	if err := e.ensure(ctx, spec); err != nil {
		return 0, err
	}
	sel := velsql.Select(e.d, spec.Table).Count()
	if where != nil {
		sel.Where(where)
	}
	query, args, err := sel.Build()
	if err != nil {
		return 0, err
	}
	rows := &velsql.Rows{}
	if err := e.conn.Query(ctx, query, args, rows); err != nil {
		return 0, &QueryError{Table: spec.Table, Op: "count", Err: err}
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, &QueryError{Table: spec.Table, Op: "count", Err: err}
		}
		return 0, &QueryError{Table: spec.Table, Op: "count", Err: fmt.Errorf("no rows returned")}
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, &QueryError{Table: spec.Table, Op: "count", Err: err}
	}
	return n, rows.Err()
}

func (e *engine) exists(ctx context.Context, spec *ModelSpec, where cond.Expr) (bool, error) {
	n, err := e.count(ctx, spec, where)
	return n > 0, err
}

// updateWhere applies the given column assignments to every matching row
// and returns the number of rows changed. The condition is required; an
// always-true condition is the explicit way to touch the whole table.
func (e *engine) updateWhere(ctx context.Context, spec *ModelSpec, sets map[string]any, where cond.Expr) (int64, error) {
	if len(sets) == 0 {
		return 0, &MutationError{Table: spec.Table, Op: "update", Err: fmt.Errorf("no assignments given")}
	}
	if where == nil {
		return 0, &MutationError{Table: spec.Table, Op: "update", Err: fmt.Errorf("a where condition is required")}
	}
	if err := e.ensure(ctx, spec); err != nil {
		return 0, err
	}
	upd := velsql.Update(e.d, spec.Table)
	for _, col := range sortedKeys(sets) {
		f := spec.Field(col)
		if f == nil {
			return 0, &MutationError{Table: spec.Table, Op: "update", Err: fmt.Errorf("unknown column %q", col)}
		}
		enc, err := encodeValue(f, sets[col])
		if err != nil {
			return 0, err
		}
		upd.Set(col, enc)
	}
	upd.Where(where)
	query, args, err := upd.Build()
	if err != nil {
		return 0, err
	}
	var res velsql.Result
	if err := e.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, e.writeErr(spec, "update", err)
	}
	e.invalidate(ctx, spec.Table)
	return res.RowsAffected()
}

// deleteWhere removes every matching row and returns the number removed.
// The condition is required; emptying the table takes an explicit
// always-true condition.
func (e *engine) deleteWhere(ctx context.Context, spec *ModelSpec, where cond.Expr) (int64, error) {
	if where == nil {
		return 0, &MutationError{Table: spec.Table, Op: "delete", Err: fmt.Errorf("a where condition is required")}
	}
	if err := e.ensure(ctx, spec); err != nil {
		return 0, err
	}
	query, args, err := velsql.Delete(e.d, spec.Table).Where(where).Build()
	if err != nil {
		return 0, err
	}
	var res velsql.Result
	if err := e.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, e.writeErr(spec, "delete", err)
	}
	e.invalidate(ctx, spec.Table)
	return res.RowsAffected()
}

// getOrCreate loads the row matching rv's values on the key columns, or
// inserts rv when none exists. A concurrent insert losing the race falls
// back to loading the winner's row. Reports whether a row was created.
func (e *engine) getOrCreate(ctx context.Context, spec *ModelSpec, rv reflect.Value, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, &MutationError{Table: spec.Table, Op: "get_or_create", Err: fmt.Errorf("no key columns given")}
	}
	where, err := keyCondition(spec, rv, keys)
	if err != nil {
		return false, err
	}
	found, err := e.selectOne(ctx, spec, rv, where)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	err = e.insert(ctx, spec, rv)
	if err == nil {
		return true, nil
	}
	if !velsql.IsUniqueConstraintError(err) {
		return false, err
	}
	found, serr := e.selectOne(ctx, spec, rv, where)
	if serr != nil {
		return false, serr
	}
	if !found {
		return false, err
	}
	return false, nil
}

func keyCondition(spec *ModelSpec, rv reflect.Value, keys []string) (cond.Expr, error) {
	exprs := make([]cond.Expr, 0, len(keys))
	for _, col := range keys {
		f := spec.Field(col)
		if f == nil {
			return nil, &QueryError{Table: spec.Table, Op: "get_or_create", Err: fmt.Errorf("unknown column %q", col)}
		}
		enc, err := encodeValue(f, f.value(rv))
		if err != nil {
			return nil, err
		}
		if enc == nil {
			exprs = append(exprs, cond.IsNull(col))
		} else {
			exprs = append(exprs, cond.Eq(col, enc))
		}
	}
	return cond.All(exprs...), nil
}

// encodeRow produces the bound columns and parameters of one struct value.
func encodeRow(spec *ModelSpec, rv reflect.Value, skipPK bool) ([]string, []any, error) {
	cols := make([]string, 0, len(spec.Fields))
	vals := make([]any, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		if skipPK && f == spec.PK {
			continue
		}
		enc, err := encodeValue(f, f.value(rv))
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, f.Name)
		vals = append(vals, enc)
	}
	return cols, vals, nil
}

// scanRow scans the current row into the struct value rv. The selected
// columns are expected to be spec.Columns() in order.
func scanRow(spec *ModelSpec, rows *velsql.Rows, rv reflect.Value) error {
	holders := make([]any, len(spec.Fields))
	for i := range holders {
		holders[i] = new(any)
	}
	if err := rows.Scan(holders...); err != nil {
		return err
	}
	for i, f := range spec.Fields {
		stored := *(holders[i].(*any))
		if err := decodeValue(f, stored, f.structField(rv)); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) writeErr(spec *ModelSpec, op string, err error) error {
	if velsql.IsUniqueConstraintError(err) || velsql.IsForeignKeyConstraintError(err) {
		return velsql.WrapConstraintError(err)
	}
	return &MutationError{Table: spec.Table, Op: op, Err: err}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
