package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/sqlmap/dialect"
)

// ConflictPolicy controls how Ensure reacts when the live table structure
// disagrees with the declared one in a way that cannot be reconciled by
// additive DDL.
type ConflictPolicy uint8

const (
	// ConflictRaise aborts the run with a ConflictError. The default.
	ConflictRaise ConflictPolicy = iota
	// ConflictRecreate drops the conflicting table and creates it fresh.
	// Existing rows in that table are lost.
	ConflictRecreate
)

// ConflictError is returned by Ensure under ConflictRaise when a table
// cannot be reconciled without a rebuild.
type ConflictError struct {
	Table     string
	Conflicts []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sqlmap: schema conflict on table %q: %s", e.Table, strings.Join(e.Conflicts, "; "))
}

func (e *ConflictError) Is(err error) bool {
	_, ok := err.(*ConflictError)
	return ok
}

// IsConflict reports whether err is a schema ConflictError.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var e *ConflictError
	return errors.As(err, &e)
}

// Migrate reconciles declared tables with the connected database.
type Migrate struct {
	drv        dialect.Driver
	d          dialect.Dialect
	policy     ConflictPolicy
	idempotent bool
}

// MigrateOption configures a Migrate.
type MigrateOption func(*Migrate)

// WithConflictPolicy sets the policy applied to irreconcilable tables.
func WithConflictPolicy(p ConflictPolicy) MigrateOption {
	return func(m *Migrate) { m.policy = p }
}

// WithIdempotent makes generated CREATE statements tolerate objects that
// already exist, so concurrent or repeated runs do not fail on races.
func WithIdempotent() MigrateOption {
	return func(m *Migrate) { m.idempotent = true }
}

// NewMigrate builds a synchronizer for the driver's dialect.
func NewMigrate(drv dialect.Driver, opts ...MigrateOption) (*Migrate, error) {
	d, err := dialect.New(drv.Dialect())
	if err != nil {
		return nil, err
	}
	m := &Migrate{drv: drv, d: d}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Ensure brings every given table in line with its declaration. Tables are
// processed in the given order so references land after their targets.
func (m *Migrate) Ensure(ctx context.Context, tables ...*Table) error {
	for _, t := range tables {
		if err := m.ensureTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrate) ensureTable(ctx context.Context, t *Table) error {
	exists, err := m.tableExists(ctx, t.Name)
	if err != nil {
		return err
	}
	if !exists {
		return m.create(ctx, t)
	}
	cols, err := m.columns(ctx, t.Name)
	if err != nil {
		return err
	}
	adds, conflicts := m.diffColumns(t, cols)
	if len(conflicts) > 0 {
		switch m.policy {
		case ConflictRecreate:
			return m.recreate(ctx, t)
		default:
			return &ConflictError{Table: t.Name, Conflicts: conflicts}
		}
	}
	for _, c := range adds {
		if err := m.exec(ctx, AddColumnSQL(m.d, t.Name, c)); err != nil {
			return fmt.Errorf("schema: adding column %q to %q: %w", c.Name, t.Name, err)
		}
	}
	return m.syncIndexes(ctx, t)
}

// diffColumns splits the declared columns that are absent from the live
// table into additively creatable ones and rebuild-only conflicts, and
// flags live columns whose shape disagrees with the declaration. Columns
// present in the database but not declared are left untouched.
func (m *Migrate) diffColumns(t *Table, live []*columnInfo) (adds []*Column, conflicts []string) {
	byName := make(map[string]*columnInfo, len(live))
	for _, c := range live {
		byName[c.name] = c
	}
	for _, c := range t.Columns {
		got, ok := byName[c.Name]
		if !ok {
			switch {
			case c.PrimaryKey:
				conflicts = append(conflicts, fmt.Sprintf("primary key column %q is missing", c.Name))
			case !c.Nullable:
				conflicts = append(conflicts, fmt.Sprintf("column %q is missing and NOT NULL columns cannot be added to an existing table", c.Name))
			default:
				adds = append(adds, c)
			}
			continue
		}
		declared := m.d.SQLType(c.Type)
		if c.PrimaryKey && c.AutoIncrement {
			// Compare against the integer family the auto column resolves to.
			declared = "bigint"
		}
		if !typesCompatible(declared, got.typ) {
			conflicts = append(conflicts, fmt.Sprintf("column %q is declared %s but exists as %s", c.Name, declared, got.typ))
		}
		if c.PrimaryKey != got.pk {
			conflicts = append(conflicts, fmt.Sprintf("column %q primary-key declaration does not match the table", c.Name))
		}
		if c.Nullable && !got.nullable {
			conflicts = append(conflicts, fmt.Sprintf("column %q is declared nullable but exists as NOT NULL", c.Name))
		}
	}
	return adds, conflicts
}

func (m *Migrate) create(ctx context.Context, t *Table) error {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := m.txExec(ctx, tx, CreateTableSQL(m.d, t, m.idempotent)); err != nil {
		return rollback(tx, fmt.Errorf("schema: creating table %q: %w", t.Name, err))
	}
	for _, idx := range t.Indexes {
		if err := m.txExec(ctx, tx, CreateIndexSQL(m.d, t.Name, idx, m.idempotent)); err != nil {
			return rollback(tx, fmt.Errorf("schema: creating index on %q: %w", t.Name, err))
		}
	}
	return tx.Commit()
}

func (m *Migrate) recreate(ctx context.Context, t *Table) error {
	if err := m.exec(ctx, m.d.DropTableSQL(t.Name)); err != nil {
		return fmt.Errorf("schema: dropping table %q: %w", t.Name, err)
	}
	return m.create(ctx, t)
}

// syncIndexes creates declared indexes that are missing, rebuilds managed
// ones whose definition changed, and drops managed indexes that are no
// longer declared. Indexes with foreign names are left alone.
func (m *Migrate) syncIndexes(ctx context.Context, t *Table) error {
	live, err := m.indexes(ctx, t.Name)
	if err != nil {
		return err
	}
	byName := make(map[string]*indexInfo, len(live))
	for _, idx := range live {
		byName[idx.name] = idx
	}
	declared := make(map[string]bool, len(t.Indexes))
	for _, idx := range t.Indexes {
		name := idx.Name
		if name == "" {
			name = DefaultIndexName(t.Name, idx.Columns, idx.Unique)
		}
		declared[name] = true
		got, ok := byName[name]
		if ok && got.unique == idx.Unique && equalColumns(got.columns, idx.Columns) {
			continue
		}
		if ok {
			if err := m.exec(ctx, m.d.DropIndexSQL(t.Name, name)); err != nil {
				return fmt.Errorf("schema: dropping index %q: %w", name, err)
			}
		}
		if err := m.exec(ctx, CreateIndexSQL(m.d, t.Name, idx, m.idempotent)); err != nil {
			return fmt.Errorf("schema: creating index %q: %w", name, err)
		}
	}
	managed := "idx_" + t.Name + "_"
	managedUnique := "uidx_" + t.Name + "_"
	for _, idx := range live {
		if declared[idx.name] {
			continue
		}
		if !strings.HasPrefix(idx.name, managed) && !strings.HasPrefix(idx.name, managedUnique) {
			continue
		}
		if err := m.exec(ctx, m.d.DropIndexSQL(t.Name, idx.name)); err != nil {
			return fmt.Errorf("schema: dropping index %q: %w", idx.name, err)
		}
	}
	return nil
}

func (m *Migrate) exec(ctx context.Context, query string) error {
	return m.drv.Exec(ctx, query, nil, nil)
}

func (m *Migrate) txExec(ctx context.Context, tx dialect.Tx, query string) error {
	return tx.Exec(ctx, query, nil, nil)
}

func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
