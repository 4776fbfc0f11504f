// Package dialect defines the database ports used by the repository layer:
// the Driver/Tx execution contract implemented by dialect/sql, and the
// Dialect capability object that encodes per-database syntax rules for
// identifiers, placeholders and DDL fragments.
package dialect

import (
	"context"
	"fmt"

	"github.com/syssam/sqlmap/schema/field"
)

// Supported dialect names.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// ExecQuerier wraps the Exec and Query methods shared by Driver and Tx.
// args is always a []any; v receives a *sql.Result (Exec) or *sql.Rows
// (Query) from the dialect/sql implementation.
type ExecQuerier interface {
	Exec(ctx context.Context, query string, args, v any) error
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the persistence port supplied by the external connection
// collaborator. The core issues every round trip through it and owns no
// pooling, retry or timeout behavior of its own.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction scope.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transaction scope returned by Driver.Tx.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// A Dialect encodes the syntactic rules of one SQL engine. Compilers and
// builders never hardcode quoting, placeholder or DDL syntax; they query it
// from here.
type Dialect interface {
	// Name returns the dialect name.
	Name() string
	// Quote quotes an identifier.
	Quote(ident string) string
	// Placeholder returns the bind placeholder for the n-th parameter
	// (1-based). Positional styles ignore n.
	Placeholder(n int) string
	// SQLType maps a semantic field type to the engine's column type.
	SQLType(t field.Type) string
	// AutoPKColumn returns the full column clause for an auto-increment
	// primary key.
	AutoPKColumn(name string) string
	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool
	// SupportsIndexIfNotExists reports whether CREATE INDEX IF NOT EXISTS
	// is available.
	SupportsIndexIfNotExists() bool
	// DropIndexSQL returns the statement dropping an index on a table.
	DropIndexSQL(table, index string) string
	// DropTableSQL returns the statement dropping a table.
	DropTableSQL(table string) string
}

// New returns the Dialect for a supported dialect name.
func New(name string) (Dialect, error) {
	switch name {
	case SQLite:
		return sqlite{}, nil
	case Postgres:
		return postgres{}, nil
	case MySQL:
		return mysql{}, nil
	default:
		return nil, fmt.Errorf("sqlmap: unsupported dialect %q", name)
	}
}

type sqlite struct{}

func (sqlite) Name() string { return SQLite }

func (sqlite) Quote(ident string) string { return `"` + ident + `"` }

func (sqlite) Placeholder(int) string { return "?" }

func (sqlite) SQLType(t field.Type) string { return ansiType(t) }

func (d sqlite) AutoPKColumn(name string) string {
	return d.Quote(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (sqlite) SupportsReturning() bool { return true }

func (sqlite) SupportsIndexIfNotExists() bool { return true }

func (d sqlite) DropIndexSQL(_, index string) string {
	return "DROP INDEX " + d.Quote(index)
}

func (d sqlite) DropTableSQL(table string) string {
	return "DROP TABLE " + d.Quote(table)
}

type postgres struct{}

func (postgres) Name() string { return Postgres }

func (postgres) Quote(ident string) string { return `"` + ident + `"` }

func (postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgres) SQLType(t field.Type) string {
	switch t {
	case field.TypeFloat64:
		return "DOUBLE PRECISION"
	case field.TypeBytes:
		return "BYTEA"
	case field.TypeJSON:
		return "JSONB"
	case field.TypeUUID:
		return "UUID"
	default:
		return ansiType(t)
	}
}

func (d postgres) AutoPKColumn(name string) string {
	return d.Quote(name) + " SERIAL PRIMARY KEY"
}

func (postgres) SupportsReturning() bool { return true }

func (postgres) SupportsIndexIfNotExists() bool { return true }

func (d postgres) DropIndexSQL(_, index string) string {
	return "DROP INDEX " + d.Quote(index)
}

func (d postgres) DropTableSQL(table string) string {
	// CASCADE drops dependent foreign-key constraints along with the table.
	return "DROP TABLE " + d.Quote(table) + " CASCADE"
}

type mysql struct{}

func (mysql) Name() string { return MySQL }

func (mysql) Quote(ident string) string { return "`" + ident + "`" }

func (mysql) Placeholder(int) string { return "?" }

func (mysql) SQLType(t field.Type) string {
	switch t {
	case field.TypeFloat64:
		return "DOUBLE"
	case field.TypeString, field.TypeEnum:
		return "VARCHAR(255)"
	case field.TypeTime:
		return "TIMESTAMP"
	case field.TypeJSON:
		return "JSON"
	case field.TypeUUID:
		return "CHAR(36)"
	default:
		return ansiType(t)
	}
}

func (d mysql) AutoPKColumn(name string) string {
	return d.Quote(name) + " BIGINT AUTO_INCREMENT PRIMARY KEY"
}

func (mysql) SupportsReturning() bool { return false }

func (mysql) SupportsIndexIfNotExists() bool { return false }

func (d mysql) DropIndexSQL(table, index string) string {
	return "DROP INDEX " + d.Quote(index) + " ON " + d.Quote(table)
}

func (d mysql) DropTableSQL(table string) string {
	return "DROP TABLE " + d.Quote(table)
}

// ansiType is the shared mapping used by dialects without an override.
func ansiType(t field.Type) string {
	switch t {
	case field.TypeBool:
		return "BOOLEAN"
	case field.TypeInt:
		return "INTEGER"
	case field.TypeInt64:
		return "BIGINT"
	case field.TypeFloat64:
		return "REAL"
	case field.TypeString, field.TypeText, field.TypeEnum, field.TypeJSON, field.TypeUUID:
		return "TEXT"
	case field.TypeTime:
		return "TIMESTAMP"
	case field.TypeBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}
