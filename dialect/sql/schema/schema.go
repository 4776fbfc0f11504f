// Package schema synchronizes declared table structures against the live
// database. It generates deterministic DDL from the table model, introspects
// the existing structure, computes the structural diff and reconciles it
// under a configurable conflict policy.
package schema

import (
	"strings"

	"github.com/syssam/sqlmap/dialect"
	"github.com/syssam/sqlmap/schema/field"
)

// Ref is a foreign-key reference to a column on another table.
type Ref struct {
	Table  string
	Column string
}

// Column is one declared column of a table.
type Column struct {
	Name          string
	Type          field.Type
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Ref           *Ref
}

// Index is one declared index of a table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table is the declared structure the synchronizer reconciles against the
// database. Column order follows declaration order and index emission is
// sorted by name, keeping generated DDL stable for identical input.
type Table struct {
	Name    string
	Columns []*Column
	Indexes []*Index
}

// Column returns the declared column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// DefaultIndexName derives the index name used when no override is given.
func DefaultIndexName(table string, columns []string, unique bool) string {
	prefix := "idx"
	if unique {
		prefix = "uidx"
	}
	return prefix + "_" + table + "_" + strings.Join(columns, "_")
}

// CreateTableSQL builds the CREATE TABLE statement for a table.
func CreateTableSQL(d dialect.Dialect, t *Table, ifNotExists bool) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if ifNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(d.Quote(t.Name))
	sb.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(columnSQL(d, c))
	}
	sb.WriteString(")")
	return sb.String()
}

// CreateIndexSQL builds one CREATE INDEX statement. The IF NOT EXISTS
// clause is emitted only when requested and supported by the dialect.
func CreateIndexSQL(d dialect.Dialect, table string, idx *Index, ifNotExists bool) string {
	var sb strings.Builder
	if idx.Unique {
		sb.WriteString("CREATE UNIQUE INDEX ")
	} else {
		sb.WriteString("CREATE INDEX ")
	}
	if ifNotExists && d.SupportsIndexIfNotExists() {
		sb.WriteString("IF NOT EXISTS ")
	}
	name := idx.Name
	if name == "" {
		name = DefaultIndexName(table, idx.Columns, idx.Unique)
	}
	sb.WriteString(d.Quote(name))
	sb.WriteString(" ON ")
	sb.WriteString(d.Quote(table))
	sb.WriteString(" (")
	for i, c := range idx.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Quote(c))
	}
	sb.WriteString(")")
	return sb.String()
}

// AddColumnSQL builds the additive ALTER TABLE statement for one column.
func AddColumnSQL(d dialect.Dialect, table string, c *Column) string {
	return "ALTER TABLE " + d.Quote(table) + " ADD COLUMN " + columnSQL(d, c)
}

func columnSQL(d dialect.Dialect, c *Column) string {
	if c.PrimaryKey && c.AutoIncrement {
		return d.AutoPKColumn(c.Name)
	}
	parts := []string{d.Quote(c.Name), d.SQLType(c.Type)}
	if c.Nullable {
		parts = append(parts, "NULL")
	} else {
		parts = append(parts, "NOT NULL")
	}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.Ref != nil {
		parts = append(parts, "REFERENCES "+d.Quote(c.Ref.Table)+" ("+d.Quote(c.Ref.Column)+")")
	}
	return strings.Join(parts, " ")
}
