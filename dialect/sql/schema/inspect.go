package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/sqlmap/dialect"
	velsql "github.com/syssam/sqlmap/dialect/sql"
)

// columnInfo is one column as reported by the database.
type columnInfo struct {
	name     string
	typ      string
	nullable bool
	pk       bool
}

// indexInfo is one non-primary index as reported by the database.
type indexInfo struct {
	name    string
	columns []string
	unique  bool
}

func (m *Migrate) tableExists(ctx context.Context, name string) (bool, error) {
	var (
		query string
		args  []any
	)
	switch m.d.Name() {
	case dialect.SQLite:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?"
		args = []any{name}
	case dialect.Postgres:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
		args = []any{name}
	case dialect.MySQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
		args = []any{name}
	default:
		return false, fmt.Errorf("schema: unsupported dialect %q", m.d.Name())
	}
	rows := &velsql.Rows{}
	if err := m.drv.Query(ctx, query, args, rows); err != nil {
		return false, fmt.Errorf("schema: checking table %q: %w", name, err)
	}
	defer rows.Close()
	exists := rows.Next()
	return exists, rows.Err()
}

func (m *Migrate) columns(ctx context.Context, table string) ([]*columnInfo, error) {
	switch m.d.Name() {
	case dialect.SQLite:
		return m.sqliteColumns(ctx, table)
	case dialect.Postgres:
		return m.pgColumns(ctx, table)
	case dialect.MySQL:
		return m.mysqlColumns(ctx, table)
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", m.d.Name())
	}
}

func (m *Migrate) sqliteColumns(ctx context.Context, table string) ([]*columnInfo, error) {
	rows := &velsql.Rows{}
	query := fmt.Sprintf("PRAGMA table_info(%s)", m.d.Quote(table))
	if err := m.drv.Query(ctx, query, nil, rows); err != nil {
		return nil, fmt.Errorf("schema: reading columns of %q: %w", table, err)
	}
	defer rows.Close()
	var cols []*columnInfo
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, typ        string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("schema: scanning column of %q: %w", table, err)
		}
		cols = append(cols, &columnInfo{name: name, typ: typ, nullable: notnull == 0, pk: pk > 0})
	}
	return cols, rows.Err()
}

func (m *Migrate) pgColumns(ctx context.Context, table string) ([]*columnInfo, error) {
	rows := &velsql.Rows{}
	query := "SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position"
	if err := m.drv.Query(ctx, query, []any{table}, rows); err != nil {
		return nil, fmt.Errorf("schema: reading columns of %q: %w", table, err)
	}
	var cols []*columnInfo
	for rows.Next() {
		var name, typ, nullable string
		if err := rows.Scan(&name, &typ, &nullable); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema: scanning column of %q: %w", table, err)
		}
		cols = append(cols, &columnInfo{name: name, typ: typ, nullable: strings.EqualFold(nullable, "YES")})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	// Primary-key membership lives in pg_index, not information_schema.
	pkrows := &velsql.Rows{}
	pkq := `SELECT a.attname FROM pg_index i JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey) WHERE i.indrelid = $1::regclass AND i.indisprimary`
	if err := m.drv.Query(ctx, pkq, []any{table}, pkrows); err != nil {
		return nil, fmt.Errorf("schema: reading primary key of %q: %w", table, err)
	}
	defer pkrows.Close()
	for pkrows.Next() {
		var name string
		if err := pkrows.Scan(&name); err != nil {
			return nil, err
		}
		for _, c := range cols {
			if c.name == name {
				c.pk = true
			}
		}
	}
	return cols, pkrows.Err()
}

func (m *Migrate) mysqlColumns(ctx context.Context, table string) ([]*columnInfo, error) {
	rows := &velsql.Rows{}
	query := "SELECT column_name, column_type, is_nullable, column_key FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
	if err := m.drv.Query(ctx, query, []any{table}, rows); err != nil {
		return nil, fmt.Errorf("schema: reading columns of %q: %w", table, err)
	}
	defer rows.Close()
	var cols []*columnInfo
	for rows.Next() {
		var name, typ, nullable, key string
		if err := rows.Scan(&name, &typ, &nullable, &key); err != nil {
			return nil, fmt.Errorf("schema: scanning column of %q: %w", table, err)
		}
		cols = append(cols, &columnInfo{
			name:     name,
			typ:      typ,
			nullable: strings.EqualFold(nullable, "YES"),
			pk:       strings.EqualFold(key, "PRI"),
		})
	}
	return cols, rows.Err()
}

func (m *Migrate) indexes(ctx context.Context, table string) ([]*indexInfo, error) {
	switch m.d.Name() {
	case dialect.SQLite:
		return m.sqliteIndexes(ctx, table)
	case dialect.Postgres:
		return m.pgIndexes(ctx, table)
	case dialect.MySQL:
		return m.mysqlIndexes(ctx, table)
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", m.d.Name())
	}
}

func (m *Migrate) sqliteIndexes(ctx context.Context, table string) ([]*indexInfo, error) {
	rows := &velsql.Rows{}
	query := fmt.Sprintf("PRAGMA index_list(%s)", m.d.Quote(table))
	if err := m.drv.Query(ctx, query, nil, rows); err != nil {
		return nil, fmt.Errorf("schema: reading indexes of %q: %w", table, err)
	}
	type listed struct {
		name   string
		unique bool
	}
	var names []listed
	for rows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schema: scanning index of %q: %w", table, err)
		}
		// Skip implicit indexes backing PRIMARY KEY and inline UNIQUE clauses.
		if strings.HasPrefix(name, "sqlite_autoindex_") || origin == "pk" {
			continue
		}
		names = append(names, listed{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	var idxs []*indexInfo
	for _, l := range names {
		info := &indexInfo{name: l.name, unique: l.unique}
		irows := &velsql.Rows{}
		iq := fmt.Sprintf("PRAGMA index_info(%s)", m.d.Quote(l.name))
		if err := m.drv.Query(ctx, iq, nil, irows); err != nil {
			return nil, fmt.Errorf("schema: reading index %q: %w", l.name, err)
		}
		for irows.Next() {
			var (
				seqno, cid int
				col        string
			)
			if err := irows.Scan(&seqno, &cid, &col); err != nil {
				irows.Close()
				return nil, err
			}
			info.columns = append(info.columns, col)
		}
		if err := irows.Err(); err != nil {
			irows.Close()
			return nil, err
		}
		irows.Close()
		idxs = append(idxs, info)
	}
	return idxs, nil
}

func (m *Migrate) pgIndexes(ctx context.Context, table string) ([]*indexInfo, error) {
	rows := &velsql.Rows{}
	query := `SELECT i.relname, ix.indisunique, a.attname
FROM pg_class t
JOIN pg_index ix ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE t.relname = $1 AND NOT ix.indisprimary
ORDER BY i.relname, array_position(ix.indkey, a.attnum)`
	if err := m.drv.Query(ctx, query, []any{table}, rows); err != nil {
		return nil, fmt.Errorf("schema: reading indexes of %q: %w", table, err)
	}
	defer rows.Close()
	return groupIndexRows(rows, table)
}

func (m *Migrate) mysqlIndexes(ctx context.Context, table string) ([]*indexInfo, error) {
	rows := &velsql.Rows{}
	query := "SELECT index_name, NOT non_unique, column_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name <> 'PRIMARY' ORDER BY index_name, seq_in_index"
	if err := m.drv.Query(ctx, query, []any{table}, rows); err != nil {
		return nil, fmt.Errorf("schema: reading indexes of %q: %w", table, err)
	}
	defer rows.Close()
	return groupIndexRows(rows, table)
}

// groupIndexRows folds (name, unique, column) rows into indexInfo entries,
// preserving column order within each index.
func groupIndexRows(rows *velsql.Rows, table string) ([]*indexInfo, error) {
	byName := make(map[string]*indexInfo)
	var order []string
	for rows.Next() {
		var (
			name   string
			unique bool
			col    string
		)
		if err := rows.Scan(&name, &unique, &col); err != nil {
			return nil, fmt.Errorf("schema: scanning index of %q: %w", table, err)
		}
		info, ok := byName[name]
		if !ok {
			info = &indexInfo{name: name, unique: unique}
			byName[name] = info
			order = append(order, name)
		}
		info.columns = append(info.columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	idxs := make([]*indexInfo, 0, len(order))
	for _, name := range order {
		idxs = append(idxs, byName[name])
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i].name < idxs[j].name })
	return idxs, nil
}

// typeGroups maps a normalized type token to the families it belongs to.
// Membership in a shared family makes two reported or declared types
// interchangeable for diff purposes. A token may sit in more than one
// family, e.g. TINYINT backs both booleans and small integers on MySQL.
var typeGroups = map[string][]string{
	"int":              {"integer"},
	"integer":          {"integer"},
	"bigint":           {"integer"},
	"smallint":         {"integer"},
	"mediumint":        {"integer"},
	"tinyint":          {"integer", "bool"},
	"int2":             {"integer"},
	"int4":             {"integer"},
	"int8":             {"integer"},
	"serial":           {"integer"},
	"bigserial":        {"integer"},
	"real":             {"float"},
	"float":            {"float"},
	"double":           {"float"},
	"double precision": {"float"},
	"numeric":          {"float"},
	"decimal":          {"float"},
	"float4":           {"float"},
	"float8":           {"float"},
	"bool":             {"bool"},
	"boolean":          {"bool"},
	"text":             {"text"},
	"varchar":          {"text"},
	"character varying": {"text"},
	"char":              {"text"},
	"character":         {"text"},
	"clob":              {"text"},
	"longtext":          {"text"},
	"mediumtext":        {"text"},
	"uuid":              {"text", "uuid"},
	"blob":              {"blob"},
	"bytea":             {"blob"},
	"binary":            {"blob"},
	"varbinary":         {"blob"},
	"longblob":          {"blob"},
	"timestamp":                   {"time"},
	"timestamptz":                 {"time"},
	"timestamp with time zone":    {"time"},
	"timestamp without time zone": {"time"},
	"datetime":                    {"time"},
	"date":                        {"time"},
	"json":  {"json", "text"},
	"jsonb": {"json"},
}

// normalizeType lowercases a reported or generated SQL type and strips any
// size or precision suffix, so VARCHAR(255) and varchar compare equal.
func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, '('); i >= 0 {
		j := strings.IndexByte(s[i:], ')')
		if j < 0 {
			s = s[:i]
		} else {
			s = s[:i] + s[i+j+1:]
		}
	}
	// Drop trailing qualifiers such as "unsigned".
	s = strings.TrimSuffix(strings.TrimSpace(s), " unsigned")
	return strings.TrimSpace(s)
}

// typesCompatible reports whether a declared and a reported SQL type may
// describe the same column. Unknown tokens fall back to exact equality.
func typesCompatible(declared, reported string) bool {
	d, r := normalizeType(declared), normalizeType(reported)
	if d == r {
		return true
	}
	dg, dok := typeGroups[d]
	rg, rok := typeGroups[r]
	if !dok || !rok {
		return false
	}
	for _, a := range dg {
		for _, b := range rg {
			if a == b {
				return true
			}
		}
	}
	return false
}
