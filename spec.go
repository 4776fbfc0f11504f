package sqlmap

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/sqlmap/dialect/sql/schema"
	"github.com/syssam/sqlmap/schema/field"
	"github.com/syssam/sqlmap/schema/index"
	"github.com/syssam/sqlmap/schema/relation"
)

// FieldSpec binds one declared column to the struct field that backs it.
type FieldSpec struct {
	*field.Descriptor
	StructIndex []int        // index chain into the model struct
	GoType      reflect.Type // type of the backing struct field
}

func (f *FieldSpec) value(rv reflect.Value) any {
	return rv.FieldByIndex(f.StructIndex).Interface()
}

func (f *FieldSpec) structField(rv reflect.Value) reflect.Value {
	return rv.FieldByIndex(f.StructIndex)
}

// ModelSpec is the resolved mapping of one model: its table, columns,
// indexes and relation edges. Specs are built once per model type and
// cached by the registry.
type ModelSpec struct {
	Name    string       // model type name
	Type    reflect.Type // underlying struct type
	Table   string
	Fields  []*FieldSpec
	PK      *FieldSpec
	Indexes []*index.Descriptor

	byColumn  map[string]*FieldSpec
	declared  []*relation.Descriptor          // explicit edges, pre-resolution
	relations map[string]*relation.Descriptor // resolved by the registry
}

// Field returns the field mapped to the given column, or nil.
func (s *ModelSpec) Field(column string) *FieldSpec {
	return s.byColumn[column]
}

// Columns returns the column names in declaration order.
func (s *ModelSpec) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Relation returns the resolved relation edge with the given name.
func (s *ModelSpec) Relation(name string) (*relation.Descriptor, bool) {
	r, ok := s.relations[name]
	return r, ok
}

// Relations returns the resolved relation edges keyed by name.
func (s *ModelSpec) Relations() map[string]*relation.Descriptor {
	return s.relations
}

// buildSpec resolves a model declaration into a ModelSpec. Declaration
// errors surface here, before any statement is issued for the model.
func buildSpec(m Model) (*ModelSpec, error) {
	rt := reflect.TypeOf(m)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, &SpecError{Model: rt.String(), Err: fmt.Errorf("model must be a struct, got %s", rt.Kind())}
	}
	spec := &ModelSpec{
		Name:      rt.Name(),
		Type:      rt,
		Table:     m.Table(),
		byColumn:  make(map[string]*FieldSpec),
		relations: make(map[string]*relation.Descriptor),
	}
	if spec.Table == "" {
		return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("table name must not be empty")}
	}
	fd, ok := m.(Fielder)
	if !ok {
		return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("model declares no fields")}
	}
	for _, b := range fd.Fields() {
		desc := b.Descriptor()
		if desc.Err != nil {
			return nil, &SpecError{Model: spec.Name, Err: desc.Err}
		}
		if _, dup := spec.byColumn[desc.Name]; dup {
			return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("duplicate column %q", desc.Name)}
		}
		idx, typ, found := structFieldFor(rt, desc.Name)
		if !found {
			return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("no struct field maps to column %q", desc.Name)}
		}
		fs := &FieldSpec{Descriptor: desc, StructIndex: idx, GoType: typ}
		spec.Fields = append(spec.Fields, fs)
		spec.byColumn[desc.Name] = fs
		if desc.PrimaryKey {
			if spec.PK != nil {
				return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("multiple primary keys: %q and %q", spec.PK.Name, desc.Name)}
			}
			spec.PK = fs
		}
		if desc.Index != field.IndexNone {
			spec.Indexes = append(spec.Indexes, &index.Descriptor{
				Columns: []string{desc.Name},
				Unique:  desc.Index == field.IndexUnique,
				Name:    desc.IndexName,
			})
		}
	}
	if spec.PK == nil {
		return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("model declares no primary key")}
	}
	if ind, ok := m.(Indexer); ok {
		for _, b := range ind.Indexes() {
			desc := b.Descriptor()
			if desc.Err != nil {
				return nil, &SpecError{Model: spec.Name, Err: desc.Err}
			}
			for _, c := range desc.Columns {
				if spec.byColumn[c] == nil {
					return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("index covers unknown column %q", c)}
				}
			}
			spec.Indexes = append(spec.Indexes, desc)
		}
	}
	if rel, ok := m.(Relationer); ok {
		for _, b := range rel.Relations() {
			desc := b.Descriptor()
			if desc.Err != nil {
				return nil, &SpecError{Model: spec.Name, Err: desc.Err}
			}
			spec.declared = append(spec.declared, desc)
		}
	}
	return spec, nil
}

// structFieldFor locates the exported struct field backing a column. A
// `db` tag matches the column name verbatim; otherwise field names match
// after lowercasing and dropping underscores, so CreatedAt backs
// created_at.
func structFieldFor(rt reflect.Type, column string) ([]int, reflect.Type, bool) {
	want := normalizeName(column)
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, ok := sf.Tag.Lookup("db"); ok {
			if tag == column {
				return sf.Index, sf.Type, true
			}
			continue
		}
		if normalizeName(sf.Name) == want {
			return sf.Index, sf.Type, true
		}
	}
	return nil, nil, false
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

// schemaTable lowers the spec to the synchronizer's table model.
func (s *ModelSpec) schemaTable() *schema.Table {
	t := &schema.Table{Name: s.Table}
	for _, f := range s.Fields {
		c := &schema.Column{
			Name:          f.Name,
			Type:          f.Type,
			Nullable:      f.Nullable,
			PrimaryKey:    f.PrimaryKey,
			AutoIncrement: f.AutoIncrement,
		}
		if f.ForeignKey != nil {
			c.Ref = &schema.Ref{Table: f.ForeignKey.RefTable, Column: f.ForeignKey.RefColumn}
		}
		t.Columns = append(t.Columns, c)
	}
	for _, idx := range s.Indexes {
		t.Indexes = append(t.Indexes, &schema.Index{
			Name:    idx.Name,
			Columns: idx.Columns,
			Unique:  idx.Unique,
		})
	}
	return t
}
