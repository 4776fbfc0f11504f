// Package field provides the builders used to declare model attributes.
// Each builder produces an immutable Descriptor consumed once by the
// model-spec build step; declaration errors are carried on the descriptor
// and surfaced eagerly when the spec is built.
package field

import (
	"fmt"
	"strings"
)

// Type is the semantic value type of a declared field. The dialect maps it
// to a concrete SQL column type.
type Type uint8

// Field value types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeFloat64
	TypeString
	TypeText
	TypeTime
	TypeBytes
	TypeJSON
	TypeEnum
	TypeUUID
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeInt64:   "int64",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeText:    "text",
	TypeTime:    "time",
	TypeBytes:   "bytes",
	TypeJSON:    "json",
	TypeEnum:    "enum",
	TypeUUID:    "uuid",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Codec selects how a field value is converted between its in-memory form
// and the stored scalar. It is resolved once at spec-build time.
type Codec uint8

// Codec variants.
const (
	CodecNone Codec = iota
	CodecEnum
	CodecJSON
	CodecCustom
)

// ValueCodec is a user-supplied bidirectional conversion used with
// CodecCustom. Encode produces the driver-bound scalar; Decode restores the
// in-memory value from the stored scalar.
type ValueCodec interface {
	Encode(v any) (any, error)
	Decode(v any) (any, error)
}

// Table is the minimal surface a model-typed foreign-key target must
// expose. The root sqlmap.Model interface satisfies it.
type Table interface {
	Table() string
}

// IndexKind is the single-column index declaration on a field.
type IndexKind uint8

// Index kinds.
const (
	IndexNone IndexKind = iota
	IndexNormal
	IndexUnique
)

// ForeignKey describes a reference to another table's column. Target is nil
// for string-form references, which contribute DDL only and carry no
// relation-inference capability.
type ForeignKey struct {
	Target    Table
	RefTable  string
	RefColumn string
}

// Descriptor is the immutable output of a field builder.
type Descriptor struct {
	Name          string
	Type          Type
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Index         IndexKind
	IndexName     string
	ForeignKey    *ForeignKey
	Codec         Codec
	CustomCodec   ValueCodec
	EnumValues    []string
	RelationName  string // belongs-to name override
	RelatedName   string // reverse has-many name override
	Err           error  // first declaration error, reported at spec build
}

// A Builder declares one field and its attributes.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	d := &Descriptor{Name: name, Type: t}
	if name == "" {
		d.Err = fmt.Errorf("field name must not be empty")
	}
	switch t {
	case TypeEnum:
		d.Codec = CodecEnum
	case TypeJSON:
		d.Codec = CodecJSON
	}
	return &Builder{desc: d}
}

// Bool declares a boolean field.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Int declares an integer field.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Int64 declares a 64-bit integer field.
func Int64(name string) *Builder { return newBuilder(name, TypeInt64) }

// Float64 declares a floating-point field.
func Float64(name string) *Builder { return newBuilder(name, TypeFloat64) }

// String declares a short string field.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Text declares an unbounded text field.
func Text(name string) *Builder { return newBuilder(name, TypeText) }

// Time declares a timestamp field.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// Bytes declares a binary field.
func Bytes(name string) *Builder { return newBuilder(name, TypeBytes) }

// JSON declares a field stored as JSON text and decoded into the declared
// struct field type.
func JSON(name string) *Builder { return newBuilder(name, TypeJSON) }

// Enum declares a field whose stored scalar is one of a fixed value set.
func Enum(name string) *Builder { return newBuilder(name, TypeEnum) }

// UUID declares a UUID field stored as text.
func UUID(name string) *Builder { return newBuilder(name, TypeUUID) }

// Values sets the allowed enum values. Only meaningful for Enum fields.
func (b *Builder) Values(vs ...string) *Builder {
	if b.desc.Type != TypeEnum {
		b.fail("Values is only supported on enum fields")
		return b
	}
	b.desc.EnumValues = append([]string(nil), vs...)
	return b
}

// Optional marks the column nullable.
func (b *Builder) Optional() *Builder {
	b.desc.Nullable = true
	return b
}

// PrimaryKey marks the field as the model's primary key.
func (b *Builder) PrimaryKey() *Builder {
	b.desc.PrimaryKey = true
	return b
}

// AutoIncrement marks a primary-key field as database-generated.
func (b *Builder) AutoIncrement() *Builder {
	b.desc.AutoIncrement = true
	return b
}

// Index declares a single-column index on the field.
func (b *Builder) Index() *Builder {
	if b.desc.Index != IndexUnique {
		b.desc.Index = IndexNormal
	}
	return b
}

// Unique declares a single-column unique index on the field.
func (b *Builder) Unique() *Builder {
	b.desc.Index = IndexUnique
	return b
}

// IndexName overrides the generated index name.
func (b *Builder) IndexName(name string) *Builder {
	b.desc.IndexName = name
	return b
}

// ForeignKey declares a reference to a column on another model. The target
// is resolvable, so relation inference derives a belongs-to edge from it.
func (b *Builder) ForeignKey(target Table, column string) *Builder {
	if target == nil {
		b.fail("foreign-key target model must not be nil")
		return b
	}
	if column == "" {
		b.fail("foreign-key column must not be empty")
		return b
	}
	b.desc.ForeignKey = &ForeignKey{Target: target, RefTable: target.Table(), RefColumn: column}
	return b
}

// References declares a string-form foreign key ("table.column"). It emits
// the REFERENCES clause in DDL but has no resolvable target model, so no
// relation is inferred from it.
func (b *Builder) References(ref string) *Builder {
	table, column, ok := strings.Cut(ref, ".")
	if !ok || table == "" || column == "" {
		b.fail(fmt.Sprintf("references %q must have the form \"table.column\"", ref))
		return b
	}
	b.desc.ForeignKey = &ForeignKey{RefTable: table, RefColumn: column}
	return b
}

// Relation overrides the inferred belongs-to relation name.
func (b *Builder) Relation(name string) *Builder {
	b.desc.RelationName = name
	return b
}

// RelatedName overrides the inferred reverse has-many relation name on the
// foreign-key target model.
func (b *Builder) RelatedName(name string) *Builder {
	b.desc.RelatedName = name
	return b
}

// UseCodec attaches a custom value codec to the field.
func (b *Builder) UseCodec(c ValueCodec) *Builder {
	if c == nil {
		b.fail("custom codec must not be nil")
		return b
	}
	b.desc.Codec = CodecCustom
	b.desc.CustomCodec = c
	return b
}

// Descriptor returns the built descriptor.
func (b *Builder) Descriptor() *Descriptor { return b.desc }

func (b *Builder) fail(msg string) {
	if b.desc.Err == nil {
		b.desc.Err = fmt.Errorf("field %q: %s", b.desc.Name, msg)
	}
}
