// Package relation provides the builders used to declare explicit relation
// edges on a model. Explicit declarations take precedence over edges
// inferred from foreign-key fields, and serve as the escape hatch when
// inference cannot see both sides of an edge.
package relation

import (
	"fmt"

	"github.com/syssam/sqlmap/schema/field"
)

// Kind is the direction of a relation edge.
type Kind uint8

// Relation kinds.
const (
	BelongsTo Kind = iota + 1
	HasMany
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasMany:
		return "has_many"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Descriptor is the immutable output of a relation builder. LocalKey is a
// column on the declaring model; RemoteKey is a column on the target model.
// Empty keys are filled in at spec-build time: a belongs-to remote key
// defaults to the target's primary key, a has-many local key defaults to
// the declaring model's primary key.
type Descriptor struct {
	Name      string
	Kind      Kind
	Target    field.Table
	LocalKey  string
	RemoteKey string
	Err       error
}

// A Builder declares one relation edge.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, kind Kind, target field.Table) *Builder {
	d := &Descriptor{Name: name, Kind: kind, Target: target}
	if name == "" {
		d.Err = fmt.Errorf("relation name must not be empty")
	} else if target == nil {
		d.Err = fmt.Errorf("relation %q: target model must not be nil", name)
	}
	return &Builder{desc: d}
}

// To declares a belongs-to edge: the declaring model holds a foreign key
// pointing at target.
func To(name string, target field.Table) *Builder {
	return newBuilder(name, BelongsTo, target)
}

// Many declares a has-many edge: rows of target hold a foreign key pointing
// back at the declaring model.
func Many(name string, target field.Table) *Builder {
	return newBuilder(name, HasMany, target)
}

// Key sets the column on the declaring model that carries the edge.
func (b *Builder) Key(column string) *Builder {
	b.desc.LocalKey = column
	return b
}

// Ref sets the column on the target model that the edge joins against.
func (b *Builder) Ref(column string) *Builder {
	b.desc.RemoteKey = column
	return b
}

// Descriptor returns the built descriptor.
func (b *Builder) Descriptor() *Descriptor { return b.desc }
