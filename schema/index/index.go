// Package index provides the builder used to declare multi-column indexes
// on a model.
package index

import "fmt"

// Descriptor is the immutable output of an index builder.
type Descriptor struct {
	Columns []string
	Unique  bool
	Name    string // optional override of the generated index name
	Err     error
}

// A Builder declares one table-level index.
type Builder struct {
	desc *Descriptor
}

// Fields declares an index over the given columns in order.
func Fields(columns ...string) *Builder {
	d := &Descriptor{Columns: append([]string(nil), columns...)}
	if len(columns) == 0 {
		d.Err = fmt.Errorf("index must cover at least one column")
	}
	for _, c := range columns {
		if c == "" {
			d.Err = fmt.Errorf("index column names must not be empty")
			break
		}
	}
	return &Builder{desc: d}
}

// Unique marks the index unique.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Name overrides the generated index name.
func (b *Builder) Name(name string) *Builder {
	b.desc.Name = name
	return b
}

// Descriptor returns the built descriptor.
func (b *Builder) Descriptor() *Descriptor { return b.desc }
