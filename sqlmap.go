// Package sqlmap maps Go structs to relational tables without code
// generation. Models declare their fields, indexes and relations with the
// builders under schema/, conditions compile to dialect-correct
// parameterized SQL, and the schema synchronizer reconciles declared tables
// against the live database. Relations are inferred from model-typed
// foreign keys: a belongs-to edge on the declaring model and a has-many
// edge on its target, both overridable by explicit declarations.
package sqlmap

import (
	"github.com/syssam/sqlmap/schema/field"
	"github.com/syssam/sqlmap/schema/index"
	"github.com/syssam/sqlmap/schema/relation"
)

// Model is the single mandatory surface of a mapped struct.
type Model interface {
	// Table returns the table name the model maps to.
	Table() string
}

// Fielder is implemented by models that declare columns. A model without
// fields cannot be registered.
type Fielder interface {
	Fields() []*field.Builder
}

// Indexer is optionally implemented by models that declare multi-column
// indexes. Single-column indexes are declared on the field builder itself.
type Indexer interface {
	Indexes() []*index.Builder
}

// Relationer is optionally implemented by models that declare relation
// edges explicitly. Explicit edges win over inferred ones with the same
// name.
type Relationer interface {
	Relations() []*relation.Builder
}
