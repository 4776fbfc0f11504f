// Package vector defines the embedding-record port used alongside the
// relational mapping layer, plus an in-memory store for tests and small
// workloads.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record id does not exist in the store.
var ErrNotFound = errors.New("vector: record not found")

// Metric selects the similarity function a store ranks by.
type Metric uint8

// Similarity metrics.
const (
	Cosine Metric = iota
	Dot
	L2
)

// String returns the metric name.
func (m Metric) String() string {
	switch m {
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	case L2:
		return "l2"
	default:
		return fmt.Sprintf("metric(%d)", m)
	}
}

// Score computes the similarity of two vectors under the metric. Higher is
// more similar for every metric; L2 distances are negated to keep that
// ordering.
func (m Metric) Score(a, b []float32) float64 {
	switch m {
	case Dot:
		return dot(a, b)
	case L2:
		return -l2(a, b)
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(a []float32) float64 {
	var s float64
	for _, v := range a {
		s += float64(v) * float64(v)
	}
	return math.Sqrt(s)
}

func l2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

// Record is one stored embedding with an opaque payload.
type Record struct {
	ID      string
	Vector  []float32
	Payload []byte
}

// SearchResult is one ranked record.
type SearchResult struct {
	Record
	Score float64
}

// Filter restricts a search to records whose payload fields equal the
// given values. Equality is the only supported predicate.
type Filter map[string]any

// IDPolicy constrains the record ids a backend accepts.
type IDPolicy uint8

const (
	// IDAny accepts any non-empty string id.
	IDAny IDPolicy = iota
	// IDUUID accepts UUID string ids only.
	IDUUID
)

// Capabilities describes what a backend supports. Callers consult it
// before relying on optional features.
type Capabilities struct {
	Filters bool // payload filters in Search
	IDs     IDPolicy
}

// Store is the persistence port for embedding records.
type Store interface {
	// Upsert inserts or replaces records. Records without an ID get one
	// assigned and the input slice is updated in place.
	Upsert(ctx context.Context, recs ...*Record) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes the records with the given ids. Unknown ids are
	// ignored.
	Delete(ctx context.Context, ids ...string) error

	// Search returns the k records most similar to the query under the
	// store's metric, best first. A non-nil filter keeps only records
	// whose payload matches; stores without filter support ignore it and
	// report Filters false in Capabilities.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Len returns the number of stored records.
	Len(ctx context.Context) (int, error)

	// Metric returns the similarity metric the store ranks by.
	Metric() Metric

	// Capabilities reports the backend's optional features.
	Capabilities() Capabilities
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}
