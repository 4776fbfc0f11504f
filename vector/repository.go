package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrFilterUnsupported is returned when a search carries a payload filter
// against a backend that cannot apply one.
var ErrFilterUnsupported = errors.New("vector: store does not support payload filters")

// Doc is one embedding together with its typed payload.
type Doc[P any] struct {
	ID      string
	Vector  []float32
	Payload P
}

// Hit is one ranked search result.
type Hit[P any] struct {
	Doc[P]
	Score float64
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	codec PayloadCodec
}

// WithPayloadCodec overrides the codec converting payloads to and from
// their stored bytes. The default is MsgpackCodec.
func WithPayloadCodec(c PayloadCodec) RepositoryOption {
	return func(o *repositoryOptions) { o.codec = c }
}

// Repository is a typed view over a Store for one payload type. It pins
// the collection's dimension and metric, runs payloads through the codec,
// and enforces the backend's id policy.
type Repository[P any] struct {
	store Store
	dim   int
	codec PayloadCodec
	caps  Capabilities
}

// NewRepository builds a repository over the store. The metric names what
// the caller ranks by and must agree with the store's.
func NewRepository[P any](store Store, dim int, metric Metric, opts ...RepositoryOption) (*Repository[P], error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector: dimension must be positive, got %d", dim)
	}
	if got := store.Metric(); got != metric {
		return nil, fmt.Errorf("vector: store ranks by %s, repository expects %s", got, metric)
	}
	o := repositoryOptions{codec: MsgpackCodec{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[P]{
		store: store,
		dim:   dim,
		codec: o.codec,
		caps:  store.Capabilities(),
	}, nil
}

// Store returns the underlying port.
func (r *Repository[P]) Store() Store { return r.store }

// Upsert writes the documents. Ids assigned by the store flow back onto
// the documents.
func (r *Repository[P]) Upsert(ctx context.Context, docs ...*Doc[P]) error {
	recs := make([]*Record, len(docs))
	for i, d := range docs {
		if len(d.Vector) != r.dim {
			return fmt.Errorf("vector: document %q has dimension %d, expected %d", d.ID, len(d.Vector), r.dim)
		}
		id, err := r.normalizeID(d.ID)
		if err != nil {
			return err
		}
		payload, err := r.codec.Marshal(d.Payload)
		if err != nil {
			return fmt.Errorf("vector: encoding payload of %q: %w", d.ID, err)
		}
		recs[i] = &Record{ID: id, Vector: d.Vector, Payload: payload}
	}
	if err := r.store.Upsert(ctx, recs...); err != nil {
		return err
	}
	for i, d := range docs {
		d.ID = recs[i].ID
	}
	return nil
}

// Get returns the document with the given id, or ErrNotFound.
func (r *Repository[P]) Get(ctx context.Context, id string) (*Doc[P], error) {
	nid, err := r.normalizeID(id)
	if err != nil {
		return nil, err
	}
	rec, err := r.store.Get(ctx, nid)
	if err != nil {
		return nil, err
	}
	return r.decode(rec.ID, rec.Vector, rec.Payload)
}

// Delete removes the documents with the given ids. Unknown ids are
// ignored.
func (r *Repository[P]) Delete(ctx context.Context, ids ...string) error {
	nids := make([]string, len(ids))
	for i, id := range ids {
		nid, err := r.normalizeID(id)
		if err != nil {
			return err
		}
		nids[i] = nid
	}
	return r.store.Delete(ctx, nids...)
}

// Search returns the k documents most similar to the query, best first. A
// non-nil filter keeps only documents whose payload fields equal the
// filter values; ErrFilterUnsupported is returned when the backend cannot
// apply one.
func (r *Repository[P]) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Hit[P], error) {
	if len(query) != r.dim {
		return nil, fmt.Errorf("vector: query has dimension %d, expected %d", len(query), r.dim)
	}
	if len(filter) > 0 && !r.caps.Filters {
		return nil, ErrFilterUnsupported
	}
	results, err := r.store.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit[P], len(results))
	for i, res := range results {
		doc, err := r.decode(res.ID, res.Vector, res.Payload)
		if err != nil {
			return nil, err
		}
		hits[i] = Hit[P]{Doc: *doc, Score: res.Score}
	}
	return hits, nil
}

// Len returns the number of stored documents.
func (r *Repository[P]) Len(ctx context.Context) (int, error) {
	return r.store.Len(ctx)
}

func (r *Repository[P]) decode(id string, vec []float32, payload []byte) (*Doc[P], error) {
	doc := &Doc[P]{ID: id, Vector: vec}
	if len(payload) > 0 {
		if err := r.codec.Unmarshal(payload, &doc.Payload); err != nil {
			return nil, fmt.Errorf("vector: decoding payload of %q: %w", id, err)
		}
	}
	return doc, nil
}

// normalizeID rewrites an id to the backend's canonical form. Empty ids
// pass through so the store can assign one.
func (r *Repository[P]) normalizeID(id string) (string, error) {
	if id == "" || r.caps.IDs != IDUUID {
		return id, nil
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("vector: store requires UUID ids, got %q", id)
	}
	return u.String(), nil
}
