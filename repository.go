package sqlmap

import (
	"context"

	"github.com/syssam/sqlmap/cond"
)

// Repository is a typed view over a client for one model. The type
// parameter is the model struct itself; methods exchange pointers to it.
type Repository[T Model] struct {
	c *Client
}

// NewRepository registers T's model on the client and returns the typed
// view.
func NewRepository[T Model](c *Client) (*Repository[T], error) {
	var zero T
	if err := c.Register(zero); err != nil {
		return nil, err
	}
	return &Repository[T]{c: c}, nil
}

// Client returns the underlying client.
func (r *Repository[T]) Client() *Client { return r.c }

// WithTx returns the repository bound to the transaction.
func (r *Repository[T]) WithTx(tx *Tx) *Repository[T] {
	return &Repository[T]{c: tx.Client}
}

// Insert writes one record.
func (r *Repository[T]) Insert(ctx context.Context, m *T) error {
	return r.c.Insert(ctx, any(m).(Model))
}

// InsertMany writes all records with a single statement.
func (r *Repository[T]) InsertMany(ctx context.Context, ms []*T) error {
	models := make([]Model, len(ms))
	for i, m := range ms {
		models[i] = any(m).(Model)
	}
	return r.c.InsertMany(ctx, models...)
}

// Create writes one record together with related ones.
func (r *Repository[T]) Create(ctx context.Context, m *T, related map[string]any) error {
	return r.c.Create(ctx, any(m).(Model), related)
}

// Get returns the record with the given primary key.
func (r *Repository[T]) Get(ctx context.Context, id any) (*T, error) {
	m := new(T)
	if err := r.c.Get(ctx, any(m).(Model), id); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the matching records.
func (r *Repository[T]) List(ctx context.Context, q Query) ([]*T, error) {
	var out []*T
	if err := r.c.List(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first record matching where, or ErrNotFound.
func (r *Repository[T]) First(ctx context.Context, where cond.Expr, order ...cond.OrderBy) (*T, error) {
	out, err := r.List(ctx, Query{Where: where, Order: order, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var zero T
		return nil, NewNotFoundError(zero.Table(), nil)
	}
	return out[0], nil
}

// Update writes all non-key columns of m.
func (r *Repository[T]) Update(ctx context.Context, m *T) error {
	return r.c.Update(ctx, any(m).(Model))
}

// Delete removes the record with the given primary key.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	var zero T
	return r.c.DeleteByID(ctx, zero, id)
}

// Count returns the number of matching records.
func (r *Repository[T]) Count(ctx context.Context, where cond.Expr) (int64, error) {
	var zero T
	return r.c.Count(ctx, zero, where)
}

// Exists reports whether any record matches where.
func (r *Repository[T]) Exists(ctx context.Context, where cond.Expr) (bool, error) {
	var zero T
	return r.c.Exists(ctx, zero, where)
}

// UpdateWhere applies column assignments to matching records.
func (r *Repository[T]) UpdateWhere(ctx context.Context, sets map[string]any, where cond.Expr) (int64, error) {
	var zero T
	return r.c.UpdateWhere(ctx, zero, sets, where)
}

// DeleteWhere removes matching records.
func (r *Repository[T]) DeleteWhere(ctx context.Context, where cond.Expr) (int64, error) {
	var zero T
	return r.c.DeleteWhere(ctx, zero, where)
}

// GetOrCreate loads the record matching m on the key columns, inserting m
// when none exists. Reports whether a record was created.
func (r *Repository[T]) GetOrCreate(ctx context.Context, m *T, keys ...string) (bool, error) {
	return r.c.GetOrCreate(ctx, any(m).(Model), keys...)
}

// Load populates relation fields on already-loaded records.
func (r *Repository[T]) Load(ctx context.Context, ms []*T, include ...string) error {
	return r.c.Load(ctx, ms, include...)
}
