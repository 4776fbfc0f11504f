package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type docMeta struct {
	Lang  string
	Stars int
}

func TestRepositoryRoundTrip(t *testing.T) {
	s := NewMemoryStore(Cosine, 2)
	r, err := NewRepository[docMeta](s, 2, Cosine)
	require.NoError(t, err)
	ctx := context.Background()

	d1 := &Doc[docMeta]{Vector: []float32{1, 0}, Payload: docMeta{Lang: "go", Stars: 4}}
	d2 := &Doc[docMeta]{Vector: []float32{0, 1}, Payload: docMeta{Lang: "py", Stars: 2}}
	require.NoError(t, r.Upsert(ctx, d1, d2))
	require.NotEmpty(t, d1.ID)
	require.NotEmpty(t, d2.ID)
	assert.NotEqual(t, d1.ID, d2.ID)

	got, err := r.Get(ctx, d1.ID)
	require.NoError(t, err)
	assert.Equal(t, docMeta{Lang: "go", Stars: 4}, got.Payload)
	assert.Equal(t, []float32{1, 0}, got.Vector)

	hits, err := r.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, d1.ID, hits[0].ID)
	assert.Equal(t, "go", hits[0].Payload.Lang)

	hits, err = r.Search(ctx, []float32{1, 0}, 10, Filter{"Lang": "py"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, d2.ID, hits[0].ID)

	require.NoError(t, r.Delete(ctx, d1.ID))
	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = r.Get(ctx, d1.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryValidation(t *testing.T) {
	s := NewMemoryStore(Cosine, 2)

	_, err := NewRepository[docMeta](s, 0, Cosine)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension must be positive")

	_, err = NewRepository[docMeta](s, 2, L2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store ranks by cosine")

	r, err := NewRepository[docMeta](s, 2, Cosine)
	require.NoError(t, err)
	ctx := context.Background()

	err = r.Upsert(ctx, &Doc[docMeta]{Vector: []float32{1, 2, 3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 3")

	_, err = r.Search(ctx, []float32{1}, 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 1")
}

// filterlessStore hides the memory store's filter support.
type filterlessStore struct {
	*MemoryStore
}

func (s filterlessStore) Capabilities() Capabilities {
	return Capabilities{Filters: false, IDs: IDAny}
}

func TestRepositoryFilterUnsupported(t *testing.T) {
	r, err := NewRepository[docMeta](filterlessStore{NewMemoryStore(Cosine, 2)}, 2, Cosine)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.Search(ctx, []float32{1, 0}, 5, Filter{"Lang": "go"})
	require.ErrorIs(t, err, ErrFilterUnsupported)

	// A nil filter still searches.
	_, err = r.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
}

// uuidStore only accepts UUID string ids.
type uuidStore struct {
	*MemoryStore
}

func (s uuidStore) Capabilities() Capabilities {
	return Capabilities{Filters: true, IDs: IDUUID}
}

func TestRepositoryUUIDPolicy(t *testing.T) {
	r, err := NewRepository[docMeta](uuidStore{NewMemoryStore(Cosine, 1)}, 1, Cosine)
	require.NoError(t, err)
	ctx := context.Background()

	err = r.Upsert(ctx, &Doc[docMeta]{ID: "not-a-uuid", Vector: []float32{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires UUID ids")

	// Ids are rewritten to canonical form before they reach the store.
	const mixed = "6BA7B810-9DAD-11D1-80B4-00C04FD430C8"
	const canonical = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	d := &Doc[docMeta]{ID: mixed, Vector: []float32{1}}
	require.NoError(t, r.Upsert(ctx, d))
	assert.Equal(t, canonical, d.ID)

	got, err := r.Get(ctx, mixed)
	require.NoError(t, err)
	assert.Equal(t, canonical, got.ID)

	// Empty ids pass through for the store to assign.
	auto := &Doc[docMeta]{Vector: []float32{1}}
	require.NoError(t, r.Upsert(ctx, auto))
	require.NotEmpty(t, auto.ID)
}
