package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricScore(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 1.0, Cosine.Score(a, a), 1e-9)
	assert.InDelta(t, 0.0, Cosine.Score(a, b), 1e-9)
	assert.InDelta(t, 0.0, Cosine.Score([]float32{0, 0}, a), 1e-9)

	assert.InDelta(t, 2.0, Dot.Score([]float32{1, 1}, []float32{1, 1}), 1e-9)

	// L2 scores are negated distances so better matches rank higher.
	assert.InDelta(t, 0.0, L2.Score(a, a), 1e-9)
	assert.Greater(t, L2.Score(a, a), L2.Score(a, b))

	assert.Equal(t, "cosine", Cosine.String())
	assert.Equal(t, "l2", L2.String())
}

func TestMemoryStoreUpsertGet(t *testing.T) {
	s := NewMemoryStore(Cosine, 2)
	ctx := context.Background()

	r := &Record{Vector: []float32{1, 0}, Payload: []byte("p")}
	require.NoError(t, s.Upsert(ctx, r))
	require.NotEmpty(t, r.ID)

	got, err := s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Vector, got.Vector)
	assert.Equal(t, []byte("p"), got.Payload)

	// Stored records are copies, not aliases of the caller's slices.
	r.Vector[0] = 9
	got, err = s.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Vector[0])

	r2 := &Record{ID: r.ID, Vector: []float32{0, 1}}
	require.NoError(t, s.Upsert(ctx, r2))
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreDimensionCheck(t *testing.T) {
	s := NewMemoryStore(Cosine, 3)
	ctx := context.Background()

	err := s.Upsert(ctx, &Record{Vector: []float32{1, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 2")

	_, err = s.Search(ctx, []float32{1}, 5, nil)
	require.Error(t, err)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore(Cosine, 1)
	ctx := context.Background()
	r := &Record{ID: "a", Vector: []float32{1}}
	require.NoError(t, s.Upsert(ctx, r))

	require.NoError(t, s.Delete(ctx, "a", "missing"))
	_, err := s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSearch(t *testing.T) {
	s := NewMemoryStore(Cosine, 2)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx,
		&Record{ID: "east", Vector: []float32{1, 0}},
		&Record{ID: "north", Vector: []float32{0, 1}},
		&Record{ID: "northeast", Vector: []float32{1, 1}},
	))

	res, err := s.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "east", res[0].ID)
	assert.Equal(t, "northeast", res[1].ID)
	assert.Greater(t, res[0].Score, res[1].Score)

	res, err = s.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	res, err = s.Search(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryStoreSearchFilter(t *testing.T) {
	s := NewMemoryStore(Cosine, 2)
	ctx := context.Background()
	enc := func(m map[string]any) []byte {
		b, err := MsgpackCodec{}.Marshal(m)
		require.NoError(t, err)
		return b
	}
	require.NoError(t, s.Upsert(ctx,
		&Record{ID: "a", Vector: []float32{1, 0}, Payload: enc(map[string]any{"lang": "go", "stars": 4})},
		&Record{ID: "b", Vector: []float32{1, 0}, Payload: enc(map[string]any{"lang": "go", "stars": 2})},
		&Record{ID: "c", Vector: []float32{1, 0}, Payload: enc(map[string]any{"lang": "py", "stars": 4})},
		&Record{ID: "bare", Vector: []float32{1, 0}},
	))

	res, err := s.Search(ctx, []float32{1, 0}, 10, Filter{"lang": "go"})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].ID)
	assert.Equal(t, "b", res[1].ID)

	// Int filter values match the int64 the payload decodes to.
	res, err = s.Search(ctx, []float32{1, 0}, 10, Filter{"lang": "go", "stars": 4})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)

	// Records without a map payload never match a filter.
	res, err = s.Search(ctx, []float32{1, 0}, 10, Filter{"missing": true})
	require.NoError(t, err)
	assert.Empty(t, res)

	caps := s.Capabilities()
	assert.True(t, caps.Filters)
	assert.Equal(t, IDAny, caps.IDs)
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	type meta struct {
		Title string
		Score int
	}
	var codec MsgpackCodec
	b, err := codec.Marshal(meta{Title: "hello", Score: 7})
	require.NoError(t, err)

	var got meta
	require.NoError(t, codec.Unmarshal(b, &got))
	assert.Equal(t, meta{Title: "hello", Score: 7}, got)
}
