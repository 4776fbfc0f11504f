package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store with linear-scan search. Safe for
// concurrent use.
type MemoryStore struct {
	metric Metric
	dim    int

	mu   sync.RWMutex
	recs map[string]*Record
}

// NewMemoryStore builds a store ranking by metric. Vectors must all have
// dimension dim.
func NewMemoryStore(metric Metric, dim int) *MemoryStore {
	return &MemoryStore{
		metric: metric,
		dim:    dim,
		recs:   make(map[string]*Record),
	}
}

// Metric returns the store's similarity metric.
func (s *MemoryStore) Metric() Metric { return s.metric }

// Capabilities implements Store. Payload filters work on msgpack-encoded
// map payloads, the form MsgpackCodec produces.
func (s *MemoryStore) Capabilities() Capabilities {
	return Capabilities{Filters: true, IDs: IDAny}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, recs ...*Record) error {
	for _, r := range recs {
		if len(r.Vector) != s.dim {
			return fmt.Errorf("vector: record %q has dimension %d, store expects %d", r.ID, len(r.Vector), s.dim)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if r.ID == "" {
			r.ID = NewID()
		}
		cp := *r
		cp.Vector = append([]float32(nil), r.Vector...)
		cp.Payload = append([]byte(nil), r.Payload...)
		s.recs[r.ID] = &cp
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.recs, id)
	}
	return nil
}

// Search implements Store.
func (s *MemoryStore) Search(_ context.Context, query []float32, k int, filter Filter) ([]SearchResult, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("vector: query has dimension %d, store expects %d", len(query), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	results := make([]SearchResult, 0, len(s.recs))
	for _, r := range s.recs {
		if !matchFilter(r.Payload, filter) {
			continue
		}
		results = append(results, SearchResult{Record: *r, Score: s.metric.Score(query, r.Vector)})
	}
	s.mu.RUnlock()
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs), nil
}

// matchFilter reports whether a stored payload satisfies every filter
// entry. Payloads are decoded as msgpack maps; records whose payload is
// not one never match a non-empty filter.
func matchFilter(payload []byte, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := (MsgpackCodec{}).Unmarshal(payload, &fields); err != nil {
		return false
	}
	for key, want := range filter {
		got, ok := fields[key]
		if !ok || foldScalar(got) != foldScalar(want) {
			return false
		}
	}
	return true
}

// foldScalar folds equal values arriving as different Go types, such as an
// int filter against the int64 msgpack decodes, onto one comparable form.
func foldScalar(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	case []byte:
		return string(n)
	}
	return v
}
