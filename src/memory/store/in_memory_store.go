package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/story-memory/src/memory/model"
)

// InMemoryStore is a process-local VectorStore with brute-force cosine search.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]memEntry
	seq     uint64
}

type memEntry struct {
	rec model.Record
	seq uint64
}

var _ VectorStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]memEntry)}
}

func (s *InMemoryStore) Upsert(_ context.Context, records ...model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.seq++
		seq := s.seq
		if prev, ok := s.records[r.ID]; ok {
			seq = prev.seq
		}
		s.records[r.ID] = memEntry{rec: cloneRecord(r), seq: seq}
	}
	return nil
}

func (s *InMemoryStore) Fetch(_ context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	rec := cloneRecord(e.rec)
	return &rec, nil
}

func (s *InMemoryStore) Update(_ context.Context, id string, metadata model.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	e.rec.Metadata = metadata.Clone()
	s.records[id] = e
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, q Query) ([]model.Match, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	type scored struct {
		match model.Match
		seq   uint64
	}
	hits := make([]scored, 0, len(s.records))
	neutral := model.IsZeroVector(q.Vector)
	for id, e := range s.records {
		if !q.Filter.Match(e.rec.Metadata) {
			continue
		}
		m := model.Match{ID: id, Metadata: e.rec.Metadata.Clone()}
		if !neutral {
			m.Score = model.CosineSimilarity(q.Vector, e.rec.Vector)
		}
		hits = append(hits, scored{match: m, seq: e.seq})
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if !neutral && a.match.Score != b.match.Score {
			return a.match.Score > b.match.Score
		}
		if neutral {
			ta, tb := a.match.Metadata.Time(), b.match.Metadata.Time()
			if !ta.Equal(tb) {
				return ta.After(tb)
			}
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	if len(hits) > q.TopK {
		hits = hits[:q.TopK]
	}
	out := make([]model.Match, len(hits))
	for i, h := range hits {
		out[i] = h.match
	}
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *InMemoryStore) DeleteWhere(_ context.Context, filter model.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.records {
		if filter.Match(e.rec.Metadata) {
			delete(s.records, id)
		}
	}
	return nil
}

// Len reports the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(r model.Record) model.Record {
	return model.Record{
		ID:       r.ID,
		Vector:   append([]float32(nil), r.Vector...),
		Metadata: r.Metadata.Clone(),
	}
}
