package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ppiankov/verimem/internal/model"
)

// MemoryStore is an in-process ClaimStore with exact cosine search.
// It backs tests and offline runs where no Qdrant instance is available;
// it intentionally mirrors the adapter contract, including the absence of
// any uniqueness guarantee.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.ClaimRecord
	order   []string // Insertion order, for stable tie-breaks like a store would give
}

// NewMemoryStore creates an empty in-memory claim store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.ClaimRecord)}
}

// EnsureCollection is a no-op for the in-memory store
func (s *MemoryStore) EnsureCollection(ctx context.Context) error {
	return nil
}

// QueryDense runs an exact cosine top-k over dense vectors
func (s *MemoryStore) QueryDense(ctx context.Context, vector []float32, k int, filters *Filters) ([]ScoredRecord, error) {
	return s.query(vector, k, filters, false)
}

// QueryVisual runs an exact cosine top-k over visual vectors
func (s *MemoryStore) QueryVisual(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	return s.query(vector, k, nil, true)
}

func (s *MemoryStore) query(vector []float32, k int, filters *Filters, visual bool) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var minUnix int64
	if filters != nil && filters.MinTimestamp != "" {
		if t, ok := model.ParseTimestamp(filters.MinTimestamp); ok {
			minUnix = t.Unix()
		}
	}

	var results []ScoredRecord
	for _, id := range s.order {
		rec := s.records[id]
		if filters != nil {
			if filters.Verdict != "" && rec.Verdict != filters.Verdict {
				continue
			}
			if minUnix > 0 {
				t, ok := model.ParseTimestamp(rec.Timestamp)
				if !ok || t.Unix() < minUnix {
					continue
				}
			}
		}
		target := rec.DenseEmbedding
		if visual {
			target = rec.VisualEmbedding
		}
		if len(target) == 0 {
			continue
		}
		results = append(results, ScoredRecord{Record: rec, Score: CosineSimilarity(vector, target)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Upsert writes one record
func (s *MemoryStore) Upsert(ctx context.Context, rec model.ClaimRecord) error {
	return s.UpsertBatch(ctx, []model.ClaimRecord{rec})
}

// UpsertBatch writes records, inserting or replacing by id
func (s *MemoryStore) UpsertBatch(ctx context.Context, recs []model.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("record without id")
		}
		if _, exists := s.records[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}
	return nil
}

// SetPayload updates selected fields of an existing record
func (s *MemoryStore) SetPayload(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return fmt.Errorf("record %s not found", id)
	}
	for key, val := range fields {
		switch key {
		case "seen_count":
			if n, ok := val.(int); ok {
				rec.SeenCount = n
			}
		case "last_seen":
			if ts, ok := val.(string); ok {
				rec.LastSeen = ts
			}
		case "confidence":
			if c, ok := val.(float64); ok {
				rec.Confidence = c
			}
		case "verdict":
			if v, ok := val.(string); ok {
				rec.Verdict = model.ParseVerdict(v)
			}
		}
	}
	s.records[id] = rec
	return nil
}

// Scroll lists up to limit records in insertion order
func (s *MemoryStore) Scroll(ctx context.Context, limit int) ([]model.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]model.ClaimRecord, 0, limit)
	for _, id := range s.order {
		if len(recs) >= limit {
			break
		}
		recs = append(recs, s.records[id])
	}
	return recs, nil
}

// Delete removes one record
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("record %s not found", id)
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the number of stored records
func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

// Recreate drops every record
func (s *MemoryStore) Recreate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]model.ClaimRecord)
	s.order = nil
	return nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
