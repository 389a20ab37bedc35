// Package store persists claim records in a vector database, consumed
// only through a query/upsert interface.
package store

import (
	"context"

	"github.com/ppiankov/verimem/internal/model"
)

// Named vector spaces. The dense text space is the single vector space
// that defines semantic identity; the visual space exists only for
// cross-modal retrieval of image-derived claims.
const (
	VectorDense  = "dense_text"
	VectorVisual = "visual"
)

// Filters narrows similarity queries by payload fields
type Filters struct {
	Verdict      model.Verdict // Match records with this verdict
	MinTimestamp string        // ISO-8601; only records at or after this instant
}

// ScoredRecord is a stored claim with its raw cosine similarity to the query
type ScoredRecord struct {
	Record model.ClaimRecord
	Score  float64
}

// ClaimStore is the persistence interface for verified claims.
// Implementations must tolerate concurrent use; no caller-side locking
// is performed, so the read-then-write dedup check is a documented race.
type ClaimStore interface {
	// EnsureCollection creates the collection and payload indexes if absent
	EnsureCollection(ctx context.Context) error

	// QueryDense runs a top-k cosine similarity search in the dense space.
	// Ordering is store-native approximate nearest neighbor, not exact.
	QueryDense(ctx context.Context, vector []float32, k int, filters *Filters) ([]ScoredRecord, error)

	// QueryVisual runs a top-k similarity search in the visual space
	QueryVisual(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error)

	// Upsert writes one record (dense vector always, visual when present)
	Upsert(ctx context.Context, rec model.ClaimRecord) error

	// UpsertBatch writes a chunk of records in one call
	UpsertBatch(ctx context.Context, recs []model.ClaimRecord) error

	// SetPayload updates payload fields of an existing record by id
	SetPayload(ctx context.Context, id string, fields map[string]any) error

	// Scroll lists up to limit records without vectors
	Scroll(ctx context.Context, limit int) ([]model.ClaimRecord, error)

	// Delete removes a record by id
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored records
	Count(ctx context.Context) (uint64, error)

	// Recreate drops and recreates the whole collection. This is the only
	// way records are mass-deleted.
	Recreate(ctx context.Context) error
}
