// Package memory is the write path of the claim store: it decides whether
// a completed verification merges into an existing record or creates a
// new one, and handles bulk seeding and administrative operations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/ppiankov/verimem/internal/embed"
	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/retrieve"
	"github.com/ppiankov/verimem/internal/store"
)

// SeedClaim is one pre-verified claim from a seed dataset
type SeedClaim struct {
	ClaimText         string  `json:"claim_text"`
	Verdict           string  `json:"verdict"`
	Confidence        float64 `json:"confidence"`
	Source            string  `json:"source"`
	SourceReliability float64 `json:"source_reliability"`
	Topic             string  `json:"topic,omitempty"`
	Timestamp         string  `json:"timestamp,omitempty"`
}

// Engine is the dedup/merge engine
type Engine struct {
	store     store.ClaimStore
	embedder  embed.Embedder
	retriever *retrieve.Retriever
	cfg       model.MemoryConfig
	logger    *log.Logger
	now       func() time.Time
}

// NewEngine wires the engine from its collaborators
func NewEngine(claims store.ClaimStore, embedder embed.Embedder, retriever *retrieve.Retriever, cfg model.MemoryConfig, logger *log.Logger) *Engine {
	if cfg.DedupThreshold == 0 {
		cfg.DedupThreshold = 0.92
	}
	if cfg.BulkChunkSize <= 0 {
		cfg.BulkChunkSize = 100
	}
	if cfg.SourceReliability == 0 {
		cfg.SourceReliability = 0.7
	}
	return &Engine{
		store:     claims,
		embedder:  embedder,
		retriever: retriever,
		cfg:       cfg,
		logger:    logger.With("component", "memory"),
		now:       time.Now,
	}
}

// UpdateOrCreate merges a verification result into an existing record when
// one matches at or above the dedup threshold, otherwise creates a new one.
//
// A merge only touches seen_count, last_seen and confidence (kept at the
// max of old and new); the stored verdict is never rewritten on repeat
// sightings. The similarity check and the write are not serialized, so two
// concurrent requests for the same new claim can both create a record;
// near-duplicates are tolerated pending later reconciliation.
func (e *Engine) UpdateOrCreate(ctx context.Context, result model.VerificationResult, visualEmbedding []float32) model.MemoryUpdateResult {
	existing := e.retriever.GetSimilarClaim(ctx, result.NormalizedClaim, e.cfg.DedupThreshold)
	now := e.now().UTC().Format(time.RFC3339)

	if existing != nil {
		e.logger.Debug("merging into existing claim",
			"id", existing.ID, "similarity", existing.SimilarityScore, "threshold", e.cfg.DedupThreshold)

		newSeenCount := existing.SeenCount + 1
		err := e.store.SetPayload(ctx, existing.ID, map[string]any{
			"seen_count": newSeenCount,
			"last_seen":  now,
			"confidence": maxFloat(existing.Confidence, result.Confidence),
		})
		if err != nil {
			e.logger.Error("merge failed", "id", existing.ID, "err", err)
			return model.MemoryUpdateResult{
				Action:    model.MemoryActionSkipped,
				ClaimID:   existing.ID,
				SeenCount: existing.SeenCount,
				Message:   fmt.Sprintf("failed to update: %v", err),
			}
		}
		return model.MemoryUpdateResult{
			Action:    model.MemoryActionUpdated,
			ClaimID:   existing.ID,
			SeenCount: newSeenCount,
			Message:   fmt.Sprintf("updated existing claim, seen %d times", newSeenCount),
		}
	}

	vector, err := e.embedder.Embed(ctx, result.NormalizedClaim)
	if err != nil {
		e.logger.Error("embed for create failed", "err", err)
		return model.MemoryUpdateResult{
			Action:  model.MemoryActionSkipped,
			Message: fmt.Sprintf("failed to embed claim: %v", err),
		}
	}

	rec := model.ClaimRecord{
		ID:                uuid.NewString(),
		ClaimText:         result.ClaimText,
		NormalizedText:    result.NormalizedClaim,
		Verdict:           result.Verdict,
		Confidence:        result.Confidence,
		Explanation:       result.Explanation,
		EvidenceIDs:       result.EvidenceIDs,
		Source:            "user_verification",
		SourceReliability: e.cfg.SourceReliability,
		Timestamp:         now,
		FirstSeen:         now,
		LastSeen:          now,
		SeenCount:         1,
		DenseEmbedding:    vector,
		VisualEmbedding:   visualEmbedding,
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		e.logger.Error("create failed", "err", err)
		return model.MemoryUpdateResult{
			Action:  model.MemoryActionSkipped,
			Message: fmt.Sprintf("failed to create: %v", err),
		}
	}

	return model.MemoryUpdateResult{
		Action:    model.MemoryActionCreated,
		ClaimID:   rec.ID,
		SeenCount: 1,
		Message:   "new claim added to memory",
	}
}

// BulkUpsert ingests pre-verified seed claims. It skips the per-item
// similarity check (callers pre-deduplicate by case-insensitive exact
// text) and commits fixed-size chunks independently: a failing chunk does
// not roll back prior chunks, so the result reports counts, not atomicity.
func (e *Engine) BulkUpsert(ctx context.Context, claims []SeedClaim, showProgress bool) model.BulkResult {
	var result model.BulkResult
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(int64(len(claims)), "embedding claims")
	}

	now := e.now().UTC().Format(time.RFC3339)
	records := make([]model.ClaimRecord, 0, len(claims))
	for i, claim := range claims {
		if bar != nil {
			_ = bar.Add(1)
		}
		if claim.ClaimText == "" {
			result.ErrorCount++
			result.Errors = append(result.Errors, fmt.Sprintf("claim %d: empty claim text", i))
			continue
		}

		vector, err := e.embedder.Embed(ctx, claim.ClaimText)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, fmt.Sprintf("claim %d: embed: %v", i, err))
			continue
		}

		timestamp := claim.Timestamp
		if timestamp == "" {
			timestamp = now
		}
		confidence := claim.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		reliability := claim.SourceReliability
		if reliability == 0 {
			reliability = e.cfg.SourceReliability
		}
		source := claim.Source
		if source == "" {
			source = "Unknown"
		}

		records = append(records, model.ClaimRecord{
			ID:                uuid.NewString(),
			ClaimText:         claim.ClaimText,
			NormalizedText:    claim.ClaimText, // Seed datasets arrive pre-normalized
			Verdict:           model.ParseVerdict(claim.Verdict),
			Confidence:        confidence,
			Source:            source,
			SourceReliability: reliability,
			Topic:             claim.Topic,
			Timestamp:         timestamp,
			FirstSeen:         now,
			LastSeen:          now,
			SeenCount:         1,
			DenseEmbedding:    vector,
		})
	}

	for start := 0; start < len(records); start += e.cfg.BulkChunkSize {
		end := start + e.cfg.BulkChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		if err := e.store.UpsertBatch(ctx, chunk); err != nil {
			result.ErrorCount += len(chunk)
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %d: %v", start/e.cfg.BulkChunkSize, err))
			continue
		}
		result.SuccessCount += len(chunk)
	}

	e.logger.Info("bulk ingest finished", "ok", result.SuccessCount, "errors", result.ErrorCount)
	return result
}

// TopClaims returns the most-seen claims. The store has no order-by, so
// it over-fetches and sorts locally.
func (e *Engine) TopClaims(ctx context.Context, limit int) ([]model.ClaimRecord, error) {
	recs, err := e.store.Scroll(ctx, limit*3)
	if err != nil {
		return nil, fmt.Errorf("scroll claims: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].SeenCount > recs[j].SeenCount })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Stats summarizes the collection for the stats command
func (e *Engine) Stats(ctx context.Context, topN int) (*model.MemoryStats, error) {
	total, err := e.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}

	recs, err := e.store.Scroll(ctx, int(total))
	if err != nil {
		return nil, fmt.Errorf("scroll claims: %w", err)
	}

	stats := &model.MemoryStats{
		TotalClaims: total,
		Verdicts: map[model.Verdict]int{
			model.VerdictTrue:      0,
			model.VerdictFalse:     0,
			model.VerdictUncertain: 0,
		},
	}

	var seenSum int
	for _, rec := range recs {
		stats.Verdicts[rec.Verdict]++
		seenSum += rec.SeenCount
		if rec.SeenCount > stats.MaxSeenCount {
			stats.MaxSeenCount = rec.SeenCount
		}
	}
	if len(recs) > 0 {
		stats.AvgSeenCount = float64(seenSum) / float64(len(recs))
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].SeenCount > recs[j].SeenCount })
	if len(recs) > topN {
		recs = recs[:topN]
	}
	stats.TopClaims = recs
	return stats, nil
}

// Delete removes one claim by id
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// Clear drops and recreates the whole collection. This is the only
// mass-delete operation.
func (e *Engine) Clear(ctx context.Context) error {
	e.logger.Warn("clearing claim memory")
	return e.store.Recreate(ctx)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
