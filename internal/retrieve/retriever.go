// Package retrieve performs similarity search against the claim memory,
// with optional time-decay re-ranking of candidates.
package retrieve

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/verimem/internal/embed"
	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/store"
)

// Options controls a single search
type Options struct {
	K              int           // Number of candidates; 0 uses the configured top-k
	ApplyTimeDecay bool          // Re-rank by recency-adjusted score
	Verdict        model.Verdict // Optional verdict filter
	MinTimestamp   string        // Optional lower bound, ISO-8601
}

// Retriever queries the claim store through the embedding gateway
type Retriever struct {
	embedder embed.Embedder
	store    store.ClaimStore
	topK     int
	sigma    float64 // Gaussian decay width in days
	logger   *log.Logger
	now      func() time.Time
}

// NewRetriever wires a retriever from its collaborators
func NewRetriever(embedder embed.Embedder, claims store.ClaimStore, cfg model.RetrievalConfig, logger *log.Logger) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	sigma := cfg.TimeDecaySigma
	if sigma <= 0 {
		sigma = 90
	}
	return &Retriever{
		embedder: embedder,
		store:    claims,
		topK:     topK,
		sigma:    sigma,
		logger:   logger.With("component", "retrieve"),
		now:      time.Now,
	}
}

// Search embeds the query and returns ordered candidates. Embedding or
// store failures degrade to an empty candidate list: retrieval failure
// means "no memory available", it never blocks a request.
func (r *Retriever) Search(ctx context.Context, queryText string, opts Options) []model.RetrievedClaim {
	k := opts.K
	if k <= 0 {
		k = r.topK
	}

	vector, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		r.logger.Warn("embed query failed, degrading to empty candidates", "err", err)
		return nil
	}

	var filters *store.Filters
	if opts.Verdict != "" || opts.MinTimestamp != "" {
		filters = &store.Filters{Verdict: opts.Verdict, MinTimestamp: opts.MinTimestamp}
	}

	scored, err := r.store.QueryDense(ctx, vector, k, filters)
	if err != nil {
		r.logger.Warn("store query failed, degrading to empty candidates", "err", err)
		return nil
	}

	return r.rank(scored, opts.ApplyTimeDecay)
}

// SearchByVisual searches the visual vector space with a pre-computed
// image embedding. Decay is always applied, matching the read path.
func (r *Retriever) SearchByVisual(ctx context.Context, vector []float32, k int) []model.RetrievedClaim {
	if k <= 0 {
		k = r.topK
	}
	scored, err := r.store.QueryVisual(ctx, vector, k)
	if err != nil {
		r.logger.Warn("visual query failed, degrading to empty candidates", "err", err)
		return nil
	}
	return r.rank(scored, true)
}

// GetSimilarClaim returns the single best match at or above threshold,
// or nil. Time decay is disabled: dedup decisions must reflect pure
// semantic closeness, never recency.
func (r *Retriever) GetSimilarClaim(ctx context.Context, queryText string, threshold float64) *model.RetrievedClaim {
	results := r.Search(ctx, queryText, Options{K: 1, ApplyTimeDecay: false})
	if len(results) == 0 {
		return nil
	}
	top := results[0]
	if top.SimilarityScore < threshold {
		r.logger.Debug("similarity below dedup threshold", "similarity", top.SimilarityScore, "threshold", threshold)
		return nil
	}
	return &top
}

// rank converts scored records to candidates, applying Gaussian time decay
// when requested. The sort is stable so ties preserve store order.
func (r *Retriever) rank(scored []store.ScoredRecord, applyDecay bool) []model.RetrievedClaim {
	now := r.now()
	candidates := make([]model.RetrievedClaim, 0, len(scored))
	for _, sr := range scored {
		c := model.RetrievedClaim{
			ID:                sr.Record.ID,
			ClaimText:         sr.Record.ClaimText,
			NormalizedText:    sr.Record.NormalizedText,
			Verdict:           sr.Record.Verdict,
			Confidence:        sr.Record.Confidence,
			Source:            sr.Record.Source,
			SourceReliability: sr.Record.SourceReliability,
			Timestamp:         sr.Record.Timestamp,
			SeenCount:         sr.Record.SeenCount,
			SimilarityScore:   sr.Score,
			TimeDecayedScore:  sr.Score,
		}
		if applyDecay {
			c.TimeDecayedScore = DecayedScore(sr.Score, model.AgeDays(sr.Record.Timestamp, now), r.sigma)
		}
		candidates = append(candidates, c)
	}

	if applyDecay {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].TimeDecayedScore > candidates[j].TimeDecayedScore
		})
	}
	return candidates
}

// DecayedScore blends semantic relevance with recency:
//
//	adjusted = raw * (0.5 + 0.5 * exp(-(days²) / (2·sigma²)))
//
// Half the score survives regardless of age, so staleness can never erase
// a strong semantic match. With sigma=90 a week-old record keeps ~99% of
// its score, a 90-day-old record ~80%, a year-old record ~50%.
func DecayedScore(raw, daysOld, sigma float64) float64 {
	decay := math.Exp(-(daysOld * daysOld) / (2 * sigma * sigma))
	return raw * (0.5 + 0.5*decay)
}
