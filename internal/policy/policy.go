// Package policy decides whether a stored verdict can be reused without
// live re-verification.
package policy

import (
	"time"

	"github.com/ppiankov/verimem/internal/model"
)

// CachePolicy is the read-path freshness/consistency gate. Similarity
// answers "is this the same claim"; age answers "is the stored answer
// still trustworthy". Both are required: a stale perfect match still
// triggers live re-verification.
type CachePolicy struct {
	HitThreshold float64 // Minimum raw similarity, inclusive
	MaxAgeDays   float64 // Maximum record age, inclusive
}

// NewCachePolicy builds the policy from retrieval configuration
func NewCachePolicy(cfg model.RetrievalConfig) CachePolicy {
	return CachePolicy{
		HitThreshold: cfg.CacheHitThreshold,
		MaxAgeDays:   cfg.CacheMaxAgeDays,
	}
}

// Decision explains a cache evaluation
type Decision struct {
	Hit        bool
	Similarity float64
	AgeDays    float64
}

// Evaluate decides hit/miss for the top candidate of a decay-applied
// search. No candidates is unconditionally a miss. The similarity check
// uses the raw score, not the decayed one. A record with an unparseable
// timestamp has age 0 and therefore always passes the freshness check.
func (p CachePolicy) Evaluate(candidates []model.RetrievedClaim, now time.Time) Decision {
	if len(candidates) == 0 {
		return Decision{}
	}
	top := candidates[0]
	age := model.AgeDays(top.Timestamp, now)
	return Decision{
		Hit:        top.SimilarityScore >= p.HitThreshold && age <= p.MaxAgeDays,
		Similarity: top.SimilarityScore,
		AgeDays:    age,
	}
}
