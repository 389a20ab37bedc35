package model

import "time"

// Verdict is the outcome of verifying a claim
type Verdict string

const (
	VerdictTrue      Verdict = "True"      // The claim as stated is factually correct
	VerdictFalse     Verdict = "False"     // The claim as stated is factually incorrect
	VerdictUncertain Verdict = "Uncertain" // Not enough evidence to decide
)

// ParseVerdict maps arbitrary verdict strings to a known Verdict,
// falling back to Uncertain for anything unrecognized
func ParseVerdict(s string) Verdict {
	switch Verdict(s) {
	case VerdictTrue, VerdictFalse, VerdictUncertain:
		return Verdict(s)
	default:
		return VerdictUncertain
	}
}

// ClaimRecord is a verified claim as persisted in the claim store.
// Identity is probabilistic: uniqueness is enforced only by the dedup
// similarity check at write time, never by a key constraint.
type ClaimRecord struct {
	ID                string    `json:"id"`                         // Opaque unique identifier (UUID)
	ClaimText         string    `json:"claim_text"`                 // Original submitted text
	NormalizedText    string    `json:"normalized_text"`            // Canonical form used for embedding
	Verdict           Verdict   `json:"verdict"`                    // True, False, Uncertain
	Confidence        float64   `json:"confidence"`                 // 0..1, non-decreasing across merges
	Explanation       string    `json:"explanation,omitempty"`      // Verdict justification
	EvidenceIDs       []string  `json:"evidence_ids,omitempty"`     // IDs of records cited during verification
	Source            string    `json:"source"`                     // Source label (e.g. "user_verification", "FEVER")
	SourceReliability float64   `json:"source_reliability"`         // 0..1
	Topic             string    `json:"topic,omitempty"`            // Optional topic category
	Timestamp         string    `json:"timestamp"`                  // ISO-8601, used for decay and freshness
	FirstSeen         string    `json:"first_seen"`                 // ISO-8601
	LastSeen          string    `json:"last_seen"`                  // ISO-8601
	SeenCount         int       `json:"seen_count"`                 // Times a semantically equivalent claim was submitted, >= 1
	DenseEmbedding    []float32 `json:"dense_embedding,omitempty"`  // Text vector (e.g. 384-dim)
	VisualEmbedding   []float32 `json:"visual_embedding,omitempty"` // Optional image vector (e.g. 512-dim)
}

// RetrievedClaim wraps a stored record with per-query scores.
// TimeDecayedScore is derived at query time and never persisted.
type RetrievedClaim struct {
	ID                string  `json:"id"`
	ClaimText         string  `json:"claim_text"`
	NormalizedText    string  `json:"normalized_text"`
	Verdict           Verdict `json:"verdict"`
	Confidence        float64 `json:"confidence"`
	Source            string  `json:"source"`
	SourceReliability float64 `json:"source_reliability"`
	Timestamp         string  `json:"timestamp"`
	SeenCount         int     `json:"seen_count"`
	SimilarityScore   float64 `json:"similarity_score"`
	TimeDecayedScore  float64 `json:"time_decayed_score"`
}

// NormalizedClaim is the canonical form of a raw submission
type NormalizedClaim struct {
	OriginalText    string   `json:"original_text"`
	NormalizedText  string   `json:"normalized_text"`
	Entities        []string `json:"entities"`
	TemporalMarkers string   `json:"temporal_markers,omitempty"`
	SourceType      string   `json:"source_type"` // text, image, both
}

// VerificationResult is the outcome of reasoning over a claim
type VerificationResult struct {
	ClaimText       string   `json:"claim_text"`
	NormalizedClaim string   `json:"normalized_claim"`
	Verdict         Verdict  `json:"verdict"`
	Confidence      float64  `json:"confidence"`
	Explanation     string   `json:"explanation"`
	EvidenceIDs     []string `json:"evidence_ids"`
	EvidenceSummary string   `json:"evidence_summary"`
	ReasoningTrace  string   `json:"reasoning_trace"`
}

// Memory update actions
const (
	MemoryActionCreated = "created"
	MemoryActionUpdated = "updated"
	MemoryActionSkipped = "skipped"
)

// MemoryUpdateResult describes what the dedup/merge engine did
type MemoryUpdateResult struct {
	Action    string `json:"action"` // created, updated, skipped
	ClaimID   string `json:"claim_id"`
	SeenCount int    `json:"seen_count"`
	Message   string `json:"message"`
}

// ParseTimestamp parses an ISO-8601 timestamp as written by this system
// or by seed datasets (date-only form allowed). The second return value
// reports whether parsing succeeded.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AgeDays returns the age of a timestamp in fractional days.
// An unparseable or missing timestamp yields 0 (treated as fresh);
// this leniency is deliberate and means the freshness check always
// passes for records without a usable timestamp.
func AgeDays(timestamp string, now time.Time) float64 {
	t, ok := ParseTimestamp(timestamp)
	if !ok {
		return 0
	}
	age := now.Sub(t).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}
