package model

import "time"

// VerifyRequest is a single claim submission
type VerifyRequest struct {
	RawText string `json:"raw_text"`
	// ImagePath points at an image whose claim was extracted upstream.
	// Vision extraction is out of scope; the path is carried through so
	// a pre-computed visual embedding can be attached on the write path.
	ImagePath       string    `json:"image_path,omitempty"`
	VisualEmbedding []float32 `json:"-"`
}

// VerifyResponse is the complete result of one pipeline run
type VerifyResponse struct {
	NormalizedClaim NormalizedClaim    `json:"normalized_claim"`
	CacheHit        bool               `json:"cache_hit"`
	Verification    VerificationResult `json:"verification"`
	Evidence        []RetrievedClaim   `json:"evidence"`
	Memory          MemoryUpdateResult `json:"memory"`
	WebSearchUsed   bool               `json:"web_search_used"`
	Errors          []string           `json:"errors"`
	Timestamp       time.Time          `json:"timestamp"`
}

// BulkResult reports a chunked bulk ingestion. Chunks commit
// independently, so counts are additive and never atomic.
type BulkResult struct {
	SuccessCount int      `json:"success_count"`
	ErrorCount   int      `json:"error_count"`
	Errors       []string `json:"errors,omitempty"`
}

// MemoryStats summarizes the claim store for the stats command
type MemoryStats struct {
	TotalClaims  uint64          `json:"total_claims"`
	Verdicts     map[Verdict]int `json:"verdicts"`
	AvgSeenCount float64         `json:"avg_seen_count"`
	MaxSeenCount int             `json:"max_seen_count"`
	TopClaims    []ClaimRecord   `json:"top_claims"`
}
