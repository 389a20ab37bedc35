package model

import "time"

// Config is the full verimem configuration tree
type Config struct {
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Memory      MemoryConfig      `yaml:"memory"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Output      OutputConfig      `yaml:"output"`
}

// QdrantConfig configures the claim store connection
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig configures the embedding gateway
type EmbeddingConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	DenseDim  int           `yaml:"dense_dim"`  // Text vector dimension
	VisualDim int           `yaml:"visual_dim"` // Image vector dimension
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"` // In-process memo for repeated texts within a request window
}

// LLMConfig configures the reasoning service (normalizer + reasoner)
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
}

// SearchConfig configures the live web search service
type SearchConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	MaxResults        int           `yaml:"max_results"`
	Depth             string        `yaml:"depth"` // basic or advanced
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// RetrievalConfig holds the read-path policy knobs
type RetrievalConfig struct {
	TopK              int     `yaml:"top_k"`
	TimeDecaySigma    float64 `yaml:"time_decay_sigma_days"`
	CacheHitThreshold float64 `yaml:"cache_hit_threshold"`
	CacheMaxAgeDays   float64 `yaml:"cache_max_age_days"`
}

// MemoryConfig holds the write-path policy knobs
type MemoryConfig struct {
	// DedupThreshold is deliberately stricter than the cache-hit
	// threshold: merging two distinct claims is a worse failure than an
	// unnecessary re-verification.
	DedupThreshold    float64 `yaml:"dedup_threshold"`
	BulkChunkSize     int     `yaml:"bulk_chunk_size"`
	SourceReliability float64 `yaml:"source_reliability"` // Default for user submissions
}

// PipelineConfig configures the orchestrator
type PipelineConfig struct {
	StageTimeout time.Duration `yaml:"stage_timeout"` // Bound on each external call
}

// ConcurrencyConfig configures batch verification
type ConcurrencyConfig struct {
	Workers int `yaml:"workers"`
}

// OutputConfig configures CLI rendering
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// DefaultConfig returns the configuration defaults. Thresholds mirror the
// empirically tested values: dedup 0.92, cache hit 0.85 with a 3-day
// freshness bound, Gaussian decay sigma 90 days, top-k 10.
func DefaultConfig() *Config {
	return &Config{
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "claims_memory",
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			DenseDim:  384,
			VisualDim: 512,
			Timeout:   10 * time.Second,
			CacheTTL:  5 * time.Minute,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			MaxTokens:   1000,
			Temperature: 0.2,
		},
		Search: SearchConfig{
			BaseURL:           "https://api.tavily.com",
			MaxResults:        5,
			Depth:             "advanced",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 1,
		},
		Retrieval: RetrievalConfig{
			TopK:              10,
			TimeDecaySigma:    90,
			CacheHitThreshold: 0.85,
			CacheMaxAgeDays:   3,
		},
		Memory: MemoryConfig{
			DedupThreshold:    0.92,
			BulkChunkSize:     100,
			SourceReliability: 0.7,
		},
		Pipeline: PipelineConfig{
			StageTimeout: 30 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
	}
}
