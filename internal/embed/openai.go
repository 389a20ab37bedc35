package embed

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	openai "github.com/sashabaranov/go-openai"

	"github.com/ppiankov/verimem/internal/model"
)

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
// A short-TTL in-process memo avoids paying twice for the same normalized
// text within one request (the dedup check re-embeds what retrieval just
// embedded). This is not a request cache; the persistent claim store is
// the only cache of verification results.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	dim     int
	timeout time.Duration
	memo    *gocache.Cache
}

// NewOpenAIEmbedder creates an embedder from the embedding configuration
func NewOpenAIEmbedder(cfg model.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   openai.EmbeddingModel(cfg.Model),
		dim:     cfg.DenseDim,
		timeout: timeout,
		memo:    gocache.New(ttl, 2*ttl),
	}, nil
}

// Dimension returns the configured dense vector dimension
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// Embed returns the dense vector for text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(string(e.model), text)
	if cached, found := e.memo.Get(key); found {
		return cached.([]float32), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      e.model,
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dim {
		return nil, fmt.Errorf("unexpected embedding dimension: got %d, want %d", len(vec), e.dim)
	}

	e.memo.SetDefault(key, vec)
	return vec, nil
}
