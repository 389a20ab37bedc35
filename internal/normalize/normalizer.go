// Package normalize extracts the canonical factual claim from raw
// submitted text using an LLM.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/validate"
)

// Normalizer rewrites raw claims into canonical form. Normalization is
// best-effort: any LLM or parse failure falls back to the trimmed raw
// text so the pipeline can continue.
type Normalizer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *log.Logger
}

// NewNormalizer creates a normalizer backed by a chat-completion model
func NewNormalizer(cfg model.LLMConfig, logger *log.Logger) (*Normalizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	llmModel := cfg.Model
	if llmModel == "" {
		llmModel = openai.GPT4oMini
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}

	return &Normalizer{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       llmModel,
		maxTokens:   maxTokens,
		temperature: 0.1,
		timeout:     timeout,
		logger:      logger.With("component", "normalize"),
	}, nil
}

// normalizeOutput is the JSON shape the extraction prompt demands
type normalizeOutput struct {
	Normalized string   `json:"normalized"`
	Entities   []string `json:"entities"`
	Temporal   string   `json:"temporal"`
}

// Normalize extracts the core factual claim. On any failure it returns
// the fallback (trimmed raw text, no entities) together with the error,
// so callers can record the degradation and keep going.
func (n *Normalizer) Normalize(ctx context.Context, rawText string) (model.NormalizedClaim, error) {
	fallback := model.NormalizedClaim{
		OriginalText:   rawText,
		NormalizedText: strings.TrimSpace(rawText),
		Entities:       []string{},
		SourceType:     "text",
	}

	sanitized := validate.SanitizeClaimText(rawText)

	prompt := fmt.Sprintf(`You are a claim extraction expert. Extract the core factual claim from this text.

Text: "%s"

Return ONLY valid JSON with this exact structure (no markdown, no explanation):
{"normalized": "the core factual claim in simple present tense", "entities": ["list", "of", "key", "entities"], "temporal": "any time reference or null"}

Rules:
1. Remove opinions, qualifiers, and hedging language
2. Preserve the factual assertion
3. Extract named entities (people, places, organizations, concepts)
4. Identify any temporal markers (dates, time periods)`, sanitized)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: n.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   n.maxTokens,
		Temperature: n.temperature,
	})
	if err != nil {
		n.logger.Warn("normalization LLM call failed, using raw text", "err", err)
		return fallback, fmt.Errorf("normalize claim: %w", err)
	}
	if len(resp.Choices) == 0 {
		n.logger.Warn("normalization returned no choices, using raw text")
		return fallback, fmt.Errorf("normalize claim: empty response")
	}

	var out normalizeOutput
	if err := json.Unmarshal([]byte(StripCodeFences(resp.Choices[0].Message.Content)), &out); err != nil {
		n.logger.Warn("normalization output unparseable, using raw text", "err", err)
		return fallback, fmt.Errorf("parse normalization output: %w", err)
	}
	if out.Normalized == "" {
		out.Normalized = fallback.NormalizedText
	}
	if out.Entities == nil {
		out.Entities = []string{}
	}
	if strings.EqualFold(out.Temporal, "null") {
		out.Temporal = ""
	}

	return model.NormalizedClaim{
		OriginalText:    rawText,
		NormalizedText:  out.Normalized,
		Entities:        out.Entities,
		TemporalMarkers: out.Temporal,
		SourceType:      "text",
	}, nil
}

// StripCodeFences removes a markdown ```json ... ``` wrapper that chat
// models sometimes add despite instructions
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
