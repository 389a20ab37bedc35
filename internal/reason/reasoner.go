// Package reason produces a verdict for a claim from retrieved evidence
// and optional live web search context, using chain-of-thought prompting
// with a weighted-voting fallback when the LLM is unavailable.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/normalize"
)

// Reasoner assesses claim veracity. Like every pipeline stage it never
// leaves the caller without a result: LLM failure degrades to weighted
// evidence voting, and an empty evidence set yields Uncertain.
type Reasoner struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *log.Logger
}

// NewReasoner creates a reasoner backed by a chat-completion model
func NewReasoner(cfg model.LLMConfig, logger *log.Logger) (*Reasoner, error) {
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
		maxTokens = 1000
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	return &Reasoner{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       llmModel,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger.With("component", "reason"),
	}, nil
}

// reasonOutput is the JSON shape the verdict prompt demands
type reasonOutput struct {
	Verdict     string   `json:"verdict"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Reasoning   string   `json:"reasoning"`
	CitedIDs    []string `json:"cited_ids"`
}

// Reason produces a verification result for a normalized claim.
// webContext is the formatted output of a live web search; empty means
// the search was skipped or returned nothing.
func (r *Reasoner) Reason(ctx context.Context, claimText, normalizedClaim string, evidence []model.RetrievedClaim, webContext string) (model.VerificationResult, error) {
	prompt := buildPrompt(normalizedClaim, evidence, webContext)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		r.logger.Warn("reasoning LLM call failed, falling back to evidence voting", "err", err)
		return r.fallback(claimText, normalizedClaim, evidence), fmt.Errorf("reason about claim: %w", err)
	}
	if len(resp.Choices) == 0 {
		r.logger.Warn("reasoning returned no choices, falling back to evidence voting")
		return r.fallback(claimText, normalizedClaim, evidence), fmt.Errorf("reason about claim: empty response")
	}

	var out reasonOutput
	if err := json.Unmarshal([]byte(normalize.StripCodeFences(resp.Choices[0].Message.Content)), &out); err != nil {
		r.logger.Warn("reasoning output unparseable, falling back to evidence voting", "err", err)
		return r.fallback(claimText, normalizedClaim, evidence), fmt.Errorf("parse reasoning output: %w", err)
	}

	verdict := model.ParseVerdict(out.Verdict)

	// An out-of-range confidence means the model did not commit to one;
	// replace it with evidence consensus rather than trusting a zero.
	confidence := out.Confidence
	if confidence <= 0.01 || confidence > 1 {
		confidence = ConsensusConfidence(evidence, verdict)
	}

	citedIDs := out.CitedIDs
	if len(citedIDs) == 0 {
		citedIDs = topEvidenceIDs(evidence, 3)
	}

	explanation := out.Explanation
	if explanation == "" {
		explanation = "No explanation provided"
	}

	return model.VerificationResult{
		ClaimText:       claimText,
		NormalizedClaim: normalizedClaim,
		Verdict:         verdict,
		Confidence:      confidence,
		Explanation:     explanation,
		EvidenceIDs:     citedIDs,
		EvidenceSummary: evidenceSummary(evidence),
		ReasoningTrace:  out.Reasoning,
	}, nil
}

// fallback votes on the verdict with evidence weighted by similarity and
// source reliability. No evidence at all means Uncertain at low confidence.
func (r *Reasoner) fallback(claimText, normalizedClaim string, evidence []model.RetrievedClaim) model.VerificationResult {
	if len(evidence) == 0 {
		return model.VerificationResult{
			ClaimText:       claimText,
			NormalizedClaim: normalizedClaim,
			Verdict:         model.VerdictUncertain,
			Confidence:      0.3,
			Explanation:     "Insufficient evidence in database",
			EvidenceIDs:     []string{},
			EvidenceSummary: "No relevant claims found",
			ReasoningTrace:  "Fallback: no evidence available",
		}
	}

	votes := map[model.Verdict]float64{}
	for _, ev := range evidence {
		votes[ev.Verdict] += ev.SimilarityScore * ev.SourceReliability
	}
	verdict := model.VerdictUncertain
	best := -1.0
	for _, v := range []model.Verdict{model.VerdictTrue, model.VerdictFalse, model.VerdictUncertain} {
		if votes[v] > best {
			best = votes[v]
			verdict = v
		}
	}

	return model.VerificationResult{
		ClaimText:       claimText,
		NormalizedClaim: normalizedClaim,
		Verdict:         verdict,
		Confidence:      ConsensusConfidence(evidence, verdict),
		Explanation:     fmt.Sprintf("Based on %d similar claims in database", len(evidence)),
		EvidenceIDs:     topEvidenceIDs(evidence, 3),
		EvidenceSummary: evidenceSummary(evidence),
		ReasoningTrace:  "Fallback: used weighted voting from evidence",
	}
}

// ConsensusConfidence scores how strongly the evidence agrees with a
// verdict. Agreement is the reliability-and-similarity weighted share of
// evidence supporting the verdict, scaled into [0.4, 0.98] so consensus
// confidence never reaches certainty and never drops below a floor.
func ConsensusConfidence(evidence []model.RetrievedClaim, verdict model.Verdict) float64 {
	if len(evidence) == 0 {
		return 0.3
	}

	votes := map[model.Verdict]float64{}
	var totalWeight float64
	for _, ev := range evidence {
		weight := ev.SourceReliability * ev.SimilarityScore
		votes[ev.Verdict] += weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0.3
	}

	confidence := 0.4 + (votes[verdict]/totalWeight)*0.58
	if confidence > 0.98 {
		confidence = 0.98
	}
	return confidence
}

func topEvidenceIDs(evidence []model.RetrievedClaim, n int) []string {
	ids := make([]string, 0, n)
	for _, ev := range evidence {
		if len(ids) >= n {
			break
		}
		ids = append(ids, ev.ID)
	}
	return ids
}

// evidenceSummary renders a short human-readable digest of the evidence set
func evidenceSummary(evidence []model.RetrievedClaim) string {
	if len(evidence) == 0 {
		return "No evidence found in memory."
	}

	counts := map[model.Verdict]int{}
	seenSources := map[string]bool{}
	var sources []string
	for _, ev := range evidence {
		counts[ev.Verdict]++
		if !seenSources[ev.Source] && len(sources) < 3 {
			seenSources[ev.Source] = true
			sources = append(sources, ev.Source)
		}
	}

	var dist []string
	for _, v := range []model.Verdict{model.VerdictTrue, model.VerdictFalse, model.VerdictUncertain} {
		if counts[v] > 0 {
			dist = append(dist, fmt.Sprintf("%s: %d", v, counts[v]))
		}
	}

	parts := []string{
		fmt.Sprintf("Analyzed %d similar claims.", len(evidence)),
		fmt.Sprintf("Verdict distribution: %s.", strings.Join(dist, ", ")),
		fmt.Sprintf("Sources: %s.", strings.Join(sources, ", ")),
	}
	if evidence[0].SeenCount > 1 {
		parts = append(parts, fmt.Sprintf("Most similar claim seen %d times previously.", evidence[0].SeenCount))
	}
	return strings.Join(parts, " ")
}

// formatEvidence renders retrieved claims for the prompt
func formatEvidence(evidence []model.RetrievedClaim) string {
	if len(evidence) == 0 {
		return "No relevant evidence found in memory."
	}
	var b strings.Builder
	for i, ev := range evidence {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. CLAIM: %q\n", i+1, ev.ClaimText)
		fmt.Fprintf(&b, "   VERDICT: %s (Confidence: %.0f%%)\n", ev.Verdict, ev.Confidence*100)
		fmt.Fprintf(&b, "   SOURCE: %s (Reliability: %.0f%%)\n", ev.Source, ev.SourceReliability*100)
		fmt.Fprintf(&b, "   SIMILARITY: %.2f\n", ev.SimilarityScore)
		fmt.Fprintf(&b, "   SEEN: %d times", ev.SeenCount)
	}
	return b.String()
}

func buildPrompt(normalizedClaim string, evidence []model.RetrievedClaim, webContext string) string {
	webSection := "\nLIVE WEB SEARCH RESULTS: [NONE - Web search was not performed or returned no results]\n"
	if webContext != "" {
		webSection = fmt.Sprintf(`

LIVE WEB SEARCH RESULTS:
%s

IMPORTANT: Web search results are from live internet sources. Prioritize these for current events and recent claims.
`, webContext)
	}

	return fmt.Sprintf(`You are an expert fact-checker analyzing a claim using evidence from a verified database AND live web search results.

CLAIM TO VERIFY:
"%s"

EVIDENCE FROM MEMORY DATABASE:
%s
%s
ANALYSIS STEPS:
1. Examine evidence from memory database
2. Consider web search results. If NONE, rely on memory evidence.
3. If both memory and web search are empty, use your INTERNAL KNOWLEDGE but state clearly "Based on internal knowledge".
4. Cross-reference multiple sources
5. Weigh authoritative sources (Reuters, AP, fact-checkers) higher
6. If evidence is conflicting or insufficient, verdict should be Uncertain

Based on your analysis, provide a verdict.

Return ONLY valid JSON (no markdown, no extra text):
{"verdict": "True" or "False" or "Uncertain", "confidence": 0.0-1.0, "explanation": "brief justification citing specific sources", "reasoning": "step-by-step analysis", "cited_ids": ["source references"]}

CRITICAL VERDICT RULES:
- "True" = The claim as stated IS FACTUALLY CORRECT
- "False" = The claim as stated IS FACTUALLY INCORRECT (misinformation)
- "Uncertain" = Not enough evidence to determine

EXAMPLES:
- Claim "Vaccines cause autism" -> Verdict "False" (because vaccines do NOT cause autism)
- Claim "The Earth is round" -> Verdict "True" (because the Earth IS round)
- Claim "Climate change is a hoax" -> Verdict "False" (because climate change is REAL, not a hoax)

For claims that say "X is a hoax" or "X is fake", if X is actually REAL the verdict should be "False" because the claim itself is wrong.`, normalizedClaim, formatEvidence(evidence), webSection)
}
