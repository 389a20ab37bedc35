package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/verimem/internal/memory"
	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/policy"
	"github.com/ppiankov/verimem/internal/retrieve"
	"github.com/ppiankov/verimem/internal/store"
	"github.com/ppiankov/verimem/internal/websearch"
)

type hashEmbedder struct{ dim int }

func (e *hashEmbedder) Dimension() int { return e.dim }

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for i, r := range text {
		vec[(i+int(r))%e.dim] += float32(r%13) + 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// passthroughNormalizer trims the raw text, like the real fallback path
type passthroughNormalizer struct{ fail bool }

func (n *passthroughNormalizer) Normalize(ctx context.Context, rawText string) (model.NormalizedClaim, error) {
	claim := model.NormalizedClaim{
		OriginalText:   rawText,
		NormalizedText: strings.TrimSpace(rawText),
		Entities:       []string{},
		SourceType:     "text",
	}
	if n.fail {
		return claim, errors.New("llm unavailable")
	}
	return claim, nil
}

// stubReasoner returns a fixed verdict, or its evidence-free fallback
// plus an error when failing
type stubReasoner struct {
	fail       bool
	calls      int
	webContext []string
}

func (r *stubReasoner) Reason(ctx context.Context, claimText, normalizedClaim string, evidence []model.RetrievedClaim, webContext string) (model.VerificationResult, error) {
	r.calls++
	r.webContext = append(r.webContext, webContext)
	result := model.VerificationResult{
		ClaimText:       claimText,
		NormalizedClaim: normalizedClaim,
		Verdict:         model.VerdictFalse,
		Confidence:      0.9,
		Explanation:     "stub explanation",
	}
	if r.fail {
		result.Verdict = model.VerdictUncertain
		result.Confidence = 0.3
		return result, errors.New("llm unavailable")
	}
	return result, nil
}

type stubSearcher struct {
	calls int
	fail  bool
}

func (s *stubSearcher) SearchFactCheck(ctx context.Context, claim string) (*model.WebSearchResponse, error) {
	s.calls++
	if s.fail {
		return &model.WebSearchResponse{Query: claim}, errors.New("search unavailable")
	}
	return &model.WebSearchResponse{
		Query: "fact check: " + claim,
		Results: []model.WebSearchResult{
			{Title: "Fact check", URL: "https://example.org/fc", Content: "relevant context", Score: 0.9},
		},
	}, nil
}

type fixture struct {
	pipeline *Pipeline
	store    *store.MemoryStore
	reasoner *stubReasoner
	searcher *stubSearcher
}

func newFixture(t *testing.T, normalizer Normalizer, reasoner *stubReasoner, searcher Searcher) *fixture {
	t.Helper()
	cfg := model.DefaultConfig()
	logger := log.New(io.Discard)
	s := store.NewMemoryStore()
	e := &hashEmbedder{dim: 16}
	r := retrieve.NewRetriever(e, s, cfg.Retrieval, logger)
	eng := memory.NewEngine(s, e, r, cfg.Memory, logger)

	p := New(normalizer, r, searcher, reasoner, eng,
		policy.NewCachePolicy(cfg.Retrieval), websearch.FormatForLLM, cfg.Pipeline, logger)

	f := &fixture{pipeline: p, store: s, reasoner: reasoner}
	if ss, ok := searcher.(*stubSearcher); ok {
		f.searcher = ss
	}
	return f
}

func TestVerify_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, &passthroughNormalizer{}, &stubReasoner{}, &stubSearcher{})

	for _, input := range []string{"", "ab", "12345", strings.Repeat("x", 2001)} {
		if _, err := f.pipeline.Verify(context.Background(), model.VerifyRequest{RawText: input}); err == nil {
			t.Errorf("input %q must be rejected", input)
		}
	}
}

func TestVerify_ColdMissThenCacheHit(t *testing.T) {
	searcher := &stubSearcher{}
	f := newFixture(t, &passthroughNormalizer{}, &stubReasoner{}, searcher)
	ctx := context.Background()
	req := model.VerifyRequest{RawText: "vaccines cause autism in children"}

	// First submission: empty memory, so a miss with a live search, then a create.
	first, err := f.pipeline.Verify(ctx, req)
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if first.CacheHit {
		t.Error("empty memory cannot produce a cache hit")
	}
	if !first.WebSearchUsed {
		t.Error("cache miss must trigger web search")
	}
	if first.Memory.Action != model.MemoryActionCreated {
		t.Fatalf("expected created, got %+v", first.Memory)
	}
	if first.Memory.SeenCount != 1 {
		t.Errorf("new claim starts at seen_count 1, got %d", first.Memory.SeenCount)
	}
	if len(first.Errors) != 0 {
		t.Errorf("clean run must have no errors, got %v", first.Errors)
	}

	// Second submission: fresh identical claim means hit, no search, merge.
	second, err := f.pipeline.Verify(ctx, req)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if !second.CacheHit {
		t.Error("fresh identical resubmission must be a cache hit")
	}
	if second.WebSearchUsed {
		t.Error("cache hit must skip web search")
	}
	if searcher.calls != 1 {
		t.Errorf("searcher must be called exactly once across both runs, got %d", searcher.calls)
	}
	if second.Memory.Action != model.MemoryActionUpdated {
		t.Fatalf("expected updated, got %+v", second.Memory)
	}
	if second.Memory.SeenCount != 2 {
		t.Errorf("merge must increment seen_count to 2, got %d", second.Memory.SeenCount)
	}
	if second.Memory.ClaimID != first.Memory.ClaimID {
		t.Errorf("merge must target the original record: %s vs %s", second.Memory.ClaimID, first.Memory.ClaimID)
	}

	count, _ := f.store.Count(ctx)
	if count != 1 {
		t.Errorf("resubmission must not create a second record, got %d", count)
	}
}

func TestVerify_ReasonerStillSeesCachedEvidence(t *testing.T) {
	reasoner := &stubReasoner{}
	f := newFixture(t, &passthroughNormalizer{}, reasoner, &stubSearcher{})
	ctx := context.Background()
	req := model.VerifyRequest{RawText: "the earth is flat"}

	if _, err := f.pipeline.Verify(ctx, req); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	resp, err := f.pipeline.Verify(ctx, req)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if !resp.CacheHit {
		t.Fatal("expected cache hit on resubmission")
	}
	// The reasoner runs on every request, hit or miss, and on a hit it
	// gets memory evidence with no web context.
	if reasoner.calls != 2 {
		t.Errorf("reasoner must run on both requests, got %d calls", reasoner.calls)
	}
	if reasoner.webContext[1] != "" {
		t.Errorf("cache hit must not feed web context to the reasoner, got %q", reasoner.webContext[1])
	}
	if len(resp.Evidence) == 0 {
		t.Error("cache hit response must include the matched evidence")
	}
}

func TestVerify_DegradesOnReasonerFailure(t *testing.T) {
	f := newFixture(t, &passthroughNormalizer{}, &stubReasoner{fail: true}, &stubSearcher{})

	resp, err := f.pipeline.Verify(context.Background(), model.VerifyRequest{RawText: "a brand new claim"})
	if err != nil {
		t.Fatalf("verify must not abort on reasoner failure: %v", err)
	}
	if len(resp.Errors) == 0 {
		t.Error("reasoner failure must be recorded in errors")
	}
	if resp.Verification.Verdict == "" {
		t.Error("degraded run must still carry a defined verdict")
	}
	// The fallback verdict is still persisted.
	if resp.Memory.Action != model.MemoryActionCreated {
		t.Errorf("memory update must still run, got %+v", resp.Memory)
	}
}

func TestVerify_DegradesOnNormalizerFailure(t *testing.T) {
	f := newFixture(t, &passthroughNormalizer{fail: true}, &stubReasoner{}, &stubSearcher{})

	resp, err := f.pipeline.Verify(context.Background(), model.VerifyRequest{RawText: "  some raw claim text  "})
	if err != nil {
		t.Fatalf("verify must not abort on normalizer failure: %v", err)
	}
	if len(resp.Errors) == 0 {
		t.Error("normalizer failure must be recorded in errors")
	}
	// The fallback keeps the pipeline going on the trimmed raw text.
	if resp.NormalizedClaim.NormalizedText != "some raw claim text" {
		t.Errorf("expected raw-text fallback, got %q", resp.NormalizedClaim.NormalizedText)
	}
	if resp.Memory.Action != model.MemoryActionCreated {
		t.Errorf("memory update must still run, got %+v", resp.Memory)
	}
}

func TestVerify_DegradesOnSearchFailure(t *testing.T) {
	f := newFixture(t, &passthroughNormalizer{}, &stubReasoner{}, &stubSearcher{fail: true})

	resp, err := f.pipeline.Verify(context.Background(), model.VerifyRequest{RawText: "another new claim"})
	if err != nil {
		t.Fatalf("verify must not abort on search failure: %v", err)
	}
	if resp.WebSearchUsed {
		t.Error("failed search must not be marked as used")
	}
	if len(resp.Errors) == 0 {
		t.Error("search failure must be recorded in errors")
	}
	if resp.Memory.Action != model.MemoryActionCreated {
		t.Errorf("verification must complete on memory evidence alone, got %+v", resp.Memory)
	}
}

func TestVerify_NilSearcherSkipsWebSearch(t *testing.T) {
	f := newFixture(t, &passthroughNormalizer{}, &stubReasoner{}, nil)

	resp, err := f.pipeline.Verify(context.Background(), model.VerifyRequest{RawText: "claim without search backend"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if resp.WebSearchUsed {
		t.Error("nil searcher must disable the web search stage")
	}
	if len(resp.Errors) != 0 {
		t.Errorf("disabled search is not an error, got %v", resp.Errors)
	}
}

func TestVerify_EvidenceCappedAtFive(t *testing.T) {
	f := newFixture(t, &passthroughNormalizer{}, &stubReasoner{}, &stubSearcher{})
	ctx := context.Background()

	// Seed several distinct claims, then verify yet another one; the
	// retriever will surface all of them as (weak) candidates.
	for i := 0; i < 8; i++ {
		req := model.VerifyRequest{RawText: fmt.Sprintf("distinct seeded claim number %d", i)}
		if _, err := f.pipeline.Verify(ctx, req); err != nil {
			t.Fatalf("seed verify %d: %v", i, err)
		}
	}

	resp, err := f.pipeline.Verify(ctx, model.VerifyRequest{RawText: "the final unrelated claim"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(resp.Evidence) > 5 {
		t.Errorf("response evidence must be capped at 5, got %d", len(resp.Evidence))
	}
}

func TestStageString(t *testing.T) {
	want := []string{"normalize", "retrieve", "web_search", "reason", "memory_update", "done"}
	for i, name := range want {
		if got := Stage(i).String(); got != name {
			t.Errorf("Stage(%d).String() = %q, want %q", i, got, name)
		}
	}
}
