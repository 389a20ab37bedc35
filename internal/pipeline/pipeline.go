// Package pipeline orchestrates claim verification as a linear five-stage
// flow: normalize, retrieve, web search, reason, memory update. Every
// stage degrades instead of aborting; input validation is the only error
// that stops a run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/policy"
	"github.com/ppiankov/verimem/internal/retrieve"
	"github.com/ppiankov/verimem/internal/validate"
)

// Stage identifies a pipeline step
type Stage int

const (
	StageNormalize Stage = iota
	StageRetrieve
	StageWebSearch
	StageReason
	StageMemoryUpdate
	StageDone
)

// String returns the stage name for logs
func (s Stage) String() string {
	switch s {
	case StageNormalize:
		return "normalize"
	case StageRetrieve:
		return "retrieve"
	case StageWebSearch:
		return "web_search"
	case StageReason:
		return "reason"
	case StageMemoryUpdate:
		return "memory_update"
	default:
		return "done"
	}
}

// State carries everything a run has produced so far. Each stage reads
// the fields of earlier stages and fills in its own.
type State struct {
	Stage Stage

	// Input
	RawText         string
	VisualEmbedding []float32

	// After normalization
	Normalized model.NormalizedClaim

	// After retrieval
	Evidence []model.RetrievedClaim
	CacheHit bool

	// After web search
	WebSearch     *model.WebSearchResponse
	WebSearchUsed bool

	// After reasoning
	Verification model.VerificationResult

	// After memory update
	Memory model.MemoryUpdateResult

	Errors []string
}

// Normalizer extracts the canonical claim from raw text
type Normalizer interface {
	Normalize(ctx context.Context, rawText string) (model.NormalizedClaim, error)
}

// Searcher runs a live fact-check search. A nil Searcher disables the
// web search stage entirely.
type Searcher interface {
	SearchFactCheck(ctx context.Context, claim string) (*model.WebSearchResponse, error)
}

// Reasoner produces a verdict from the gathered evidence
type Reasoner interface {
	Reason(ctx context.Context, claimText, normalizedClaim string, evidence []model.RetrievedClaim, webContext string) (model.VerificationResult, error)
}

// MemoryUpdater persists a verification result
type MemoryUpdater interface {
	UpdateOrCreate(ctx context.Context, result model.VerificationResult, visualEmbedding []float32) model.MemoryUpdateResult
}

// FormatSearch renders a search response as reasoning context
type FormatSearch func(*model.WebSearchResponse) string

// Pipeline wires the five stages. Collaborators are injected fully
// constructed; the pipeline owns only sequencing, timeouts, and the
// degrade behavior between stages.
type Pipeline struct {
	normalizer   Normalizer
	retriever    *retrieve.Retriever
	searcher     Searcher
	reasoner     Reasoner
	memory       MemoryUpdater
	cachePolicy  policy.CachePolicy
	formatSearch FormatSearch
	stageTimeout time.Duration
	logger       *log.Logger
	now          func() time.Time
}

// New creates a pipeline. searcher may be nil when no search API key is
// configured.
func New(
	normalizer Normalizer,
	retriever *retrieve.Retriever,
	searcher Searcher,
	reasoner Reasoner,
	memory MemoryUpdater,
	cachePolicy policy.CachePolicy,
	formatSearch FormatSearch,
	cfg model.PipelineConfig,
	logger *log.Logger,
) *Pipeline {
	stageTimeout := cfg.StageTimeout
	if stageTimeout == 0 {
		stageTimeout = 30 * time.Second
	}
	return &Pipeline{
		normalizer:   normalizer,
		retriever:    retriever,
		searcher:     searcher,
		reasoner:     reasoner,
		memory:       memory,
		cachePolicy:  cachePolicy,
		formatSearch: formatSearch,
		stageTimeout: stageTimeout,
		logger:       logger.With("component", "pipeline"),
		now:          time.Now,
	}
}

// Verify runs a claim through the full pipeline. Input validation is the
// only blocking error; every later failure is recorded in the response's
// Errors and the run continues with whatever each stage could produce.
func (p *Pipeline) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	// Validation gates the run; prompt sanitization happens at the LLM
	// boundary so stored claim text keeps its original form.
	if _, err := validate.ClaimInput(req.RawText); err != nil {
		return nil, err
	}

	st := State{RawText: strings.TrimSpace(req.RawText), VisualEmbedding: req.VisualEmbedding}
	for st.Stage != StageDone {
		st = p.step(ctx, st)
	}

	evidence := st.Evidence
	if len(evidence) > 5 {
		evidence = evidence[:5]
	}

	return &model.VerifyResponse{
		NormalizedClaim: st.Normalized,
		CacheHit:        st.CacheHit,
		Verification:    st.Verification,
		Evidence:        evidence,
		Memory:          st.Memory,
		WebSearchUsed:   st.WebSearchUsed,
		Errors:          st.Errors,
		Timestamp:       p.now().UTC(),
	}, nil
}

func (p *Pipeline) step(ctx context.Context, st State) State {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	switch st.Stage {
	case StageNormalize:
		st = p.normalize(stageCtx, st)
	case StageRetrieve:
		st = p.retrieveStage(stageCtx, st)
	case StageWebSearch:
		st = p.webSearch(stageCtx, st)
	case StageReason:
		st = p.reason(stageCtx, st)
	case StageMemoryUpdate:
		st = p.memoryUpdate(stageCtx, st)
	}
	st.Stage++
	return st
}

func (p *Pipeline) normalize(ctx context.Context, st State) State {
	normalized, err := p.normalizer.Normalize(ctx, st.RawText)
	if err != nil {
		// The normalizer already returned its raw-text fallback.
		st.Errors = append(st.Errors, fmt.Sprintf("normalization error: %v", err))
	}
	st.Normalized = normalized
	return st
}

func (p *Pipeline) retrieveStage(ctx context.Context, st State) State {
	st.Evidence = p.retriever.Search(ctx, st.Normalized.NormalizedText, retrieve.Options{ApplyTimeDecay: true})
	decision := p.cachePolicy.Evaluate(st.Evidence, p.now())
	st.CacheHit = decision.Hit
	p.logger.Debug("retrieval done",
		"candidates", len(st.Evidence), "cache_hit", decision.Hit,
		"similarity", decision.Similarity, "age_days", decision.AgeDays)
	return st
}

func (p *Pipeline) webSearch(ctx context.Context, st State) State {
	// A fresh confident memory answer makes live search unnecessary.
	if st.CacheHit || p.searcher == nil {
		return st
	}

	resp, err := p.searcher.SearchFactCheck(ctx, st.Normalized.NormalizedText)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("web search error: %v", err))
		return st
	}
	if resp != nil && len(resp.Results) > 0 {
		st.WebSearch = resp
		st.WebSearchUsed = true
	}
	return st
}

func (p *Pipeline) reason(ctx context.Context, st State) State {
	var webContext string
	if st.WebSearchUsed && p.formatSearch != nil {
		webContext = p.formatSearch(st.WebSearch)
	}

	verification, err := p.reasoner.Reason(ctx, st.Normalized.OriginalText, st.Normalized.NormalizedText, st.Evidence, webContext)
	if err != nil {
		// The reasoner already degraded to its voting fallback.
		st.Errors = append(st.Errors, fmt.Sprintf("reasoning error: %v", err))
	}
	st.Verification = verification
	return st
}

func (p *Pipeline) memoryUpdate(ctx context.Context, st State) State {
	st.Memory = p.memory.UpdateOrCreate(ctx, st.Verification, st.VisualEmbedding)
	if st.Memory.Action == model.MemoryActionSkipped {
		st.Errors = append(st.Errors, fmt.Sprintf("memory update error: %s", st.Memory.Message))
	}
	return st
}
