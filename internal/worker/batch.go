package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/verimem/internal/model"
)

// Verifier runs a single claim through the verification pipeline
type Verifier interface {
	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error)
}

// VerifyResult pairs one claim with its verification outcome
type VerifyResult struct {
	Index    int                   `json:"index"`
	Claim    string                `json:"claim"`
	Response *model.VerifyResponse `json:"response,omitempty"`
	Err      error                 `json:"-"`
	ErrorMsg string                `json:"error,omitempty"`
}

// GetError implements Result
func (r *VerifyResult) GetError() error {
	return r.Err
}

// verifyJob adapts one claim to the pool's Job interface
type verifyJob struct {
	index    int
	claim    string
	verifier Verifier
}

func (j *verifyJob) Execute(ctx context.Context) Result {
	resp, err := j.verifier.Verify(ctx, model.VerifyRequest{RawText: j.claim})
	result := &VerifyResult{Index: j.index, Claim: j.claim, Response: resp, Err: err}
	if err != nil {
		result.ErrorMsg = err.Error()
	}
	return result
}

// BatchProcessor verifies many claims concurrently
type BatchProcessor struct {
	verifier Verifier
	workers  int
	logger   *log.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(verifier Verifier, cfg model.ConcurrencyConfig, logger *log.Logger) *BatchProcessor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &BatchProcessor{
		verifier: verifier,
		workers:  workers,
		logger:   logger.With("component", "batch"),
	}
}

// ProcessClaims verifies the claims concurrently and returns results in
// input order. Individual verification failures are carried per-result,
// never aborting the batch.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*VerifyResult {
	pool := NewPool(b.workers)
	pool.Start()

	for i, claim := range claims {
		pool.Submit(&verifyJob{index: i, claim: claim, verifier: b.verifier})
	}

	raw := pool.Wait()
	results := make([]*VerifyResult, 0, len(raw))
	for _, r := range raw {
		if vr, ok := r.(*VerifyResult); ok {
			results = append(results, vr)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	b.logger.Info("batch finished", "claims", len(claims), "failed", failed)
	return results
}

// ProcessFile reads claims from a file (one per line) and verifies them
func (b *BatchProcessor) ProcessFile(ctx context.Context, path string) ([]*VerifyResult, error) {
	claims, err := ReadClaimsFromFile(path)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, fmt.Errorf("no claims found in %s", path)
	}
	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile loads one claim per line, skipping blanks, comment
// lines, and exact duplicates (case-insensitive).
func ReadClaimsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open claims file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var claims []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		claims = append(claims, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read claims file: %w", err)
	}
	return claims, nil
}
