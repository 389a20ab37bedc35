package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/verimem/internal/model"
)

type stubVerifier struct {
	calls    int32
	failText string
}

func (v *stubVerifier) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerifyResponse, error) {
	atomic.AddInt32(&v.calls, 1)
	if v.failText != "" && req.RawText == v.failText {
		return nil, fmt.Errorf("invalid input: too short")
	}
	return &model.VerifyResponse{
		Verification: model.VerificationResult{
			ClaimText: req.RawText,
			Verdict:   model.VerdictUncertain,
		},
	}, nil
}

func testProcessor(v Verifier) *BatchProcessor {
	return NewBatchProcessor(v, model.ConcurrencyConfig{Workers: 3}, log.New(io.Discard))
}

func TestProcessClaims_PreservesInputOrder(t *testing.T) {
	v := &stubVerifier{}
	b := testProcessor(v)

	claims := []string{"claim one", "claim two", "claim three", "claim four", "claim five"}
	results := b.ProcessClaims(context.Background(), claims)

	if len(results) != len(claims) {
		t.Fatalf("expected %d results, got %d", len(claims), len(results))
	}
	for i, r := range results {
		if r.Claim != claims[i] {
			t.Errorf("result %d out of order: got %q, want %q", i, r.Claim, claims[i])
		}
	}
	if atomic.LoadInt32(&v.calls) != int32(len(claims)) {
		t.Errorf("expected %d verify calls, got %d", len(claims), v.calls)
	}
}

func TestProcessClaims_FailureDoesNotAbortBatch(t *testing.T) {
	v := &stubVerifier{failText: "bad claim"}
	b := testProcessor(v)

	results := b.ProcessClaims(context.Background(), []string{"good claim", "bad claim", "another good claim"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[1].Err == nil {
		t.Error("failing claim must carry its error")
	}
	if results[1].ErrorMsg == "" {
		t.Error("failing claim must carry an error message for rendering")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("other claims must still succeed")
	}
	if results[0].Response == nil {
		t.Error("successful result must carry a response")
	}
}

func TestReadClaimsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.txt")
	content := strings.Join([]string{
		"# fixture claims",
		"The Earth is flat",
		"",
		"  Vaccines cause autism  ",
		"the earth is flat", // case-insensitive duplicate
		"# trailing comment",
		"5G spreads viruses",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	claims, err := ReadClaimsFromFile(path)
	if err != nil {
		t.Fatalf("ReadClaimsFromFile: %v", err)
	}
	want := []string{"The Earth is flat", "Vaccines cause autism", "5G spreads viruses"}
	if len(claims) != len(want) {
		t.Fatalf("expected %d claims, got %d: %v", len(want), len(claims), claims)
	}
	for i := range want {
		if claims[i] != want[i] {
			t.Errorf("claim %d: got %q, want %q", i, claims[i], want[i])
		}
	}
}

func TestReadClaimsFromFile_MissingFile(t *testing.T) {
	if _, err := ReadClaimsFromFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestProcessFile_EmptyFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("# only comments\n\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	b := testProcessor(&stubVerifier{})
	if _, err := b.ProcessFile(context.Background(), path); err == nil {
		t.Fatal("expected error for file without claims")
	}
}
