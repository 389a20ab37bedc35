// Package ingest loads seed claim datasets (JSONL) for bulk import into
// the claim memory.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/verimem/internal/memory"
)

// LoadResult reports what a dataset load skipped
type LoadResult struct {
	Claims      []memory.SeedClaim
	Skipped     int      // Blank lines, duplicates, records without claim text
	ParseErrors []string // Per-line parse failures, capped
}

const maxReportedParseErrors = 20

// LoadJSONL reads seed claims from a JSONL file, one JSON object per
// line. Records are pre-deduplicated by case-insensitive exact claim
// text; the engine's similarity dedup is skipped for bulk ingest, so
// this is the only duplicate guard.
func LoadJSONL(path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	result := &LoadResult{}
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			result.Skipped++
			continue
		}

		var claim memory.SeedClaim
		if err := json.Unmarshal([]byte(line), &claim); err != nil {
			if len(result.ParseErrors) < maxReportedParseErrors {
				result.ParseErrors = append(result.ParseErrors, fmt.Sprintf("line %d: %v", lineNo, err))
			}
			result.Skipped++
			continue
		}
		if strings.TrimSpace(claim.ClaimText) == "" {
			result.Skipped++
			continue
		}

		key := strings.ToLower(strings.TrimSpace(claim.ClaimText))
		if seen[key] {
			result.Skipped++
			continue
		}
		seen[key] = true
		result.Claims = append(result.Claims, claim)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return result, nil
}
