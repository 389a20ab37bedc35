package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verimem/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
	batchOutput  string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify multiple claims from a file in parallel",
	Long: `Batch verifies claims concurrently:
- Read claims from input file (one per line, # comments allowed)
- Verify claims in parallel with a configurable worker count
- Individual failures never abort the batch

Example:
  verimem batch claims.txt
  verimem batch claims.txt --concurrency 8
  verimem batch claims.txt --output results.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: config value)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write full results as JSON to this path")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		a.cfg.Concurrency.Workers = concurrency
	}

	fmt.Fprintf(os.Stderr, "Reading claims from %s...\n", file)
	processor := a.newBatchProcessor()
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Verified %d claims with %d workers\n\n", len(results), a.cfg.Concurrency.Workers)

	successCount := 0
	failureCount := 0
	for _, result := range results {
		if result.Err != nil {
			failureCount++
			fmt.Printf("✗ %q: %v\n", result.Claim, result.Err)
			continue
		}
		successCount++
		v := result.Response.Verification
		cached := ""
		if result.Response.CacheHit {
			cached = " (cached)"
		}
		fmt.Printf("✓ [%s %.0f%%]%s %s\n", v.Verdict, v.Confidence*100, cached, result.Claim)
	}

	fmt.Fprintf(os.Stderr, "\nTotal: %d  Success: %d  Failures: %d\n", len(results), successCount, failureCount)

	if batchOutput != "" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		if err := writeResultsJSON(f, results); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Full results written to %s\n", batchOutput)
	}
	return nil
}

func writeResultsJSON(w io.Writer, results []*worker.VerifyResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
