package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verimem/internal/ingest"
)

var (
	ingestTimeout time.Duration
	noProgress    bool
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <dataset.jsonl>",
	Short: "Bulk-load pre-verified claims into memory",
	Long: `Ingest seeds the claim memory from a JSONL dataset, one claim per line:

  {"claim_text": "...", "verdict": "True", "confidence": 0.95,
   "source": "FEVER", "source_reliability": 0.9, "topic": "health",
   "timestamp": "2024-01-15T00:00:00Z"}

Only claim_text and verdict are required. Records are deduplicated by
exact claim text (case-insensitive) before embedding; the per-claim
similarity check is skipped for throughput.

Example:
  verimem ingest fever_claims.jsonl
  verimem ingest seed.jsonl --no-progress`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 30*time.Minute, "total ingest timeout")
	ingestCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	loaded, err := ingest.LoadJSONL(path)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	if len(loaded.Claims) == 0 {
		return fmt.Errorf("no usable claims in %s", path)
	}

	fmt.Fprintf(os.Stderr, "Loaded %d claims (%d skipped)\n", len(loaded.Claims), loaded.Skipped)
	for _, perr := range loaded.ParseErrors {
		fmt.Fprintf(os.Stderr, "  parse error: %s\n", perr)
	}

	result := a.engine.BulkUpsert(ctx, loaded.Claims, !noProgress)

	fmt.Fprintf(os.Stderr, "\nIngested: %d  Errors: %d\n", result.SuccessCount, result.ErrorCount)
	if verbose {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
	}
	if outJSON {
		return printJSON(result)
	}
	return nil
}
