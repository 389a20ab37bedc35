package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verimem/internal/model"
)

var verifyTimeout time.Duration

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim>",
	Short: "Verify a single claim against memory and live sources",
	Long: `Verify runs a claim through the full pipeline:
- Normalize the claim into canonical form
- Retrieve similar verified claims from memory
- On a cache miss, search the web for fact-checking context
- Produce a verdict (True / False / Uncertain) with confidence
- Store the result so repeated claims are answered from memory

Example:
  verimem verify "Vaccines cause autism in children"
  verimem verify "The Earth is flat" --json
  verimem verify "5G towers spread viruses" --verbose`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute, "overall verification timeout")
}

func runVerify(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Verifying: %s\n\n", claim)
	}

	resp, err := a.pipeline.Verify(ctx, model.VerifyRequest{RawText: claim})
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	if outJSON {
		return printJSON(resp)
	}
	printVerifyResponse(resp)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerifyResponse(resp *model.VerifyResponse) {
	v := resp.Verification

	fmt.Printf("Claim:      %s\n", v.ClaimText)
	if v.NormalizedClaim != v.ClaimText {
		fmt.Printf("Normalized: %s\n", v.NormalizedClaim)
	}
	fmt.Printf("Verdict:    %s (%.0f%% confidence)\n", v.Verdict, v.Confidence*100)
	fmt.Printf("Source:     ")
	switch {
	case resp.CacheHit:
		fmt.Printf("memory cache\n")
	case resp.WebSearchUsed:
		fmt.Printf("memory + live web search\n")
	default:
		fmt.Printf("memory\n")
	}
	fmt.Printf("\n%s\n", v.Explanation)

	if v.EvidenceSummary != "" {
		fmt.Printf("\nEvidence: %s\n", v.EvidenceSummary)
	}
	if verbose && len(resp.Evidence) > 0 {
		fmt.Printf("\nTop matches:\n")
		for _, ev := range resp.Evidence {
			fmt.Printf("  %.2f  [%s]  %s (seen %dx)\n", ev.SimilarityScore, ev.Verdict, ev.ClaimText, ev.SeenCount)
		}
	}

	fmt.Printf("\nMemory: %s (%s)\n", resp.Memory.Action, resp.Memory.Message)
	if len(resp.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "\nDegraded stages:\n")
		for _, e := range resp.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
	}
}
