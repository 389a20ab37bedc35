package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verimem/internal/model"
)

var statsTop int

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show claim memory statistics",
	Long: `Stats summarizes the claim memory: total stored claims, verdict
distribution, seen-count aggregates, and the most frequently resubmitted
claims.

Example:
  verimem stats
  verimem stats --top 20 --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsTop, "top", 10, "number of top claims to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	stats, err := a.engine.Stats(ctx, statsTop)
	if err != nil {
		return fmt.Errorf("collect stats: %w", err)
	}

	if outJSON {
		return printJSON(stats)
	}

	fmt.Printf("Total claims:   %d\n", stats.TotalClaims)
	fmt.Printf("Verdicts:       True: %d  False: %d  Uncertain: %d\n",
		stats.Verdicts[model.VerdictTrue], stats.Verdicts[model.VerdictFalse], stats.Verdicts[model.VerdictUncertain])
	fmt.Printf("Seen counts:    avg %.1f, max %d\n", stats.AvgSeenCount, stats.MaxSeenCount)

	if len(stats.TopClaims) > 0 {
		fmt.Printf("\nMost seen claims:\n")
		for _, rec := range stats.TopClaims {
			fmt.Printf("  %3dx  [%s]  %s\n", rec.SeenCount, rec.Verdict, rec.ClaimText)
		}
	}
	return nil
}
