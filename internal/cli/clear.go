package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var clearForce bool

// clearCmd represents the clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all claims from memory",
	Long: `Clear drops and recreates the claim collection, removing every stored
claim. This cannot be undone.

Example:
  verimem clear          # asks for confirmation
  verimem clear --force  # skips confirmation`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <claim-id>",
	Short: "Delete a single claim by id",
	Long: `Delete removes one claim record from memory by its id (shown in
verify output and stats).

Example:
  verimem delete 3f2b8c1e-9a4d-4c6f-8e71-2d5a9b0c4e13`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(deleteCmd)

	clearCmd.Flags().BoolVar(&clearForce, "force", false, "skip the confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	count, err := a.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count claims: %w", err)
	}

	if !clearForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete %d claims from %q. Type 'yes' to continue: ",
			count, a.cfg.Qdrant.Collection)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	if err := a.engine.Clear(ctx); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Cleared %d claims.\n", count)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	if err := a.engine.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Deleted claim %s.\n", id)
	return nil
}
