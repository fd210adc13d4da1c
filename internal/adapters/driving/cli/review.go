package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ruleforge/internal/adapters/driven/reviewqueue"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect the review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts handed to the file review queue",
	Long: `List the artifacts waiting in the file review queue, oldest first.

Only the file spool can be read back; object-store queues are consumed by
their own reviewers.`,
	RunE: runReviewList,
}

func init() {
	reviewListCmd.Flags().Bool("json", false, "print items as JSON lines")
	reviewCmd.AddCommand(reviewListCmd)
	rootCmd.AddCommand(reviewCmd)
}

func runReviewList(cmd *cobra.Command, _ []string) error {
	if reviewSpoolDir == "" {
		return errors.New("review queue is not a file spool")
	}
	asJSON, _ := cmd.Flags().GetBool("json") //nolint:errcheck // flag is defined in init

	items, err := reviewqueue.ReadSpool(reviewSpoolDir)
	if err != nil {
		return fmt.Errorf("failed to read review queue: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, item := range items {
			if err := enc.Encode(item); err != nil {
				return err
			}
		}
		return nil
	}

	if len(items) == 0 {
		cmd.Println("Review queue is empty.")
		return nil
	}
	for _, item := range items {
		mark := " "
		if item.Duplicate {
			mark = "D"
		}
		cmd.Printf("%s %s  %s  (run %s, content %s, config v%d)\n",
			mark, item.ArtifactID, item.Title,
			item.Provenance.RunID, item.Provenance.ContentID, item.Provenance.ConfigVersion)
	}
	cmd.Printf("\n%d item(s)\n", len(items))
	return nil
}
