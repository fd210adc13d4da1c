package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a run with its confidence trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().IntP("limit", "n", 20, "maximum runs to list")
	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	limit, _ := cmd.Flags().GetInt("limit") //nolint:errcheck // flag is defined in init

	runs, err := pipelineService.ListRuns(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	for i := range runs {
		r := &runs[i]
		cmd.Printf("%s  %-9s v%-3d %-24s %s\n",
			r.ID, r.Status, r.ConfigVersion, r.Content.ID, runOutcome(r))
	}
	return nil
}

// runOutcome is a one-line summary of why a run ended where it did.
func runOutcome(r *domain.PipelineRun) string {
	if r.Status == domain.RunCompleted {
		dup := 0
		for _, a := range r.Artifacts {
			if a.Duplicate {
				dup++
			}
		}
		return fmt.Sprintf("%d artifacts, %d duplicate", len(r.Artifacts), dup)
	}
	return r.Reason.String()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}
	asJSON, _ := cmd.Flags().GetBool("json") //nolint:errcheck // flag is defined in init

	run, err := pipelineService.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if asJSON {
		return writeRunsJSON(cmd.OutOrStdout(), []*domain.PipelineRun{run})
	}
	printRun(cmd, run)
	return nil
}
