package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

var runCmd = &cobra.Command{
	Use:   "run [file...]",
	Short: "Run content through the pipeline",
	Long: `Run one or more content items through the pipeline and print each
run's outcome with its confidence trail.

Each file is either a JSON object {"id", "text", "metadata"}, a JSON array of
such objects, or raw text. HTML and Markdown files are normalised before
analysis. With no file, or "-", content is read from stdin.

Several items run concurrently with --workers workers; every run in a batch
pins the same configuration version.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int64P("config", "c", 0, "configuration version (0 = latest)")
	runCmd.Flags().IntP("workers", "w", 0, "concurrent runs for batches (0 = from settings)")
	runCmd.Flags().Bool("json", false, "print runs as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	configVersion, _ := cmd.Flags().GetInt64("config") //nolint:errcheck // flag is defined in init
	workers, _ := cmd.Flags().GetInt("workers")        //nolint:errcheck // flag is defined in init
	asJSON, _ := cmd.Flags().GetBool("json")           //nolint:errcheck // flag is defined in init

	items, err := readContent(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var runs []*domain.PipelineRun
	if len(items) == 1 || newBatchService == nil {
		for _, item := range items {
			run, err := pipelineService.Submit(cmd.Context(), item, configVersion)
			if err != nil {
				return fmt.Errorf("running %s: %w", displayID(item), err)
			}
			runs = append(runs, run)
		}
	} else {
		runs, err = newBatchService(workers).RunAll(cmd.Context(), items, configVersion)
		if err != nil {
			return fmt.Errorf("running batch: %w", err)
		}
	}

	if asJSON {
		return writeRunsJSON(cmd.OutOrStdout(), runs)
	}
	for i, run := range runs {
		if i > 0 {
			cmd.Println()
		}
		if run == nil {
			cmd.Printf("%s: not started (see log)\n", displayID(items[i]))
			continue
		}
		printRun(cmd, run)
	}
	return nil
}

func displayID(item domain.ContentItem) string {
	if item.ID == "" {
		return "stdin"
	}
	return item.ID
}

// runJSON is the JSON form of a run.
type runJSON struct {
	ID            string                   `json:"id"`
	ContentID     string                   `json:"content_id"`
	ConfigVersion int64                    `json:"config_version"`
	Status        domain.RunStatus         `json:"status"`
	Reason        string                   `json:"reason,omitempty"`
	Trail         []domain.StageConfidence `json:"confidence_trail"`
	Artifacts     []artifactJSON           `json:"artifacts"`
}

type artifactJSON struct {
	ID        string                   `json:"id"`
	Title     string                   `json:"title"`
	Body      string                   `json:"body"`
	Duplicate bool                     `json:"duplicate"`
	Matches   []domain.SimilarityMatch `json:"matches,omitempty"`
}

func toRunJSON(run *domain.PipelineRun) runJSON {
	out := runJSON{
		ID:            run.ID,
		ContentID:     run.Content.ID,
		ConfigVersion: run.ConfigVersion,
		Status:        run.Status,
		Reason:        run.Reason.String(),
		Trail:         run.ConfidenceTrail(),
		Artifacts:     make([]artifactJSON, len(run.Artifacts)),
	}
	for i, a := range run.Artifacts {
		out.Artifacts[i] = artifactJSON{ID: a.ID, Title: a.Title, Body: a.Body, Duplicate: a.Duplicate, Matches: a.Matches}
	}
	return out
}

func writeRunsJSON(w io.Writer, runs []*domain.PipelineRun) error {
	out := make([]*runJSON, len(runs))
	for i, run := range runs {
		if run != nil {
			r := toRunJSON(run)
			out[i] = &r
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printRun prints a run summary followed by its confidence trail and artifacts.
func printRun(cmd *cobra.Command, run *domain.PipelineRun) {
	cmd.Printf("Run %s\n", run.ID)
	cmd.Printf("  Content: %s\n", run.Content.ID)
	cmd.Printf("  Config:  v%d\n", run.ConfigVersion)
	cmd.Printf("  Status:  %s\n", run.Status)
	if reason := run.Reason.String(); reason != "" {
		cmd.Printf("  Reason:  %s\n", reason)
	}

	trail := run.ConfidenceTrail()
	if len(trail) > 0 {
		cmd.Println()
		cmd.Println("  Stage                     Attempt  Status   Confidence")
		for _, c := range trail {
			conf := "-"
			if c.Confidence != nil {
				conf = fmt.Sprintf("%.2f", *c.Confidence)
			}
			cmd.Printf("  %-25s %7d  %-8s %s\n", c.Stage, c.Attempt, c.Status, conf)
		}
	}

	if len(run.Artifacts) == 0 {
		return
	}
	cmd.Println()
	cmd.Printf("  Artifacts (%d):\n", len(run.Artifacts))
	for _, a := range run.Artifacts {
		line := fmt.Sprintf("    - %s", a.Title)
		if top, ok := a.TopMatch(); ok {
			if a.Duplicate {
				line += fmt.Sprintf(" [duplicate of %s, %.2f]", top.ReferenceID, top.Score)
			} else {
				line += fmt.Sprintf(" [closest %s, %.2f]", top.ReferenceID, top.Score)
			}
		}
		cmd.Println(line)
	}
}
