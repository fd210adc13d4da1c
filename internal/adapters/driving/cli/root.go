// Package cli implements the ruleforge command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// version and commit are set at build time via ldflags.
var (
	version = "dev"
	commit  = ""
)

// Services wired by the composition root.
var (
	configService     driving.ConfigService
	pipelineService   driving.PipelineService
	newBatchService   func(workers int) driving.BatchService
	similarityService driving.SimilarityService
	settingsService   driving.SettingsService
	promptWatcher     driven.PromptWatcher
	reviewSpoolDir    string
)

// Services groups everything the commands depend on.
// Any field may be nil; commands that need a missing service report it.
type Services struct {
	Config     driving.ConfigService
	Pipeline   driving.PipelineService
	Batch      func(workers int) driving.BatchService
	Similarity driving.SimilarityService
	Settings   driving.SettingsService
	Prompts    driven.PromptWatcher

	// ReviewSpoolDir is set when the review queue is a file spool.
	ReviewSpoolDir string
}

var rootCmd = &cobra.Command{
	Use:   "ruleforge",
	Short: "Turn threat intelligence into reviewed detection rules",
	Long: `ruleforge runs content through a staged LLM pipeline: environment
detection, relevance filtering, ranking, parallel extraction, rule generation
and similarity de-duplication. Every run pins an immutable configuration
snapshot and records a per-stage confidence trail.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")   //nolint:errcheck // flag is always defined
		jsonLogs, _ := cmd.Flags().GetBool("log-json") //nolint:errcheck // flag is always defined
		logger.SetVerbose(verbose)
		logger.SetJSON(jsonLogs)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
}

// SetVersion sets the version and commit reported by the version command.
func SetVersion(v, c string) {
	version = v
	commit = c
}

// SetServices injects the services used by the commands.
func SetServices(s Services) {
	configService = s.Config
	pipelineService = s.Pipeline
	newBatchService = s.Batch
	similarityService = s.Similarity
	settingsService = s.Settings
	promptWatcher = s.Prompts
	reviewSpoolDir = s.ReviewSpoolDir
}

// Execute runs the root command. Cancelling ctx cancels in-flight runs.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
