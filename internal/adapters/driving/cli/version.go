package cli

import (
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		if commit == "" {
			cmd.Printf("ruleforge version %s\n", version)
		} else {
			cmd.Printf("ruleforge version %s (%s)\n", version, commit)
		}
		verbose, _ := cmd.Flags().GetBool("verbose") //nolint:errcheck // persistent flag
		if verbose {
			cmd.Printf("go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
