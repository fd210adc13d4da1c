package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Fallbacks when no configuration version exists yet.
const (
	fallbackFloor = 0.5
	fallbackTopK  = 5
)

var similarCmd = &cobra.Command{
	Use:   "similar [text]",
	Short: "Find reference rules similar to a text",
	Long: `Embed a text and rank the reference corpus by cosine similarity.

The text is taken from the argument, from --file, or from stdin. Threshold
and result count default to the latest configuration version.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().StringP("file", "f", "", "read the text from a file")
	similarCmd.Flags().Float64P("threshold", "t", -1, "minimum similarity in [0,1] (default from config)")
	similarCmd.Flags().IntP("top", "k", 0, "maximum matches (default from config)")
	similarCmd.Flags().Bool("json", false, "print matches as JSON")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	if similarityService == nil {
		return errors.New("similarity service not configured")
	}

	file, _ := cmd.Flags().GetString("file")            //nolint:errcheck // flag is defined in init
	threshold, _ := cmd.Flags().GetFloat64("threshold") //nolint:errcheck // flag is defined in init
	k, _ := cmd.Flags().GetInt("top")                   //nolint:errcheck // flag is defined in init
	asJSON, _ := cmd.Flags().GetBool("json")            //nolint:errcheck // flag is defined in init

	text, err := similarText(cmd.InOrStdin(), args, file)
	if err != nil {
		return err
	}

	floor, topK := similarDefaults(cmd)
	if threshold >= 0 {
		floor = threshold
	}
	if k > 0 {
		topK = k
	}

	matches, err := similarityService.QueryContent(cmd.Context(), text, floor, topK)
	if err != nil {
		return fmt.Errorf("similarity query failed: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}
	if len(matches) == 0 {
		cmd.Printf("No references at or above %.2f.\n", floor)
		return nil
	}
	for _, m := range matches {
		cmd.Printf("%2d. %.4f  %s\n", m.Rank, m.Score, m.ReferenceID)
	}
	return nil
}

func similarText(stdin io.Reader, args []string, file string) (string, error) {
	var data []byte
	var err error
	switch {
	case len(args) == 1 && args[0] != stdinName:
		return args[0], nil
	case file != "":
		data, err = os.ReadFile(file)
	default:
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("no text to compare")
	}
	return text, nil
}

func similarDefaults(cmd *cobra.Command) (float64, int) {
	if configService == nil {
		return fallbackFloor, fallbackTopK
	}
	latest, err := configService.Latest(cmd.Context())
	if err != nil || latest.Params.Similarity.TopK <= 0 {
		return fallbackFloor, fallbackTopK
	}
	return latest.Params.Similarity.MatchFloor, latest.Params.Similarity.TopK
}
