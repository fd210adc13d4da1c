package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
)

// Params file formats.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pipeline configuration versions",
	Long: `Pipeline parameters live in immutable, numbered configuration versions.
Saving or restoring never changes an existing version; it appends a new one.
Runs pin the version they started with.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration versions",
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get [version]",
	Short: "Print a configuration version (default latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigGet,
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default parameters",
	RunE:  runConfigDefaults,
}

var configSaveCmd = &cobra.Command{
	Use:   "save [file]",
	Short: "Save parameters from a YAML or JSON file as a new version",
	Long: `Validate parameters from a file and save them as a new version.
The format follows the file extension unless --format is given.
Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigSave,
}

var configRestoreCmd = &cobra.Command{
	Use:   "restore [version]",
	Short: "Restore an earlier version as a new version",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigRestore,
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Save a new version whenever a prompt file changes",
	Long: `Watch the prompt directory and save a new configuration version each
time a stage prompt is edited. The new version is the latest version with
that one prompt replaced. Runs already in flight are unaffected.`,
	RunE: runConfigWatch,
}

func init() {
	for _, c := range []*cobra.Command{configGetCmd, configDefaultsCmd} {
		c.Flags().String("format", formatYAML, "output format (yaml or json)")
		c.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	}
	configSaveCmd.Flags().String("format", "", "input format (yaml or json)")
	configSaveCmd.Flags().StringP("note", "m", "", "note stored with the version")

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configDefaultsCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configRestoreCmd)
	configCmd.AddCommand(configWatchCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if configService == nil {
		return errors.New("config service not configured")
	}

	versions, err := configService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		cmd.Println("No configuration versions. The first run saves the defaults.")
		return nil
	}

	for _, v := range versions {
		note := v.Note
		if v.RestoredFrom != nil {
			note = strings.TrimSpace(fmt.Sprintf("restored from v%d %s", *v.RestoredFrom, note))
		}
		cmd.Printf("v%-4d %s  %s\n", v.ID, v.CreatedAt.Local().Format("2006-01-02 15:04:05"), note)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configService == nil {
		return errors.New("config service not configured")
	}

	var v *domain.ConfigurationVersion
	var err error
	if len(args) == 0 {
		v, err = configService.Latest(cmd.Context())
	} else {
		var id int64
		id, err = parseVersion(args[0])
		if err != nil {
			return err
		}
		v, err = configService.Get(cmd.Context(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	return writeParams(cmd, v.Params)
}

func runConfigDefaults(cmd *cobra.Command, _ []string) error {
	if configService == nil {
		return errors.New("config service not configured")
	}
	params, err := configService.Defaults()
	if err != nil {
		return err
	}
	return writeParams(cmd, params)
}

func runConfigSave(cmd *cobra.Command, args []string) error {
	if configService == nil {
		return errors.New("config service not configured")
	}
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag is defined in init
	note, _ := cmd.Flags().GetString("note")     //nolint:errcheck // flag is defined in init

	var data []byte
	var err error
	if args[0] == stdinName {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading params: %w", err)
	}
	if format == "" {
		format = formatOf(args[0])
	}

	params, err := decodeParams(data, format)
	if err != nil {
		return err
	}
	id, err := configService.Save(cmd.Context(), params, note)
	if err != nil {
		return fmt.Errorf("failed to save params: %w", err)
	}
	cmd.Printf("Saved configuration v%d\n", id)
	return nil
}

func runConfigRestore(cmd *cobra.Command, args []string) error {
	if configService == nil {
		return errors.New("config service not configured")
	}
	id, err := parseVersion(args[0])
	if err != nil {
		return err
	}
	newID, err := configService.Restore(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to restore v%d: %w", id, err)
	}
	cmd.Printf("Restored v%d as v%d\n", id, newID)
	return nil
}

func runConfigWatch(cmd *cobra.Command, _ []string) error {
	if configService == nil {
		return errors.New("config service not configured")
	}
	if promptWatcher == nil {
		return errors.New("prompt directory not configured")
	}

	ctx := cmd.Context()
	cmd.Println("Watching prompt files. Press Ctrl-C to stop.")
	return promptWatcher.Watch(ctx, func(name string) {
		id, changed, err := snapshotPrompt(ctx, configService, name)
		switch {
		case err != nil:
			cmd.PrintErrf("prompt %s: %v\n", name, err)
		case changed:
			cmd.Printf("prompt %s changed: saved v%d\n", name, id)
		default:
			cmd.Printf("prompt %s: no stage change\n", name)
		}
	})
}

// snapshotPrompt saves the latest version with the stored template of one
// stage replaced. Prompts that belong to no stage are ignored.
func snapshotPrompt(ctx context.Context, configs driving.ConfigService, name string) (int64, bool, error) {
	kind := domain.StageKind(name)
	if !kind.UsesModel() {
		return 0, false, nil
	}

	defaults, err := configs.Defaults()
	if err != nil {
		return 0, false, err
	}
	latest, err := configs.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		id, err := configs.Save(ctx, defaults, "initial defaults")
		return id, err == nil, err
	}
	if err != nil {
		return 0, false, err
	}

	prompt := defaults.Stage(kind).Prompt
	params := latest.Params
	params.Stages = maps.Clone(latest.Params.Stages)
	sp := params.Stages[kind]
	if sp.Prompt == prompt {
		return latest.ID, false, nil
	}
	sp.Prompt = prompt
	params.Stages[kind] = sp

	id, err := configs.Save(ctx, params, fmt.Sprintf("prompt %s edited", name))
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func parseVersion(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "v"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: version must be a positive number, got %q", domain.ErrInvalidInput, s)
	}
	return id, nil
}

func formatOf(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return formatJSON
	}
	return formatYAML
}

func encodeParams(params domain.PipelineParams, format string) ([]byte, error) {
	switch format {
	case formatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(params); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case formatJSON:
		data, err := json.MarshalIndent(params, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, format)
	}
}

// decodeParams rejects unknown fields so a typo cannot silently fall back
// to a zero value.
func decodeParams(data []byte, format string) (domain.PipelineParams, error) {
	var params domain.PipelineParams
	switch format {
	case formatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&params); err != nil {
			return params, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	case formatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			return params, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	default:
		return params, fmt.Errorf("%w: unknown format %q", domain.ErrInvalidInput, format)
	}
	return params, nil
}

func writeParams(cmd *cobra.Command, params domain.PipelineParams) error {
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag is defined in init
	output, _ := cmd.Flags().GetString("output") //nolint:errcheck // flag is defined in init

	data, err := encodeParams(params, format)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	cmd.Printf("Wrote %s\n", output)
	return nil
}
