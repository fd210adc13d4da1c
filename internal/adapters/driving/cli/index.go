package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the reference rule corpus",
}

var indexImportCmd = &cobra.Command{
	Use:   "import [path...]",
	Short: "Import reference rules into the similarity index",
	Long: `Import YAML detection rules into the reference corpus.

Each path is a rule file or a directory searched for *.yml and *.yaml files.
A file may hold several rules separated by "---". A rule's id field names the
reference; rules without one are named after their file. Rules are embedded
with the configured embedding provider; re-importing a rule replaces it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexImport,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how many references are indexed",
	RunE:  runIndexStatus,
}

func init() {
	indexCmd.AddCommand(indexImportCmd)
	indexCmd.AddCommand(indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexImport(cmd *cobra.Command, args []string) error {
	if similarityService == nil {
		return errors.New("similarity service not configured")
	}

	files, err := ruleFiles(args)
	if err != nil {
		return err
	}

	var refs []domain.Reference
	for _, path := range files {
		got, err := readReferences(path)
		if err != nil {
			return err
		}
		refs = append(refs, got...)
	}
	if len(refs) == 0 {
		cmd.Println("No rules found.")
		return nil
	}

	n, err := similarityService.Import(cmd.Context(), refs)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	cmd.Printf("Imported %d reference(s) from %d file(s). Index holds %d.\n", n, len(files), similarityService.Size())
	return nil
}

func runIndexStatus(cmd *cobra.Command, _ []string) error {
	if similarityService == nil {
		return errors.New("similarity service not configured")
	}
	cmd.Printf("References indexed: %d\n", similarityService.Size())
	return nil
}

// ruleFiles expands directories into the YAML files they contain.
func ruleFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isRuleFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}
	return files, nil
}

func isRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// isEmptyDocument reports documents with no content, such as the one a
// trailing "---" produces.
func isEmptyDocument(node *yaml.Node) bool {
	if len(node.Content) == 0 {
		return true
	}
	root := node.Content[0]
	return root.Kind == yaml.ScalarNode && root.Tag == "!!null"
}

// readReferences parses every YAML document in path as a detection rule.
func readReferences(path string) ([]domain.Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var refs []domain.Reference
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i+1, err)
		}
		if isEmptyDocument(&node) {
			continue
		}

		body, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i+1, err)
		}
		rule, err := stages.ParseRule(string(body))
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i+1, err)
		}

		var meta struct {
			ID string `yaml:"id"`
		}
		if err := node.Decode(&meta); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i+1, err)
		}
		id := strings.TrimSpace(meta.ID)
		if id == "" {
			id = base
			if i > 0 {
				id = fmt.Sprintf("%s-%d", base, i+1)
			}
		}

		refs = append(refs, domain.Reference{ID: id, Title: rule.Title, Body: rule.Body})
	}
	return refs, nil
}
