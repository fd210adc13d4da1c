package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// stdinName selects standard input as a content source.
const stdinName = "-"

// contentTypes maps file extensions to the MIME types the normalisers understand.
var contentTypes = map[string]string{
	".html":     "text/html",
	".htm":      "text/html",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
}

// readContent loads content items from files, or from stdin when no file
// is named. A JSON file holds one {id, text, metadata} object or an array
// of them; anything else is taken as the text of a single item.
func readContent(stdin io.Reader, names []string) ([]domain.ContentItem, error) {
	if len(names) == 0 {
		names = []string{stdinName}
	}

	var items []domain.ContentItem
	for _, name := range names {
		var data []byte
		var err error
		if name == stdinName {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		got, err := parseContent(name, data)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}
	return items, nil
}

func parseContent(name string, data []byte) ([]domain.ContentItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, name)
	}

	switch trimmed[0] {
	case '{':
		var item domain.ContentItem
		if err := json.Unmarshal(trimmed, &item); err == nil && item.Text != "" {
			return []domain.ContentItem{withDefaultID(item, name, 0)}, nil
		}
	case '[':
		var items []domain.ContentItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, name, err)
		}
		for i := range items {
			if items[i].Text == "" {
				return nil, fmt.Errorf("%w: %s: item %d has no text", domain.ErrInvalidInput, name, i)
			}
			items[i] = withDefaultID(items[i], name, i)
		}
		return items, nil
	}

	item := domain.ContentItem{Text: string(data)}
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		item.Metadata = map[string]string{driven.MetadataContentType: ct}
	}
	return []domain.ContentItem{withDefaultID(item, name, 0)}, nil
}

// withDefaultID names items after their file. Stdin items are left for
// the orchestrator to name.
func withDefaultID(item domain.ContentItem, name string, index int) domain.ContentItem {
	if item.ID != "" || name == stdinName {
		return item
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if index > 0 {
		base = fmt.Sprintf("%s-%d", base, index)
	}
	item.ID = base
	return item
}
