// Package plaintext provides the fallback Normaliser. It cleans control
// characters and line endings and trims trailing whitespace.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text and anything no other normaliser claims.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns nil: this is the fallback normaliser.
func (n *Normaliser) SupportedMIMETypes() []string {
	return nil
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise returns a copy of item with cleaned text.
func (n *Normaliser) Normalise(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return item, err
	}
	out := item
	out.Metadata = copyMetadata(item.Metadata)
	out.Text = Clean(item.Text)
	return out, nil
}

// Clean strips control characters, trims trailing spaces on every line and
// collapses runs of blank lines to one.
func Clean(s string) string {
	lines := strings.Split(domain.CleanText(s), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// copyMetadata creates a shallow copy of metadata.
func copyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
