// Package markdown provides a Normaliser for Markdown write-ups. Formatting
// is removed but code is kept verbatim, since command lines, registry paths
// and hunt queries usually live in code spans and fenced blocks.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise returns a copy of item with Markdown formatting removed.
func (n *Normaliser) Normalise(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return item, err
	}
	out := item
	out.Metadata = make(map[string]string, len(item.Metadata)+2)
	for k, v := range item.Metadata {
		out.Metadata[k] = v
	}
	if title := extractTitle(item.Text); title != "" && out.Metadata["title"] == "" {
		out.Metadata["title"] = title
	}
	out.Metadata["format"] = "markdown"
	out.Text = plaintext.Clean(Strip(item.Text))
	return out, nil
}

// Pre-compiled expressions for the prose parts of a document.
var (
	images       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	links        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings     = regexp.MustCompile(`^#{1,6}\s+`)
	blockquote   = regexp.MustCompile(`^>\s?`)
	hr           = regexp.MustCompile(`^\s*([-*_]\s*){3,}$`)
	listMarkers  = regexp.MustCompile(`^(\s*)[-*+]\s+`)
	emphasis     = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	inlineCode   = regexp.MustCompile("`([^`]+)`")
	singleAsters = regexp.MustCompile(`(^|\s)\*(\S(?:[^*]*\S)?)\*`)
)

// extractTitle returns the first level one heading.
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// Strip removes Markdown syntax. Fenced code keeps its content and loses its
// fences; underscores are left alone outside of __bold__ markers.
func Strip(content string) string {
	lines := strings.Split(domain.CleanText(content), "\n")
	out := make([]string, 0, len(lines))
	fenced := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced {
			out = append(out, line)
			continue
		}
		if hr.MatchString(line) {
			out = append(out, "")
			continue
		}
		out = append(out, stripLine(line))
	}
	return strings.Join(out, "\n")
}

func stripLine(line string) string {
	line = blockquote.ReplaceAllString(line, "")
	line = headings.ReplaceAllString(line, "")
	line = listMarkers.ReplaceAllString(line, "$1")
	line = images.ReplaceAllString(line, "$1")
	line = links.ReplaceAllString(line, "$1")

	// Code spans are cut out before emphasis handling so their text stays verbatim.
	var spans []string
	line = inlineCode.ReplaceAllStringFunc(line, func(m string) string {
		spans = append(spans, m[1:len(m)-1])
		return "\x00"
	})
	line = emphasis.ReplaceAllString(line, "$2")
	line = singleAsters.ReplaceAllString(line, "$1$2")
	for _, span := range spans {
		line = strings.Replace(line, "\x00", span, 1)
	}
	return line
}
