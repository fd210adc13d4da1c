package html

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MetadataTitle is set from <title> when the item carries no title.
const MetadataTitle = "title"

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// removed lists elements whose text is never content.
const removed = "script, style, noscript, svg, head, template, iframe, nav, footer, form"

// blocks are elements that start a new line.
var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "section": true, "article": true,
	"ul": true, "ol": true, "dt": true, "dd": true, "header": true, "main": true,
}

// Normalise returns a copy of item with HTML reduced to readable text.
func (n *Normaliser) Normalise(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return item, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Text))
	if err != nil {
		return item, fmt.Errorf("%w: parse html: %v", domain.ErrInvalidInput, err)
	}

	out := item
	out.Metadata = make(map[string]string, len(item.Metadata)+2)
	for k, v := range item.Metadata {
		out.Metadata[k] = v
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" && out.Metadata[MetadataTitle] == "" {
		out.Metadata[MetadataTitle] = title
	}
	out.Metadata["format"] = "html"

	doc.Find(removed).Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	for _, node := range root.Nodes {
		render(&b, node, false)
	}
	out.Text = plaintext.Clean(b.String())
	return out, nil
}

// render writes the text of node. Whitespace inside <pre> is kept as is.
func render(b *strings.Builder, node *xhtml.Node, pre bool) {
	switch node.Type {
	case xhtml.TextNode:
		if pre {
			b.WriteString(node.Data)
			return
		}
		words := strings.Fields(node.Data)
		if len(words) == 0 {
			space(b)
			return
		}
		if startsWithSpace(node.Data) {
			space(b)
		}
		b.WriteString(strings.Join(words, " "))
		if endsWithSpace(node.Data) {
			space(b)
		}
		return
	case xhtml.ElementNode:
		if node.Data == "pre" {
			pre = true
		}
		if blocks[node.Data] {
			newline(b)
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		render(b, child, pre)
	}
	if node.Type == xhtml.ElementNode && blocks[node.Data] {
		newline(b)
	}
}

// space writes one separating space unless the output is at a line start
// or already ends in one.
func space(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	if last := b.String()[b.Len()-1]; last != ' ' && last != '\n' {
		b.WriteByte(' ')
	}
}

// newline ends the current line unless it is already empty.
func newline(b *strings.Builder) {
	if b.Len() > 0 && b.String()[b.Len()-1] != '\n' {
		b.WriteByte('\n')
	}
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}
