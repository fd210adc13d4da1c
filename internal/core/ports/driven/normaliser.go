package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// MetadataContentType is the content item metadata key holding the MIME type.
const MetadataContentType = "content_type"

// Normaliser turns submitted content into the plain text the stages analyse.
// Each normaliser handles specific MIME types (e.g., HTML, Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	// An empty slice marks a fallback normaliser.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// MIME-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise returns a copy of item with normalised text.
	Normalise(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error)
}
