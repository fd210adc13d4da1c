package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// NormaliserRegistry selects the appropriate normaliser for a content item.
type NormaliserRegistry interface {
	// Normalise transforms an item using the best matching normaliser.
	Normalise(ctx context.Context, item domain.ContentItem) (domain.ContentItem, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string
}
