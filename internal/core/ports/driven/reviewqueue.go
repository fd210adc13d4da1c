package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// ReviewQueue hands candidate artifacts to the external review collaborator.
// Terminal disposition of duplicates is the reviewer's decision, so every
// artifact is pushed, flagged or not.
type ReviewQueue interface {
	// Push enqueues one review item.
	Push(ctx context.Context, item domain.ReviewItem) error

	// Close releases resources.
	Close() error
}
