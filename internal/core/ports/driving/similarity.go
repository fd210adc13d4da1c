package driving

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// SimilarityService embeds text and queries the reference corpus.
type SimilarityService interface {
	// Embed returns the embedding of text under the configured model.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Query returns up to k references scoring at least floor, best first.
	Query(ctx context.Context, vector []float32, floor float64, k int) ([]domain.SimilarityMatch, error)

	// QueryContent embeds text and queries with the result.
	QueryContent(ctx context.Context, text string, floor float64, k int) ([]domain.SimilarityMatch, error)

	// Import embeds and stores references, then publishes them to the index.
	// Returns the number of references imported.
	Import(ctx context.Context, refs []domain.Reference) (int, error)

	// Load rebuilds the index from the reference store.
	Load(ctx context.Context) (int, error)

	// Size returns the number of indexed references.
	Size() int
}
