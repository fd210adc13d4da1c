package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// ReferenceIndex provides nearest-neighbour search over the reference corpus.
// Searches observe a consistent snapshot; Add and Delete publish a new one.
// The pipeline only searches. Mutation belongs to the ingestion path.
type ReferenceIndex interface {
	// Search returns up to k references whose cosine similarity to query is
	// at least floor, ordered by descending similarity then ascending ID.
	Search(ctx context.Context, query []float32, k int, floor float64) ([]VectorHit, error)

	// Add inserts or replaces references. Each must carry an embedding.
	Add(ctx context.Context, refs ...domain.Reference) error

	// Delete removes a reference from the index.
	Delete(ctx context.Context, id string) error

	// Len returns the number of indexed references.
	Len() int

	// Dimensions returns the vector size, or zero while empty.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the matched reference.
	ID string

	// Similarity is the cosine similarity score.
	Similarity float64
}
