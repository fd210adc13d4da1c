package resilient

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// EmbeddingService retries and throttles another EmbeddingService.
type EmbeddingService struct {
	inner driven.EmbeddingService
	retry retrier
}

// NewEmbeddingService wraps inner. limiter may be nil.
func NewEmbeddingService(inner driven.EmbeddingService, policy Policy, limiter *RateLimiter) *EmbeddingService {
	return &EmbeddingService{
		inner: inner,
		retry: newRetrier("embedding "+inner.ModelName(), policy, limiter),
	}
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := s.retry.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = s.inner.Embed(ctx, text)
		return err
	})
	return out, err
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := s.retry.do(ctx, "embed batch", func(ctx context.Context) error {
		var err error
		out, err = s.inner.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping is not retried.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error {
	return s.inner.Close()
}
