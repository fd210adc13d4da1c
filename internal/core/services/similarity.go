package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Ensure SimilarityService implements the interface.
var _ driving.SimilarityService = (*SimilarityService)(nil)

// importBatchSize bounds how many references are embedded per request.
const importBatchSize = 32

// SimilarityService embeds text and matches it against the reference corpus.
type SimilarityService struct {
	embedder driven.EmbeddingService
	index    driven.ReferenceIndex
	refs     driven.ReferenceStore
	now      func() time.Time
}

// NewSimilarityService creates a similarity service.
// refs is optional; without it imports only live in the index.
func NewSimilarityService(
	embedder driven.EmbeddingService,
	index driven.ReferenceIndex,
	refs driven.ReferenceStore,
) *SimilarityService {
	return &SimilarityService{
		embedder: embedder,
		index:    index,
		refs:     refs,
		now:      time.Now,
	}
}

// Available reports whether both embedding and search are configured.
func (s *SimilarityService) Available() bool {
	return s != nil && s.embedder != nil && s.index != nil
}

// Embed returns the embedding of text. Whitespace and control characters
// are normalised first, so equivalent text embeds identically.
func (s *SimilarityService) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	vec, err := s.embedder.Embed(ctx, embeddingText(text))
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

// Query returns up to k references scoring at least floor. Matches are
// ranked by descending score, ties broken by ascending reference ID.
func (s *SimilarityService) Query(ctx context.Context, vector []float32, floor float64, k int) ([]domain.SimilarityMatch, error) {
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}
	hits, err := s.index.Search(ctx, vector, k, floor)
	if err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})

	matches := make([]domain.SimilarityMatch, len(hits))
	for i, hit := range hits {
		matches[i] = domain.SimilarityMatch{
			ReferenceID: hit.ID,
			Score:       hit.Similarity,
			Rank:        i + 1,
		}
	}
	return matches, nil
}

// QueryContent embeds text and queries with the result.
func (s *SimilarityService) QueryContent(ctx context.Context, text string, floor float64, k int) ([]domain.SimilarityMatch, error) {
	vec, err := s.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, vec, floor, k)
}

// Check embeds an artifact and attaches its matches. The artifact is
// flagged duplicate when the best match reaches the duplicate threshold;
// it is never dropped.
func (s *SimilarityService) Check(ctx context.Context, artifact *domain.CandidateArtifact, params domain.SimilarityParams) error {
	if !s.Available() {
		return domain.ErrVectorIndexUnavailable
	}
	if params.EmbeddingModel != "" && params.EmbeddingModel != s.embedder.ModelName() {
		return fmt.Errorf("%w: configuration pins embedding model %q but %q is configured",
			domain.ErrProviderUnavailable, params.EmbeddingModel, s.embedder.ModelName())
	}

	if timeout := params.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	vec, err := s.Embed(ctx, artifact.Body)
	if err != nil {
		return err
	}
	// The duplicate decision must see the top match even when the display
	// floor sits above the duplicate threshold.
	matches, err := s.Query(ctx, vec, min(params.MatchFloor, params.DuplicateThreshold), params.TopK)
	if err != nil {
		return err
	}
	for i := range matches {
		matches[i].CandidateID = artifact.ID
	}

	artifact.Embedding = vec
	artifact.Duplicate = len(matches) > 0 && matches[0].Score >= params.DuplicateThreshold
	artifact.Matches = aboveFloor(matches, params.MatchFloor, artifact.Duplicate)
	if artifact.Duplicate {
		logger.Info("artifact %s flagged duplicate of %s (%.3f)",
			artifact.ID, matches[0].ReferenceID, matches[0].Score)
	}
	return nil
}

// aboveFloor trims ranked matches to those scoring at least floor. The top
// match of a duplicate is always kept so reviewers see what it duplicates.
func aboveFloor(matches []domain.SimilarityMatch, floor float64, duplicate bool) []domain.SimilarityMatch {
	n := 0
	for n < len(matches) && matches[n].Score >= floor {
		n++
	}
	if duplicate && n == 0 {
		n = 1
	}
	return matches[:n]
}

// Import embeds references that lack a current embedding, stores them and
// publishes them to the index.
func (s *SimilarityService) Import(ctx context.Context, refs []domain.Reference) (int, error) {
	if !s.Available() {
		return 0, domain.ErrVectorIndexUnavailable
	}
	if len(refs) == 0 {
		return 0, nil
	}

	refs, err := s.embedStale(ctx, refs)
	if err != nil {
		return 0, err
	}
	// The index rejects a bad batch as a whole; only accepted references are
	// stored, so Load never replays a batch the index refused.
	if err := s.index.Add(ctx, refs...); err != nil {
		return 0, fmt.Errorf("index references: %w", err)
	}
	if s.refs != nil {
		if err := s.refs.SaveReferences(ctx, refs); err != nil {
			return 0, fmt.Errorf("save references: %w", err)
		}
	}
	logger.Info("imported %d references (index size %d)", len(refs), s.index.Len())
	return len(refs), nil
}

// Load rebuilds the index from the reference store, re-embedding
// references stored under a different model.
func (s *SimilarityService) Load(ctx context.Context) (int, error) {
	if !s.Available() {
		return 0, domain.ErrVectorIndexUnavailable
	}
	if s.refs == nil {
		return 0, nil
	}
	refs, err := s.refs.ListReferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("list references: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	refreshed, err := s.embedStale(ctx, refs)
	if err != nil {
		return 0, err
	}
	if err := s.refs.SaveReferences(ctx, refreshed); err != nil {
		return 0, fmt.Errorf("save references: %w", err)
	}
	if err := s.index.Add(ctx, refreshed...); err != nil {
		return 0, fmt.Errorf("index references: %w", err)
	}
	logger.Debug("loaded %d references into the index", len(refreshed))
	return len(refreshed), nil
}

// Size returns the number of indexed references.
func (s *SimilarityService) Size() int {
	if s.index == nil {
		return 0
	}
	return s.index.Len()
}

// embedStale returns a copy of refs where every reference embedded by a
// different model, or not at all, carries a fresh embedding.
func (s *SimilarityService) embedStale(ctx context.Context, refs []domain.Reference) ([]domain.Reference, error) {
	model := s.embedder.ModelName()
	out := make([]domain.Reference, len(refs))
	copy(out, refs)

	var stale []int
	for i, ref := range out {
		if ref.Model != model || len(ref.Embedding) != s.embedder.Dimensions() {
			stale = append(stale, i)
		}
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = s.now()
		}
	}

	for start := 0; start < len(stale); start += importBatchSize {
		end := min(start+importBatchSize, len(stale))
		texts := make([]string, 0, end-start)
		for _, i := range stale[start:end] {
			texts = append(texts, embeddingText(out[i].Body))
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed references: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed references: got %d vectors for %d texts", len(vecs), len(texts))
		}
		for j, i := range stale[start:end] {
			out[i].Embedding = vecs[j]
			out[i].Model = model
		}
	}
	return out, nil
}

// embeddingText is the canonical form of text before embedding.
func embeddingText(text string) string {
	return strings.Join(strings.Fields(domain.CleanText(text)), " ")
}
