package mcp

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
)

// mockSimilarityService is a mock implementation of driving.SimilarityService.
type mockSimilarityService struct {
	matches []domain.SimilarityMatch
	err     error

	lastText   string
	lastVector []float32
	lastFloor  float64
	lastK      int
}

func (m *mockSimilarityService) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, m.err
}

func (m *mockSimilarityService) Query(
	_ context.Context,
	vector []float32,
	floor float64,
	k int,
) ([]domain.SimilarityMatch, error) {
	m.lastVector, m.lastFloor, m.lastK = vector, floor, k
	return m.matches, m.err
}

func (m *mockSimilarityService) QueryContent(
	_ context.Context,
	text string,
	floor float64,
	k int,
) ([]domain.SimilarityMatch, error) {
	m.lastText, m.lastFloor, m.lastK = text, floor, k
	return m.matches, m.err
}

func (m *mockSimilarityService) Import(_ context.Context, refs []domain.Reference) (int, error) {
	return len(refs), m.err
}

func (m *mockSimilarityService) Load(_ context.Context) (int, error) {
	return 0, m.err
}

func (m *mockSimilarityService) Size() int {
	return 0
}

// mockConfigService is a mock implementation of driving.ConfigService.
type mockConfigService struct {
	versions []domain.ConfigurationVersion
	err      error
	restored []int64
}

func (m *mockConfigService) Save(_ context.Context, params domain.PipelineParams, note string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	id := int64(len(m.versions) + 1)
	m.versions = append(m.versions, domain.ConfigurationVersion{ID: id, Params: params, Note: note})
	return id, nil
}

func (m *mockConfigService) Get(_ context.Context, id int64) (*domain.ConfigurationVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.versions {
		if m.versions[i].ID == id {
			return &m.versions[i], nil
		}
	}
	return nil, domain.ErrConfigurationNotFound
}

func (m *mockConfigService) Latest(_ context.Context) (*domain.ConfigurationVersion, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.versions) == 0 {
		return nil, domain.ErrConfigurationNotFound
	}
	return &m.versions[len(m.versions)-1], nil
}

func (m *mockConfigService) Restore(ctx context.Context, id int64) (int64, error) {
	v, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	m.restored = append(m.restored, id)
	newID := int64(len(m.versions) + 1)
	m.versions = append(m.versions, domain.ConfigurationVersion{ID: newID, Params: v.Params, RestoredFrom: &id})
	return newID, nil
}

func (m *mockConfigService) List(_ context.Context) ([]domain.ConfigurationVersion, error) {
	return m.versions, m.err
}

func (m *mockConfigService) Defaults() (domain.PipelineParams, error) {
	return domain.DefaultPipelineParams(), nil
}

// mockPipelineService is a mock implementation of driving.PipelineService.
type mockPipelineService struct {
	runs []domain.PipelineRun
	err  error
}

func (m *mockPipelineService) Submit(
	_ context.Context,
	_ domain.ContentItem,
	_ int64,
) (*domain.PipelineRun, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockPipelineService) Cancel(_ string) bool {
	return false
}

func (m *mockPipelineService) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.runs {
		if m.runs[i].ID == id {
			return &m.runs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPipelineService) ListRuns(_ context.Context, limit int) ([]domain.PipelineRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.runs[:min(limit, len(m.runs))], nil
}

var (
	_ driving.SimilarityService = (*mockSimilarityService)(nil)
	_ driving.ConfigService     = (*mockConfigService)(nil)
	_ driving.PipelineService   = (*mockPipelineService)(nil)
)
