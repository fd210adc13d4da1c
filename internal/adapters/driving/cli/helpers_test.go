package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
)

// execute runs the root command with args and returns everything it printed.
// Flags are reset first because cobra keeps their values between executions.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue) //nolint:errcheck // defaults always parse
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// withServices installs s for the duration of the test.
func withServices(t *testing.T, s Services) {
	t.Helper()
	previous := Services{
		Config:         configService,
		Pipeline:       pipelineService,
		Batch:          newBatchService,
		Similarity:     similarityService,
		Settings:       settingsService,
		Prompts:        promptWatcher,
		ReviewSpoolDir: reviewSpoolDir,
	}
	SetServices(s)
	t.Cleanup(func() { SetServices(previous) })
}

// ==================== Mocks ====================

// mockConfigService is a mock implementation of driving.ConfigService.
type mockConfigService struct {
	mu       sync.Mutex
	versions []domain.ConfigurationVersion
	err      error
	saved    []domain.PipelineParams
	notes    []string
}

func (m *mockConfigService) Save(_ context.Context, params domain.PipelineParams, note string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if err := params.Validate(); err != nil {
		return 0, err
	}
	id := int64(len(m.versions) + 1)
	m.versions = append(m.versions, domain.ConfigurationVersion{ID: id, Params: params, Note: note})
	m.saved = append(m.saved, params)
	m.notes = append(m.notes, note)
	return id, nil
}

func (m *mockConfigService) Get(_ context.Context, id int64) (*domain.ConfigurationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.versions {
		if m.versions[i].ID == id {
			v := m.versions[i]
			return &v, nil
		}
	}
	return nil, domain.ErrConfigurationNotFound
}

func (m *mockConfigService) Latest(_ context.Context) (*domain.ConfigurationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if len(m.versions) == 0 {
		return nil, domain.ErrConfigurationNotFound
	}
	v := m.versions[len(m.versions)-1]
	return &v, nil
}

func (m *mockConfigService) Restore(ctx context.Context, id int64) (int64, error) {
	v, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newID := int64(len(m.versions) + 1)
	m.versions = append(m.versions, domain.ConfigurationVersion{ID: newID, Params: v.Params, RestoredFrom: &id})
	return newID, nil
}

func (m *mockConfigService) List(_ context.Context) ([]domain.ConfigurationVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions, m.err
}

func (m *mockConfigService) Defaults() (domain.PipelineParams, error) {
	return domain.DefaultPipelineParams(), nil
}

// mockPipelineService is a mock implementation of driving.PipelineService.
type mockPipelineService struct {
	mu        sync.Mutex
	submitted []domain.ContentItem
	versions  []int64
	runs      []domain.PipelineRun
	result    func(item domain.ContentItem) *domain.PipelineRun
	err       error
}

func (m *mockPipelineService) Submit(
	_ context.Context,
	item domain.ContentItem,
	version int64,
) (*domain.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, item)
	m.versions = append(m.versions, version)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result(item), nil
	}
	return &domain.PipelineRun{
		ID:            "run-" + item.ID,
		Content:       domain.ContentRef{ID: item.ID},
		ConfigVersion: max(version, 1),
		Status:        domain.RunCompleted,
	}, nil
}

func (m *mockPipelineService) Cancel(_ string) bool {
	return false
}

func (m *mockPipelineService) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
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

// mockBatchService is a mock implementation of driving.BatchService.
type mockBatchService struct {
	workers  int
	pipeline *mockPipelineService
}

func (m *mockBatchService) RunAll(
	ctx context.Context,
	items []domain.ContentItem,
	version int64,
) ([]*domain.PipelineRun, error) {
	runs := make([]*domain.PipelineRun, len(items))
	for i, item := range items {
		run, err := m.pipeline.Submit(ctx, item, version)
		if err != nil {
			continue
		}
		runs[i] = run
	}
	return runs, nil
}

// mockSimilarityService is a mock implementation of driving.SimilarityService.
type mockSimilarityService struct {
	matches  []domain.SimilarityMatch
	err      error
	imported []domain.Reference
	size     int

	lastText  string
	lastFloor float64
	lastK     int
}

func (m *mockSimilarityService) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, m.err
}

func (m *mockSimilarityService) Query(
	_ context.Context,
	_ []float32,
	floor float64,
	k int,
) ([]domain.SimilarityMatch, error) {
	m.lastFloor, m.lastK = floor, k
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
	if m.err != nil {
		return 0, m.err
	}
	m.imported = append(m.imported, refs...)
	m.size += len(refs)
	return len(refs), nil
}

func (m *mockSimilarityService) Load(_ context.Context) (int, error) {
	return m.size, m.err
}

func (m *mockSimilarityService) Size() int {
	return m.size
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings    domain.AppSettings
	validateErr error
	saved       int
}

func newMockSettings() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings()}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	m.saved++
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.Embedding = domain.EmbeddingSettings{Provider: provider, Model: model, APIKey: apiKey}
	return nil
}

func (m *mockSettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	m.settings.LLM = domain.LLMSettings{Provider: provider, Model: model, APIKey: apiKey}
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.validateErr
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func (m *mockSettingsService) ValidateEmbeddingConfig() error {
	return nil
}

func (m *mockSettingsService) ValidateLLMConfig() error {
	return nil
}

// mockPromptWatcher replays names to the callback, then returns.
type mockPromptWatcher struct {
	names []string
}

func (m *mockPromptWatcher) Watch(_ context.Context, onChange func(name string)) error {
	for _, n := range m.names {
		onChange(n)
	}
	return nil
}

var (
	_ driving.ConfigService     = (*mockConfigService)(nil)
	_ driving.PipelineService   = (*mockPipelineService)(nil)
	_ driving.BatchService      = (*mockBatchService)(nil)
	_ driving.SimilarityService = (*mockSimilarityService)(nil)
	_ driving.SettingsService   = (*mockSettingsService)(nil)
	_ driven.PromptWatcher      = (*mockPromptWatcher)(nil)
)
