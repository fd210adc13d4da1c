package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func seededConfigService() *mockConfigService {
	first := domain.DefaultPipelineParams()
	second := domain.DefaultPipelineParams()
	second.Similarity.DuplicateThreshold = 0.9
	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &mockConfigService{
		versions: []domain.ConfigurationVersion{
			{ID: 1, Params: first, Note: "initial defaults", CreatedAt: created},
			{ID: 2, Params: second, Note: "stricter dedup", CreatedAt: created.Add(time.Hour)},
		},
	}
}

// ==================== list/get Tests ====================

func TestConfigList(t *testing.T) {
	configs := seededConfigService()
	one := int64(1)
	configs.versions = append(configs.versions, domain.ConfigurationVersion{ID: 3, RestoredFrom: &one})
	withServices(t, Services{Config: configs})

	out, err := execute(t, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
	assert.Contains(t, out, "stricter dedup")
	assert.Contains(t, out, "restored from v1")
}

func TestConfigList_Empty(t *testing.T) {
	withServices(t, Services{Config: &mockConfigService{}})

	out, err := execute(t, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No configuration versions")
}

func TestConfigGet_YAMLRoundTrips(t *testing.T) {
	configs := seededConfigService()
	withServices(t, Services{Config: configs})

	out, err := execute(t, "config", "get")
	require.NoError(t, err)

	var params domain.PipelineParams
	require.NoError(t, yaml.Unmarshal([]byte(out), &params))
	assert.Equal(t, configs.versions[1].Params, params)
}

func TestConfigGet_JSONToFile(t *testing.T) {
	withServices(t, Services{Config: seededConfigService()})
	path := filepath.Join(t.TempDir(), "v1.json")

	out, err := execute(t, "config", "get", "v1", "--format", "json", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := domain.DecodeParams(data)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPipelineParams(), got)
}

func TestConfigGet_Errors(t *testing.T) {
	withServices(t, Services{Config: seededConfigService()})

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "unknown version", args: []string{"config", "get", "9"}, want: domain.ErrConfigurationNotFound},
		{name: "not a number", args: []string{"config", "get", "latest"}, want: domain.ErrInvalidInput},
		{name: "zero", args: []string{"config", "get", "0"}, want: domain.ErrInvalidInput},
		{name: "unknown format", args: []string{"config", "get", "--format", "toml"}, want: domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// ==================== save/restore Tests ====================

func TestConfigSave_RoundTripsExport(t *testing.T) {
	configs := seededConfigService()
	withServices(t, Services{Config: configs})
	path := filepath.Join(t.TempDir(), "params.yaml")

	_, err := execute(t, "config", "get", "1", "--output", path)
	require.NoError(t, err)

	out, err := execute(t, "config", "save", path, "--note", "copy of v1")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved configuration v3")

	require.Len(t, configs.saved, 1)
	assert.Equal(t, configs.versions[0].Params, configs.saved[0])
	assert.Equal(t, "copy of v1", configs.notes[0])
}

func TestConfigSave_FromStdinJSON(t *testing.T) {
	configs := &mockConfigService{}
	withServices(t, Services{Config: configs})

	data, err := domain.DefaultPipelineParams().Canonical()
	require.NoError(t, err)

	_, err = executeWithInput(t, string(data), "config", "save", "-", "--format", "json")
	require.NoError(t, err)
	assert.Len(t, configs.saved, 1)
}

func TestConfigSave_RejectsUnknownFields(t *testing.T) {
	configs := &mockConfigService{}
	withServices(t, Services{Config: configs})
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("similarity:\n  duplicate_treshold: 0.9\n"), 0o600))

	_, err := execute(t, "config", "save", path)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, configs.saved)
}

func TestConfigSave_InvalidParams(t *testing.T) {
	configs := &mockConfigService{}
	withServices(t, Services{Config: configs})
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("similarity:\n  duplicate_threshold: 1.5\n"), 0o600))

	_, err := execute(t, "config", "save", path)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigRestore(t *testing.T) {
	configs := seededConfigService()
	withServices(t, Services{Config: configs})

	out, err := execute(t, "config", "restore", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Restored v1 as v3")
	require.Len(t, configs.versions, 3)
	assert.Equal(t, configs.versions[0].Params, configs.versions[2].Params)
}

func TestConfigDefaults(t *testing.T) {
	withServices(t, Services{Config: &mockConfigService{}})

	out, err := execute(t, "config", "defaults", "--format", "json")
	require.NoError(t, err)
	got, err := domain.DecodeParams([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPipelineParams(), got)
}

// ==================== watch Tests ====================

// promptConfigService serves edited prompts from Defaults.
type promptConfigService struct {
	*mockConfigService
	prompts map[domain.StageKind]string
}

func (p *promptConfigService) Defaults() (domain.PipelineParams, error) {
	params := domain.DefaultPipelineParams()
	for kind, prompt := range p.prompts {
		sp := params.Stages[kind]
		sp.Prompt = prompt
		params.Stages[kind] = sp
	}
	return params, nil
}

func TestSnapshotPrompt(t *testing.T) {
	base := seededConfigService()
	configs := &promptConfigService{
		mockConfigService: base,
		prompts:           map[domain.StageKind]string{domain.StageRanking: "rank by severity"},
	}
	before := base.versions[1].Params.Stage(domain.StageRanking).Prompt
	ctx := context.Background()

	id, changed, err := snapshotPrompt(ctx, configs, string(domain.StageRanking))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(3), id)

	saved := base.versions[2].Params
	assert.Equal(t, "rank by severity", saved.Stage(domain.StageRanking).Prompt)
	assert.InDelta(t, 0.9, saved.Similarity.DuplicateThreshold, 1e-9, "other params come from the latest version")
	assert.Equal(t, before, base.versions[1].Params.Stage(domain.StageRanking).Prompt, "earlier versions are untouched")

	_, changed, err = snapshotPrompt(ctx, configs, string(domain.StageRanking))
	require.NoError(t, err)
	assert.False(t, changed, "unchanged prompt saves nothing")
	assert.Len(t, base.versions, 3)
}

func TestSnapshotPrompt_IgnoresNonStagePrompts(t *testing.T) {
	base := seededConfigService()
	configs := &promptConfigService{mockConfigService: base}

	for _, name := range []string{"qa_review", string(domain.StageSimilarityDedup), "notes"} {
		_, changed, err := snapshotPrompt(context.Background(), configs, name)
		require.NoError(t, err)
		assert.False(t, changed, name)
	}
	assert.Len(t, base.versions, 2)
}

func TestSnapshotPrompt_SeedsEmptyStore(t *testing.T) {
	base := &mockConfigService{}
	configs := &promptConfigService{mockConfigService: base}

	id, changed, err := snapshotPrompt(context.Background(), configs, string(domain.StageRanking))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, []string{"initial defaults"}, base.notes)
}

func TestSnapshotPrompt_StoreError(t *testing.T) {
	configs := &promptConfigService{mockConfigService: &mockConfigService{err: errors.New("disk full")}}

	_, _, err := snapshotPrompt(context.Background(), configs, string(domain.StageRanking))
	assert.EqualError(t, err, "disk full")
}

func TestConfigWatch(t *testing.T) {
	base := seededConfigService()
	withServices(t, Services{
		Config: &promptConfigService{
			mockConfigService: base,
			prompts:           map[domain.StageKind]string{domain.AgentRegistry: "list registry keys"},
		},
		Prompts: &mockPromptWatcher{names: []string{string(domain.AgentRegistry), "qa_review"}},
	})

	out, err := execute(t, "config", "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "prompt extract_registry changed: saved v3")
	assert.Contains(t, out, "prompt qa_review: no stage change")
}

func TestConfigWatch_NoWatcher(t *testing.T) {
	withServices(t, Services{Config: &mockConfigService{}})

	_, err := execute(t, "config", "watch")
	assert.EqualError(t, err, "prompt directory not configured")
}
