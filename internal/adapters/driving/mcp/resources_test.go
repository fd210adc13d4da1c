package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func sampleRuns() []domain.PipelineRun {
	return []domain.PipelineRun{
		{
			ID:            "run-1",
			Content:       domain.ContentRef{ID: "report-17"},
			ConfigVersion: 2,
			Status:        domain.RunCompleted,
			Executions: []domain.StageExecution{
				{Stage: domain.StageRelevanceFilter, Attempt: 1, Status: domain.StageRetry, Confidence: domain.Float(0.5)},
				{Stage: domain.StageRelevanceFilter, Attempt: 2, Status: domain.StagePassed, Confidence: domain.Float(0.9)},
			},
			Artifacts: []domain.CandidateArtifact{
				{ID: "art-1", Title: "Certutil download", Duplicate: true,
					Matches: []domain.SimilarityMatch{{CandidateID: "art-1", ReferenceID: "ref-a", Score: 0.97, Rank: 1}}},
			},
		},
		{
			ID:            "run-2",
			Content:       domain.ContentRef{ID: "report-18"},
			ConfigVersion: 2,
			Status:        domain.RunHalted,
			Reason:        domain.Reason{Code: domain.ReasonThresholdNotMet, Stage: domain.StageRelevanceFilter, Message: "0.41 < 0.60"},
		},
	}
}

// ==================== Runs Resource Tests ====================

func TestHandleRunsResource(t *testing.T) {
	ports := newPorts()
	ports.Pipeline = &mockPipelineService{runs: sampleRuns()}
	server := newTestServer(t, ports)

	result, err := server.handleRunsResource(context.Background(), readRequest("ruleforge://runs"))
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var runs []runSummary
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "report-17", runs[0].ContentID)
	assert.Equal(t, 1, runs[0].Artifacts)
	assert.Equal(t, domain.RunHalted, runs[1].Status)
	assert.NotEmpty(t, runs[1].Reason)
}

func TestHandleRunsResource_NoPipeline(t *testing.T) {
	server := newTestServer(t, &Ports{Similarity: &mockSimilarityService{}, Config: &mockConfigService{}})

	result, err := server.handleRunsResource(context.Background(), readRequest("ruleforge://runs"))
	require.NoError(t, err)
	assert.Equal(t, "[]", result.Contents[0].Text)
}

func TestHandleRunResource(t *testing.T) {
	ports := newPorts()
	ports.Pipeline = &mockPipelineService{runs: sampleRuns()}
	server := newTestServer(t, ports)

	t.Run("known run", func(t *testing.T) {
		result, err := server.handleRunResource(context.Background(), readRequest("ruleforge://runs/run-1"))
		require.NoError(t, err)

		var detail runDetail
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &detail))
		assert.Equal(t, "run-1", detail.ID)
		assert.Len(t, detail.Trail, 2)
		assert.Equal(t, map[domain.StageKind]float64{domain.StageRelevanceFilter: 0.9}, detail.Final)
		require.Len(t, detail.Artifacts, 1)
		assert.True(t, detail.Artifacts[0].Duplicate)
		assert.Equal(t, "ref-a", detail.Artifacts[0].Matches[0].ReferenceID)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := server.handleRunResource(context.Background(), readRequest("ruleforge://runs/missing"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed uri", func(t *testing.T) {
		_, err := server.handleRunResource(context.Background(), readRequest("ruleforge://runs/a/b"))
		assert.Error(t, err)
	})
}

func TestExtractRunID(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{uri: "ruleforge://runs/abc", want: "abc"},
		{uri: "ruleforge://runs/", want: ""},
		{uri: "ruleforge://runs/a/b", want: ""},
		{uri: "other://runs/abc", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, extractRunID(tt.uri))
		})
	}
}

// ==================== Config Resource Tests ====================

func TestHandleLatestConfigResource(t *testing.T) {
	ports := newPorts()
	ports.Config = seededConfigs()
	server := newTestServer(t, ports)

	result, err := server.handleLatestConfigResource(context.Background(), readRequest("ruleforge://config/latest"))
	require.NoError(t, err)

	var out ConfigGetOutput
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &out))
	assert.Equal(t, int64(2), out.ID)
	assert.Contains(t, out.Params.Stages, domain.StageRelevanceFilter)
}

func TestHandleLatestConfigResource_Empty(t *testing.T) {
	server := newTestServer(t, newPorts())

	_, err := server.handleLatestConfigResource(context.Background(), readRequest("ruleforge://config/latest"))
	assert.ErrorIs(t, err, domain.ErrConfigurationNotFound)
}
