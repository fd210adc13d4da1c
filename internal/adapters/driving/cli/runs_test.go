package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

func recordedRuns() []domain.PipelineRun {
	return []domain.PipelineRun{
		{
			ID:            "run-2",
			Content:       domain.ContentRef{ID: "report-18"},
			ConfigVersion: 4,
			Status:        domain.RunCompleted,
			Executions: []domain.StageExecution{
				{Stage: domain.StageEnvironmentDetection, Attempt: 1, Status: domain.StagePassed, Confidence: domain.Float(0.9)},
				{Stage: domain.StageRelevanceFilter, Attempt: 1, Status: domain.StageRetry, Confidence: domain.Float(0.4)},
				{Stage: domain.StageRelevanceFilter, Attempt: 2, Status: domain.StagePassed, Confidence: domain.Float(0.7)},
			},
			Artifacts: []domain.CandidateArtifact{
				{ID: "a1", Title: "One", Duplicate: true},
				{ID: "a2", Title: "Two"},
			},
		},
		{
			ID:            "run-1",
			Content:       domain.ContentRef{ID: "report-17"},
			ConfigVersion: 4,
			Status:        domain.RunFailed,
			Reason:        domain.Reason{Code: domain.ReasonQARetryExhausted, Stage: domain.StageRanking, Message: "3 attempts"},
		},
	}
}

func TestRunsList(t *testing.T) {
	withServices(t, Services{Pipeline: &mockPipelineService{runs: recordedRuns()}})

	out, err := execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "2 artifacts, 1 duplicate")
	assert.Contains(t, out, "QARetryExhausted at ranking: 3 attempts")
}

func TestRunsList_Limit(t *testing.T) {
	withServices(t, Services{Pipeline: &mockPipelineService{runs: recordedRuns()}})

	out, err := execute(t, "runs", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "run-2")
	assert.NotContains(t, out, "run-1")
}

func TestRunsList_Empty(t *testing.T) {
	withServices(t, Services{Pipeline: &mockPipelineService{}})

	out, err := execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestRunsShow_Trail(t *testing.T) {
	withServices(t, Services{Pipeline: &mockPipelineService{runs: recordedRuns()}})

	out, err := execute(t, "runs", "show", "run-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-2")
	assert.Contains(t, out, "RETRY")
	assert.Contains(t, out, "0.40")
	assert.Contains(t, out, "0.70")
}

func TestRunsShow_JSON(t *testing.T) {
	withServices(t, Services{Pipeline: &mockPipelineService{runs: recordedRuns()}})

	out, err := execute(t, "runs", "show", "run-2", "--json")
	require.NoError(t, err)

	var runs []runJSON
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Trail, 3)
	assert.Equal(t, 2, runs[0].Trail[2].Attempt)
	assert.True(t, runs[0].Artifacts[0].Duplicate)
}

func TestRunsShow_NotFound(t *testing.T) {
	withServices(t, Services{Pipeline: &mockPipelineService{}})

	_, err := execute(t, "runs", "show", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunsShow_RequiresID(t *testing.T) {
	_, err := execute(t, "runs", "show")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}
