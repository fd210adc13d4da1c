package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// RunStore persists pipeline runs and their stage history.
// Stage executions are append-only; nothing here rewrites a recorded attempt.
type RunStore interface {
	// CreateRun records a new RUNNING run.
	CreateRun(ctx context.Context, run *domain.PipelineRun) error

	// AppendExecution records one stage attempt.
	AppendExecution(ctx context.Context, exec domain.StageExecution) error

	// SaveArtifacts records the candidate artifacts produced by a run.
	SaveArtifacts(ctx context.Context, runID string, artifacts []domain.CandidateArtifact) error

	// FinishRun records the terminal status and reason of a run.
	FinishRun(ctx context.Context, run *domain.PipelineRun) error

	// GetRun retrieves a run with its executions and artifacts.
	// Returns domain.ErrNotFound if the run does not exist.
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)

	// ListRuns returns the most recent runs first, without executions.
	// A limit of zero or less returns all runs.
	ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// ReferenceStore persists the reference corpus the similarity index is built from.
type ReferenceStore interface {
	// SaveReferences inserts or replaces references by ID.
	SaveReferences(ctx context.Context, refs []domain.Reference) error

	// ListReferences returns every stored reference ordered by ID.
	ListReferences(ctx context.Context) ([]domain.Reference, error)

	// DeleteReference removes a reference.
	// Returns domain.ErrNotFound if it does not exist.
	DeleteReference(ctx context.Context, id string) error
}
