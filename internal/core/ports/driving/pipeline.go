package driving

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// PipelineService runs content through the analysis pipeline.
type PipelineService interface {
	// Submit runs one content item to a terminal state against the given
	// configuration version (zero selects the latest). HALTED and FAILED runs
	// are returned without error; the error is reserved for runs that could
	// not be started, such as an unknown configuration version.
	Submit(ctx context.Context, item domain.ContentItem, version int64) (*domain.PipelineRun, error)

	// Cancel requests cancellation of an in-flight run.
	// Returns false if the run is not executing.
	Cancel(runID string) bool

	// GetRun retrieves a recorded run.
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// BatchService runs many content items concurrently under a bounded pool.
type BatchService interface {
	// RunAll submits every item and returns the runs in input order.
	// A nil entry marks an item whose run could not be started.
	RunAll(ctx context.Context, items []domain.ContentItem, version int64) ([]*domain.PipelineRun, error)
}
