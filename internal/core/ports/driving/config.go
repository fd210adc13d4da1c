package driving

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// ConfigService manages versioned pipeline configuration snapshots.
type ConfigService interface {
	// Save validates params and stores them as a new version.
	Save(ctx context.Context, params domain.PipelineParams, note string) (int64, error)

	// Get retrieves a version by ID.
	Get(ctx context.Context, id int64) (*domain.ConfigurationVersion, error)

	// Latest returns the newest version.
	Latest(ctx context.Context) (*domain.ConfigurationVersion, error)

	// Restore clones an existing version into a new one. History is never rewritten.
	Restore(ctx context.Context, id int64) (int64, error)

	// List returns every version in ascending order.
	List(ctx context.Context) ([]domain.ConfigurationVersion, error)

	// Defaults returns validated default params with prompts from the prompt store.
	Defaults() (domain.PipelineParams, error)
}
