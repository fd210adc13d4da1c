package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// ConfigVersionStore persists immutable configuration snapshots.
// Versions are append-only: IDs are assigned by the store, start at 1,
// increase monotonically and are never reused.
type ConfigVersionStore interface {
	// Append stores a new snapshot and returns its assigned ID.
	// The ID and CreatedAt fields of v are ignored on input.
	Append(ctx context.Context, v *domain.ConfigurationVersion) (int64, error)

	// Get retrieves a snapshot by ID.
	// Returns domain.ErrConfigurationNotFound if no such version exists.
	Get(ctx context.Context, id int64) (*domain.ConfigurationVersion, error)

	// Latest returns the snapshot with the highest ID.
	// Returns domain.ErrConfigurationNotFound if the store is empty.
	Latest(ctx context.Context) (*domain.ConfigurationVersion, error)

	// List returns every snapshot in ascending ID order.
	List(ctx context.Context) ([]domain.ConfigurationVersion, error)
}
