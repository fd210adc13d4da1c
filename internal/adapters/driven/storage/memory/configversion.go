package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure ConfigVersionStore implements the interface.
var _ driven.ConfigVersionStore = (*ConfigVersionStore)(nil)

// ConfigVersionStore is an in-memory, append-only snapshot store.
type ConfigVersionStore struct {
	mu       sync.RWMutex
	versions []domain.ConfigurationVersion
	now      func() time.Time
}

// NewConfigVersionStore creates a new in-memory snapshot store.
func NewConfigVersionStore() *ConfigVersionStore {
	return &ConfigVersionStore{now: time.Now}
}

// Append stores a new snapshot and returns its ID.
func (s *ConfigVersionStore) Append(_ context.Context, v *domain.ConfigurationVersion) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneVersion(*v)
	stored.ID = int64(len(s.versions)) + 1
	stored.CreatedAt = s.now()
	s.versions = append(s.versions, stored)
	return stored.ID, nil
}

// Get retrieves a snapshot by ID.
func (s *ConfigVersionStore) Get(_ context.Context, id int64) (*domain.ConfigurationVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 1 || id > int64(len(s.versions)) {
		return nil, domain.ErrConfigurationNotFound
	}
	v := cloneVersion(s.versions[id-1])
	return &v, nil
}

// Latest returns the newest snapshot.
func (s *ConfigVersionStore) Latest(_ context.Context) (*domain.ConfigurationVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.versions) == 0 {
		return nil, domain.ErrConfigurationNotFound
	}
	v := cloneVersion(s.versions[len(s.versions)-1])
	return &v, nil
}

// List returns every snapshot in ascending ID order.
func (s *ConfigVersionStore) List(_ context.Context) ([]domain.ConfigurationVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ConfigurationVersion, len(s.versions))
	for i, v := range s.versions {
		out[i] = cloneVersion(v)
	}
	return out, nil
}

// cloneVersion deep-copies the parts of a version a caller could mutate.
func cloneVersion(v domain.ConfigurationVersion) domain.ConfigurationVersion {
	v.Raw = append([]byte(nil), v.Raw...)
	if v.RestoredFrom != nil {
		from := *v.RestoredFrom
		v.RestoredFrom = &from
	}
	if v.Params.Stages != nil {
		stages := make(map[domain.StageKind]domain.StageParams, len(v.Params.Stages))
		for k, sp := range v.Params.Stages {
			if sp.Threshold != nil {
				sp.Threshold = domain.Float(*sp.Threshold)
			}
			stages[k] = sp
		}
		v.Params.Stages = stages
	}
	return v
}
