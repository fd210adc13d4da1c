package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Ensure ConfigService implements the interface.
var _ driving.ConfigService = (*ConfigService)(nil)

// ConfigService manages immutable configuration snapshots.
type ConfigService struct {
	store   driven.ConfigVersionStore
	prompts driven.PromptStore
}

// NewConfigService creates a new config service.
// prompts is optional; without it Defaults uses the built-in prompts.
func NewConfigService(store driven.ConfigVersionStore, prompts driven.PromptStore) *ConfigService {
	return &ConfigService{
		store:   store,
		prompts: prompts,
	}
}

// Save validates params and stores them as a new version.
func (s *ConfigService) Save(ctx context.Context, params domain.PipelineParams, note string) (int64, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	raw, err := params.Canonical()
	if err != nil {
		return 0, fmt.Errorf("encode params: %w", err)
	}
	// Store the decoded form of the canonical bytes so Params and Raw agree exactly.
	decoded, err := domain.DecodeParams(raw)
	if err != nil {
		return 0, err
	}

	id, err := s.store.Append(ctx, &domain.ConfigurationVersion{
		Params: decoded,
		Raw:    raw,
		Note:   note,
	})
	if err != nil {
		return 0, fmt.Errorf("save configuration: %w", err)
	}
	logger.Info("saved configuration version %d", id)
	return id, nil
}

// Get retrieves a version by ID.
func (s *ConfigService) Get(ctx context.Context, id int64) (*domain.ConfigurationVersion, error) {
	return s.store.Get(ctx, id)
}

// Latest returns the newest version.
func (s *ConfigService) Latest(ctx context.Context) (*domain.ConfigurationVersion, error) {
	return s.store.Latest(ctx)
}

// Restore clones version id into a new version. The snapshot bytes are
// copied verbatim, so the clone is byte-identical to its source.
func (s *ConfigService) Restore(ctx context.Context, id int64) (int64, error) {
	src, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	raw := append([]byte(nil), src.Raw...)
	params, err := domain.DecodeParams(raw)
	if err != nil {
		return 0, fmt.Errorf("restore version %d: %w", id, err)
	}

	from := id
	newID, err := s.store.Append(ctx, &domain.ConfigurationVersion{
		Params:       params,
		Raw:          raw,
		Note:         fmt.Sprintf("restored from version %d", id),
		RestoredFrom: &from,
	})
	if err != nil {
		return 0, fmt.Errorf("restore version %d: %w", id, err)
	}
	logger.Info("restored configuration version %d as %d", id, newID)
	return newID, nil
}

// List returns every version in ascending order.
func (s *ConfigService) List(ctx context.Context) ([]domain.ConfigurationVersion, error) {
	return s.store.List(ctx)
}

// Defaults returns validated default params with prompts filled in from the
// prompt store, falling back to the built-in prompts.
func (s *ConfigService) Defaults() (domain.PipelineParams, error) {
	params := domain.DefaultPipelineParams()
	for kind, sp := range params.Stages {
		if !kind.UsesModel() {
			continue
		}
		sp.Prompt = stages.DefaultPrompt(kind)
		if s.prompts != nil {
			prompt, err := s.prompts.Load(driven.PromptName(kind))
			if err != nil {
				logger.Warn("prompt %s unavailable, using built-in: %v", kind, err)
			} else if prompt != "" {
				sp.Prompt = prompt
			}
		}
		params.Stages[kind] = sp
	}
	if err := params.Validate(); err != nil {
		return domain.PipelineParams{}, err
	}
	return params, nil
}

// Resolve returns the version a run should pin. Zero selects the latest.
// An empty store is seeded with the defaults when the latest is requested,
// so a fresh installation can run without an explicit save.
func (s *ConfigService) Resolve(ctx context.Context, id int64) (*domain.ConfigurationVersion, error) {
	if id != 0 {
		return s.store.Get(ctx, id)
	}
	latest, err := s.store.Latest(ctx)
	if err == nil {
		return latest, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	params, err := s.Defaults()
	if err != nil {
		return nil, err
	}
	newID, err := s.Save(ctx, params, "initial defaults")
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, newID)
}
