package services

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Ensure RunPool implements the interface.
var _ driving.BatchService = (*RunPool)(nil)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// RunPool executes many runs concurrently with a bounded number of workers.
// Runs share nothing mutable; every run in a batch pins the same version.
type RunPool struct {
	pipeline driving.PipelineService
	configs  *ConfigService
	workers  int
}

// NewRunPool creates a pool. workers below one selects DefaultWorkers.
func NewRunPool(pipeline driving.PipelineService, configs *ConfigService, workers int) *RunPool {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &RunPool{
		pipeline: pipeline,
		configs:  configs,
		workers:  workers,
	}
}

// RunAll submits every item and returns the runs in input order.
// Per-item start failures are logged and leave a nil entry; an unknown
// configuration version aborts the whole batch before anything runs.
func (p *RunPool) RunAll(ctx context.Context, items []domain.ContentItem, version int64) ([]*domain.PipelineRun, error) {
	cfg, err := p.configs.Resolve(ctx, version)
	if err != nil {
		return nil, err
	}

	runs := make([]*domain.PipelineRun, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, item := range items {
		g.Go(func() error {
			run, err := p.pipeline.Submit(gctx, item, cfg.ID)
			if err != nil {
				if errors.Is(err, domain.ErrConfigurationNotFound) {
					return err
				}
				logger.Warn("batch: content %s not started: %v", item.ID, err)
				return nil
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runs, err
	}
	return runs, nil
}
