package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/ruleforge/internal/adapters/driven/ai"
	"github.com/custodia-labs/ruleforge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ruleforge/internal/adapters/driven/reviewqueue"
	"github.com/custodia-labs/ruleforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ruleforge/internal/adapters/driven/storage/sqlstore"
	"github.com/custodia-labs/ruleforge/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/ruleforge/internal/adapters/driving/cli"
	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
	"github.com/custodia-labs/ruleforge/internal/core/services"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
	"github.com/custodia-labs/ruleforge/internal/logger"
	"github.com/custodia-labs/ruleforge/internal/normalisers"
)

// application holds the wired services and everything that must be closed.
type application struct {
	services cli.Services
	closers  []func() error
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close: %v", err)
		}
	}
}

func (a *application) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// stores groups the persistence ports chosen by the storage driver.
type stores struct {
	versions   driven.ConfigVersionStore
	runs       driven.RunStore
	references driven.ReferenceStore
}

func wire(ctx context.Context) (*application, error) {
	app := &application{}

	home, err := file.DefaultDir()
	if err != nil {
		return nil, err
	}

	store := settingsStore(home)
	settingsService := services.NewSettingsService(store, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	st, err := openStorage(ctx, app, home, settings.Storage)
	if err != nil {
		return nil, err
	}

	queue, spoolDir, err := openReviewQueue(ctx, home, settings.ReviewQueue)
	if err != nil {
		return nil, err
	}
	app.onClose(queue.Close)

	models := ai.Init(ctx, settings)
	for _, w := range models.Warnings {
		logger.Debug("model services: %s", w)
	}
	app.onClose(func() error {
		models.Close()
		return nil
	})

	similarity := similarityService(ctx, models.EmbeddingService, st.references)

	prompts, err := file.NewPromptStore(filepath.Join(home, "prompts"))
	if err != nil {
		return nil, err
	}
	configs := services.NewConfigService(st.versions, prompts)

	qaPrompt, err := prompts.Load(driven.PromptQAReview)
	if err != nil {
		return nil, err
	}
	qa := services.NewQAEngine(stages.NewLLMReviewer(models.LLMService, qaPrompt, settings.LLM.Model))

	orchestrator := services.NewOrchestrator(
		configs,
		stages.NewSet(models.LLMService),
		qa,
		similarity,
		st.runs,
		queue,
		normalisers.Default(),
	)

	defaultWorkers := settings.Workers
	app.services = cli.Services{
		Config:   configs,
		Pipeline: orchestrator,
		Batch: func(workers int) driving.BatchService {
			if workers < 1 {
				workers = defaultWorkers
			}
			return services.NewRunPool(orchestrator, configs, workers)
		},
		Similarity:     similarity,
		Settings:       settingsService,
		Prompts:        prompts,
		ReviewSpoolDir: spoolDir,
	}
	return app, nil
}

// settingsStore returns the TOML settings file, or an in-memory store when
// the configuration directory cannot be used.
func settingsStore(home string) driven.ConfigStore {
	store, err := file.NewConfigStore(home)
	if err != nil {
		logger.Warn("settings file unavailable, using defaults for this session: %v", err)
		return memory.NewConfigStore()
	}
	return store
}

func openStorage(ctx context.Context, app *application, home string, cfg domain.StorageSettings) (stores, error) {
	var (
		store *sqlstore.Store
		err   error
	)
	switch cfg.Driver {
	case domain.StorageMemory:
		logger.Debug("storage: in memory")
		return stores{
			versions:   memory.NewConfigVersionStore(),
			runs:       memory.NewRunStore(),
			references: memory.NewReferenceStore(),
		}, nil
	case domain.StoragePostgres:
		store, err = sqlstore.OpenPostgres(ctx, cfg.DSN)
	case domain.StorageSQLite, "":
		dir := cfg.DataDir
		if dir == "" {
			dir = filepath.Join(home, "data")
		}
		store, err = sqlstore.OpenSQLite(dir)
	default:
		return stores{}, fmt.Errorf("%w: unknown storage driver %q", domain.ErrInvalidInput, cfg.Driver)
	}
	if err != nil {
		return stores{}, fmt.Errorf("open %s storage: %w", cfg.Driver, err)
	}
	app.onClose(store.Close)
	logger.Debug("storage: %s at %s", store.Dialect(), store.Path())

	return stores{
		versions:   store.ConfigVersionStore(),
		runs:       store.RunStore(),
		references: store.ReferenceStore(),
	}, nil
}

// openReviewQueue returns the configured queue, plus the spool directory
// when the queue is a file spool.
func openReviewQueue(ctx context.Context, home string, cfg domain.ReviewQueueSettings) (driven.ReviewQueue, string, error) {
	switch cfg.Kind {
	case domain.ReviewQueueMemory:
		return memory.NewReviewQueue(), "", nil
	case domain.ReviewQueueMinio:
		queue, err := reviewqueue.NewMinIOQueue(ctx, reviewqueue.ObjectConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Prefix:    cfg.Prefix,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, "", fmt.Errorf("open review bucket: %w", err)
		}
		return queue, "", nil
	case domain.ReviewQueueFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(home, "review")
		}
		spool, err := reviewqueue.NewSpool(dir)
		if err != nil {
			return nil, "", fmt.Errorf("open review spool: %w", err)
		}
		return spool, spool.Dir(), nil
	default:
		return nil, "", fmt.Errorf("%w: unknown review queue %q", domain.ErrInvalidInput, cfg.Kind)
	}
}

// similarityService builds the reference index and loads stored references
// into it. Without an embedder the service reports itself unavailable.
func similarityService(ctx context.Context, embedder driven.EmbeddingService, refs driven.ReferenceStore) *services.SimilarityService {
	if embedder == nil {
		return services.NewSimilarityService(nil, nil, refs)
	}

	svc := services.NewSimilarityService(embedder, flat.New(embedder.Dimensions()), refs)
	n, err := svc.Load(ctx)
	switch {
	case err != nil && !errors.Is(err, domain.ErrVectorIndexUnavailable):
		logger.Warn("loading reference corpus: %v", err)
	case n > 0:
		logger.Debug("reference index: %d reference(s) loaded", n)
	}
	return svc
}
