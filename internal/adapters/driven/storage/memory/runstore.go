package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu         sync.RWMutex
	runs       map[string]domain.PipelineRun
	executions map[string][]domain.StageExecution
	artifacts  map[string][]domain.CandidateArtifact
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:       make(map[string]domain.PipelineRun),
		executions: make(map[string][]domain.StageExecution),
		artifacts:  make(map[string][]domain.CandidateArtifact),
	}
}

// CreateRun records a new run.
func (s *RunStore) CreateRun(_ context.Context, run *domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("%w: run %s already exists", domain.ErrInvalidInput, run.ID)
	}
	stored := *run
	stored.Executions = nil
	stored.Artifacts = nil
	s.runs[run.ID] = stored
	return nil
}

// AppendExecution records one stage attempt.
func (s *RunStore) AppendExecution(_ context.Context, exec domain.StageExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[exec.RunID]; !ok {
		return fmt.Errorf("run %s: %w", exec.RunID, domain.ErrNotFound)
	}
	s.executions[exec.RunID] = append(s.executions[exec.RunID], exec)
	return nil
}

// SaveArtifacts records the artifacts of a run.
func (s *RunStore) SaveArtifacts(_ context.Context, runID string, artifacts []domain.CandidateArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
	}
	s.artifacts[runID] = append([]domain.CandidateArtifact(nil), artifacts...)
	return nil
}

// FinishRun records the terminal state of a run.
func (s *RunStore) FinishRun(_ context.Context, run *domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrRunTerminal)
	}
	stored.Status = run.Status
	stored.Reason = run.Reason
	stored.CurrentStage = run.CurrentStage
	stored.UpdatedAt = run.UpdatedAt
	s.runs[run.ID] = stored
	return nil
}

// GetRun retrieves a run with its history.
func (s *RunStore) GetRun(_ context.Context, id string) (*domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	run.Executions = append([]domain.StageExecution(nil), s.executions[id]...)
	run.Artifacts = append([]domain.CandidateArtifact(nil), s.artifacts[id]...)
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PipelineRun, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
