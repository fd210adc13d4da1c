package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.RunStore = (*runStore)(nil)

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var runColumns = []string{
	"id", "content_id", "content_digest", "config_version", "current_stage", "status",
	"reason_code", "reason_message", "reason_stage", "created_at", "updated_at",
}

var executionColumns = []string{
	"id", "run_id", "stage", "attempt", "input_digest", "output", "confidence", "status",
	"error_code", "error", "feedback", "best_effort", "started_at", "finished_at",
}

var artifactColumns = []string{
	"id", "run_id", "title", "body", "embedding", "duplicate", "matches", "created_at",
}

// CreateRun records a new run. History on the run value is ignored.
func (s *runStore) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.store.exists(ctx, tx, "runs", run.ID)
		if err != nil {
			return fmt.Errorf("checking run: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: run %s already exists", domain.ErrInvalidInput, run.ID)
		}

		_, err = exec(ctx, tx, s.store.sb.Insert("runs").Columns(runColumns...).Values(
			run.ID, run.Content.ID, run.Content.Digest, run.ConfigVersion,
			string(run.CurrentStage), string(run.Status),
			string(run.Reason.Code), run.Reason.Message, string(run.Reason.Stage),
			toNanos(run.CreatedAt), toNanos(run.UpdatedAt),
		))
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		return nil
	})
}

// AppendExecution records one stage attempt.
func (s *runStore) AppendExecution(ctx context.Context, e domain.StageExecution) error {
	output, err := json.Marshal(e.Output)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	var confidence sql.NullFloat64
	if e.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
	}

	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.store.exists(ctx, tx, "runs", e.RunID)
		if err != nil {
			return fmt.Errorf("checking run: %w", err)
		}
		if !exists {
			return fmt.Errorf("run %s: %w", e.RunID, domain.ErrNotFound)
		}

		_, err = exec(ctx, tx, s.store.sb.Insert("stage_executions").Columns(executionColumns...).Values(
			e.ID, e.RunID, string(e.Stage), e.Attempt, e.InputDigest, string(output), confidence,
			string(e.Status), string(e.ErrorCode), e.Error, e.Feedback, e.BestEffort,
			toNanos(e.StartedAt), toNanos(e.FinishedAt),
		))
		if err != nil {
			return fmt.Errorf("inserting stage execution: %w", err)
		}
		return nil
	})
}

// SaveArtifacts replaces the artifacts of a run.
func (s *runStore) SaveArtifacts(ctx context.Context, runID string, artifacts []domain.CandidateArtifact) error {
	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := s.store.exists(ctx, tx, "runs", runID)
		if err != nil {
			return fmt.Errorf("checking run: %w", err)
		}
		if !exists {
			return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}

		if _, err := exec(ctx, tx, s.store.sb.Delete("artifacts").Where(sq.Eq{"run_id": runID})); err != nil {
			return fmt.Errorf("clearing artifacts: %w", err)
		}
		if len(artifacts) == 0 {
			return nil
		}

		insert := s.store.sb.Insert("artifacts").Columns(append(artifactColumns, "position")...)
		for i, a := range artifacts {
			matches := a.Matches
			if matches == nil {
				matches = []domain.SimilarityMatch{}
			}
			encoded, err := json.Marshal(matches)
			if err != nil {
				return fmt.Errorf("encoding matches: %w", err)
			}
			insert = insert.Values(
				a.ID, runID, a.Title, a.Body, float32SliceToBytes(a.Embedding),
				a.Duplicate, string(encoded), toNanos(a.CreatedAt), i,
			)
		}
		if _, err := exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("inserting artifacts: %w", err)
		}
		return nil
	})
}

// FinishRun records the terminal state of a run. A run finishes once.
func (s *runStore) FinishRun(ctx context.Context, run *domain.PipelineRun) error {
	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		res, err := exec(ctx, tx, s.store.sb.Update("runs").
			Set("status", string(run.Status)).
			Set("reason_code", string(run.Reason.Code)).
			Set("reason_message", run.Reason.Message).
			Set("reason_stage", string(run.Reason.Stage)).
			Set("current_stage", string(run.CurrentStage)).
			Set("updated_at", toNanos(run.UpdatedAt)).
			Where(sq.Eq{"id": run.ID, "status": string(domain.RunRunning)}))
		if err != nil {
			return fmt.Errorf("updating run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		exists, err := s.store.exists(ctx, tx, "runs", run.ID)
		if err != nil {
			return fmt.Errorf("checking run: %w", err)
		}
		if !exists {
			return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrRunTerminal)
	})
}

// GetRun retrieves a run with its executions and artifacts.
func (s *runStore) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row, err := queryRow(ctx, s.store.db,
		s.store.sb.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if run.Executions, err = s.executions(ctx, id); err != nil {
		return nil, err
	}
	if run.Artifacts, err = s.artifacts(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without history.
func (s *runStore) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	q := s.store.sb.Select(runColumns...).From("runs").OrderBy("created_at DESC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	rows, err := query(ctx, s.store.db, q)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	out := []domain.PipelineRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (s *runStore) executions(ctx context.Context, runID string) ([]domain.StageExecution, error) {
	rows, err := query(ctx, s.store.db, s.store.sb.Select(executionColumns...).
		From("stage_executions").Where(sq.Eq{"run_id": runID}).OrderBy("seq ASC"))
	if err != nil {
		return nil, fmt.Errorf("loading executions: %w", err)
	}
	defer rows.Close()

	var out []domain.StageExecution
	for rows.Next() {
		var (
			e                   domain.StageExecution
			stage, status, code string
			output              string
			confidence          sql.NullFloat64
			started, finished   int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &stage, &e.Attempt, &e.InputDigest, &output, &confidence,
			&status, &code, &e.Error, &e.Feedback, &e.BestEffort, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		if err := json.Unmarshal([]byte(output), &e.Output); err != nil {
			return nil, fmt.Errorf("decoding output of %s: %w", e.ID, err)
		}
		e.Stage = domain.StageKind(stage)
		e.Status = domain.StageStatus(status)
		e.ErrorCode = domain.ReasonCode(code)
		if confidence.Valid {
			e.Confidence = domain.Float(confidence.Float64)
		}
		e.StartedAt = fromNanos(started)
		e.FinishedAt = fromNanos(finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *runStore) artifacts(ctx context.Context, runID string) ([]domain.CandidateArtifact, error) {
	rows, err := query(ctx, s.store.db, s.store.sb.Select(artifactColumns...).
		From("artifacts").Where(sq.Eq{"run_id": runID}).OrderBy("position ASC"))
	if err != nil {
		return nil, fmt.Errorf("loading artifacts: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateArtifact
	for rows.Next() {
		var (
			a         domain.CandidateArtifact
			embedding []byte
			matches   string
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.Title, &a.Body, &embedding,
			&a.Duplicate, &matches, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(matches), &a.Matches); err != nil {
			return nil, fmt.Errorf("decoding matches of %s: %w", a.ID, err)
		}
		if len(a.Matches) == 0 {
			a.Matches = nil
		}
		a.Embedding = bytesToFloat32Slice(embedding)
		a.CreatedAt = fromNanos(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanRun(row scanner) (*domain.PipelineRun, error) {
	var (
		run                     domain.PipelineRun
		stage, status           string
		code, message, reasonAt string
		createdAt, updatedAt    int64
	)
	if err := row.Scan(&run.ID, &run.Content.ID, &run.Content.Digest, &run.ConfigVersion,
		&stage, &status, &code, &message, &reasonAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.CurrentStage = domain.StageKind(stage)
	run.Status = domain.RunStatus(status)
	run.Reason = domain.Reason{
		Code:    domain.ReasonCode(code),
		Message: message,
		Stage:   domain.StageKind(reasonAt),
	}
	run.CreatedAt = fromNanos(createdAt)
	run.UpdatedAt = fromNanos(updatedAt)
	return &run, nil
}
