package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Ensure Orchestrator implements the interface.
var _ driving.PipelineService = (*Orchestrator)(nil)

// Orchestrator drives runs through the stage sequence.
type Orchestrator struct {
	configs     *ConfigService
	stages      *stages.Set
	qa          *QAEngine
	extraction  *ExtractionSupervisor
	similarity  *SimilarityService
	runStore    driven.RunStore
	reviewQueue driven.ReviewQueue
	normalisers driven.NormaliserRegistry
	now         func() time.Time

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// NewOrchestrator creates a new orchestrator.
// similarity, reviewQueue and normalisers are optional: without similarity
// the dedup stage is skipped, without a review queue artifacts stay in the
// run store, and without normalisers content is analysed as submitted.
func NewOrchestrator(
	configs *ConfigService,
	set *stages.Set,
	qa *QAEngine,
	similarity *SimilarityService,
	runStore driven.RunStore,
	reviewQueue driven.ReviewQueue,
	normalisers driven.NormaliserRegistry,
) *Orchestrator {
	return &Orchestrator{
		configs:     configs,
		stages:      set,
		qa:          qa,
		extraction:  NewExtractionSupervisor(set, qa),
		similarity:  similarity,
		runStore:    runStore,
		reviewQueue: reviewQueue,
		normalisers: normalisers,
		now:         time.Now,
		activeRuns:  make(map[string]context.CancelFunc),
	}
}

// runState is the mutable context of one run as it moves through stages.
type runState struct {
	run       *domain.PipelineRun
	params    domain.PipelineParams
	content   domain.ContentItem
	env       []string
	extracted []string
	artifacts []domain.CandidateArtifact
}

func (rs *runState) input(kind domain.StageKind) stages.Input {
	in := stages.Input{Content: rs.content}
	if kind != domain.StageEnvironmentDetection {
		in.Environment = rs.env
	}
	if kind == domain.StageRuleGeneration {
		in.Items = rs.extracted
	}
	return in
}

// stop ends a run. A nil *stop means continue.
type stop struct {
	status domain.RunStatus
	reason domain.Reason
}

func halt(kind domain.StageKind, code domain.ReasonCode, format string, args ...any) *stop {
	return &stop{
		status: domain.RunHalted,
		reason: domain.Reason{Code: code, Stage: kind, Message: fmt.Sprintf(format, args...)},
	}
}

func fail(kind domain.StageKind, err error) *stop {
	return &stop{
		status: domain.RunFailed,
		reason: domain.Reason{Code: domain.CodeOf(err), Stage: kind, Message: err.Error()},
	}
}

// Submit runs one content item to a terminal state.
func (o *Orchestrator) Submit(ctx context.Context, item domain.ContentItem, version int64) (*domain.PipelineRun, error) {
	cfg, err := o.configs.Resolve(ctx, version)
	if err != nil {
		return nil, err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if o.normalisers != nil {
		item, err = o.normalisers.Normalise(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("normalise content %s: %w", item.ID, err)
		}
	}

	run := domain.NewPipelineRun(uuid.New().String(), domain.ContentRef{
		ID:     item.ID,
		Digest: digest(item.Text),
	}, cfg.ID, o.now())
	if err := o.runStore.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(domain.WithTransport(ctx, cfg.Params.Transport))
	o.mu.Lock()
	o.activeRuns[run.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.activeRuns, run.ID)
		o.mu.Unlock()
		cancel()
	}()

	logger.Section("Run " + run.ID)
	logger.Info("run %s: content %s, configuration version %d", run.ID, item.ID, cfg.ID)

	rs := &runState{run: run, params: cfg.Params, content: item}
	end := o.execute(runCtx, rs)
	if end == nil {
		end = &stop{status: domain.RunCompleted}
	}

	// Finishing must survive the cancellation it may be recording.
	finishCtx := context.WithoutCancel(ctx)
	if err := run.Finish(end.status, end.reason, o.now()); err != nil {
		return run, err
	}
	if err := o.runStore.FinishRun(finishCtx, run); err != nil {
		return run, fmt.Errorf("finish run: %w", err)
	}

	if run.Status == domain.RunCompleted {
		logger.Info("run %s: %s with %d artifacts", run.ID, run.Status, len(run.Artifacts))
	} else {
		logger.Info("run %s: %s (%s)", run.ID, run.Status, run.Reason)
	}
	return run, nil
}

// execute advances the run through the stage sequence and hands off the result.
func (o *Orchestrator) execute(ctx context.Context, rs *runState) *stop {
	for _, kind := range domain.StageSequence() {
		if err := ctx.Err(); err != nil {
			return fail(kind, fmt.Errorf("%w before %s: %w", domain.ErrCancelled, kind, err))
		}

		sp := rs.params.Stage(kind)
		if !sp.Enabled {
			logger.Debug("run %s: %s disabled", rs.run.ID, kind)
			if s := o.record(ctx, rs, domain.StageExecution{
				ID:     uuid.New().String(),
				Stage:  kind,
				Status: domain.StageSkipped,
			}); s != nil {
				return s
			}
			continue
		}

		var s *stop
		switch kind {
		case domain.StageExtraction:
			s = o.runExtraction(ctx, rs)
		case domain.StageSimilarityDedup:
			s = o.runDedup(ctx, rs, sp)
		default:
			s = o.runModelStage(ctx, rs, kind, sp)
		}
		if s != nil {
			return s
		}
	}

	if err := ctx.Err(); err != nil {
		return fail("", fmt.Errorf("%w before hand-off: %w", domain.ErrCancelled, err))
	}
	return o.handOff(ctx, rs)
}

// runModelStage runs one model-backed stage under QA and applies its gate.
func (o *Orchestrator) runModelStage(ctx context.Context, rs *runState, kind domain.StageKind, sp domain.StageParams) *stop {
	st, err := o.stages.Get(kind)
	if err != nil {
		return fail(kind, err)
	}

	res := o.qa.Run(ctx, st, rs.input(kind), sp)
	bestEffort := res.Outcome != QAValidated && res.Outcome != QACancelled &&
		sp.OnFailure == domain.FailureProceed && isValidationFailure(res.Err)
	if bestEffort && len(res.Attempts) > 0 {
		res.Attempts[len(res.Attempts)-1].BestEffort = true
	}
	for _, exec := range res.Attempts {
		if s := o.record(ctx, rs, exec); s != nil {
			return s
		}
	}

	switch {
	case res.Outcome == QAValidated:
	case bestEffort:
		logger.Warn("run %s: %s failed validation, proceeding with best effort: %v", rs.run.ID, kind, res.Err)
	default:
		return fail(kind, res.Err)
	}

	o.apply(rs, kind, res.Result.Output)

	if res.Outcome == QAValidated && sp.IsGate() {
		if res.Result.Confidence == nil {
			return fail(kind, domain.Malformed("gate produced no confidence"))
		}
		conf, threshold := *res.Result.Confidence, *sp.Threshold
		if conf < threshold {
			return halt(kind, domain.ReasonThresholdNotMet, "confidence %.2f below threshold %.2f", conf, threshold)
		}
		logger.Debug("run %s: %s passed gate (%.2f >= %.2f)", rs.run.ID, kind, conf, threshold)
	}
	return nil
}

// apply folds a stage's output into the run state.
func (o *Orchestrator) apply(rs *runState, kind domain.StageKind, out domain.StageOutput) {
	switch kind {
	case domain.StageEnvironmentDetection:
		rs.env = out.Items
	case domain.StageRuleGeneration:
		now := o.now()
		for _, body := range out.Items {
			rule, err := stages.ParseRule(body)
			if err != nil {
				// Only best-effort output can get here.
				logger.Warn("run %s: dropping unparseable rule: %v", rs.run.ID, err)
				continue
			}
			rs.artifacts = append(rs.artifacts, domain.CandidateArtifact{
				ID:        uuid.New().String(),
				RunID:     rs.run.ID,
				Title:     rule.Title,
				Body:      rule.Body,
				CreatedAt: now,
			})
		}
	}
}

// runExtraction fans out to the sub-agents and records their history in
// canonical agent order, followed by the supervisor's own entry.
func (o *Orchestrator) runExtraction(ctx context.Context, rs *runState) *stop {
	started := o.now()
	in := rs.input(domain.StageExtraction)
	res := o.extraction.Run(ctx, rs.params, in)

	for _, r := range res.Results {
		for _, exec := range r.Attempts {
			if s := o.record(ctx, rs, exec); s != nil {
				return s
			}
		}
	}

	exec := domain.StageExecution{
		ID:          uuid.New().String(),
		Stage:       domain.StageExtraction,
		Attempt:     1,
		InputDigest: inputDigest(in),
		Output:      domain.StageOutput{Items: res.Items, Count: len(res.Items)},
		Status:      domain.StagePassed,
		StartedAt:   started,
		FinishedAt:  o.now(),
	}
	if res.Err != nil {
		exec.Status = domain.StageFailed
		exec.ErrorCode = domain.CodeOf(res.Err)
		exec.Error = res.Err.Error()
	}
	if s := o.record(ctx, rs, exec); s != nil {
		return s
	}

	if res.Err != nil {
		switch exec.ErrorCode {
		case domain.ReasonNothingExtracted:
			return halt(domain.StageExtraction, domain.ReasonNothingExtracted, "no sub-agent produced output")
		case domain.ReasonRequiredAgentDisabled:
			return halt(domain.StageExtraction, domain.ReasonRequiredAgentDisabled, "%v", res.Err)
		default:
			return fail(domain.StageExtraction, res.Err)
		}
	}
	rs.extracted = res.Items
	return nil
}

// runDedup checks every artifact against the reference corpus.
func (o *Orchestrator) runDedup(ctx context.Context, rs *runState, sp domain.StageParams) *stop {
	kind := domain.StageSimilarityDedup
	exec := domain.StageExecution{
		ID:        uuid.New().String(),
		Stage:     kind,
		Attempt:   1,
		StartedAt: o.now(),
	}
	if !rs.params.Similarity.Enabled || !o.similarity.Available() {
		logger.Debug("run %s: similarity unavailable, dedup skipped", rs.run.ID)
		exec.Status = domain.StageSkipped
		return o.record(ctx, rs, exec)
	}

	var flagged []string
	var checkErr error
	for i := range rs.artifacts {
		if err := o.similarity.Check(ctx, &rs.artifacts[i], rs.params.Similarity); err != nil {
			checkErr = err
			break
		}
		if rs.artifacts[i].Duplicate {
			flagged = append(flagged, rs.artifacts[i].ID)
		}
	}
	exec.FinishedAt = o.now()
	exec.Output = domain.StageOutput{Items: flagged, Count: len(flagged)}

	if checkErr == nil {
		exec.Status = domain.StagePassed
		return o.record(ctx, rs, exec)
	}

	exec.Status = domain.StageFailed
	exec.ErrorCode = domain.CodeOf(checkErr)
	exec.Error = checkErr.Error()
	proceed := sp.OnFailure == domain.FailureProceed && exec.ErrorCode != domain.ReasonCancelled
	exec.BestEffort = proceed
	if s := o.record(ctx, rs, exec); s != nil {
		return s
	}
	if !proceed {
		return fail(kind, checkErr)
	}
	logger.Warn("run %s: dedup failed, forwarding artifacts unchecked: %v", rs.run.ID, checkErr)
	return nil
}

// handOff stores the artifacts and pushes them to the review queue.
// Pushes are not transactional: when one fails, earlier items stay queued
// and carry their batch position so reviewers can spot the gap.
func (o *Orchestrator) handOff(ctx context.Context, rs *runState) *stop {
	rs.run.Artifacts = rs.artifacts
	if len(rs.artifacts) > 0 {
		if err := o.runStore.SaveArtifacts(ctx, rs.run.ID, rs.artifacts); err != nil {
			return fail("", fmt.Errorf("save artifacts: %w", err))
		}
	}
	if o.reviewQueue == nil {
		logger.Debug("run %s: no review queue configured", rs.run.ID)
		return nil
	}

	prov := domain.Provenance{
		RunID:         rs.run.ID,
		ContentID:     rs.run.Content.ID,
		ConfigVersion: rs.run.ConfigVersion,
		Confidences:   rs.run.ConfidenceTrail(),
	}
	prov.BatchSize = len(rs.artifacts)
	for i, a := range rs.artifacts {
		prov.BatchIndex = i + 1
		item := domain.ReviewItem{
			ArtifactID: a.ID,
			Title:      a.Title,
			Body:       a.Body,
			Duplicate:  a.Duplicate,
			Matches:    a.Matches,
			Provenance: prov,
			QueuedAt:   o.now(),
		}
		if err := o.reviewQueue.Push(ctx, item); err != nil {
			if ctx.Err() != nil {
				return fail("", fmt.Errorf("%w during hand-off (%d of %d queued): %w",
					domain.ErrCancelled, i, len(rs.artifacts), ctx.Err()))
			}
			return fail("", fmt.Errorf("%w: artifact %s (%d of %d queued): %w",
				domain.ErrHandoffFailed, a.ID, i, len(rs.artifacts), err))
		}
	}
	return nil
}

// record appends an execution to the run and the store.
func (o *Orchestrator) record(ctx context.Context, rs *runState, exec domain.StageExecution) *stop {
	if exec.FinishedAt.IsZero() {
		exec.FinishedAt = o.now()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = exec.FinishedAt
	}
	if err := rs.run.Append(exec); err != nil {
		return fail(exec.Stage, err)
	}
	exec.RunID = rs.run.ID
	// History is written even when the run is being cancelled.
	if err := o.runStore.AppendExecution(context.WithoutCancel(ctx), exec); err != nil {
		return fail(exec.Stage, fmt.Errorf("record %s attempt %d: %w", exec.Stage, exec.Attempt, err))
	}
	return nil
}

// Cancel requests cancellation of an in-flight run.
func (o *Orchestrator) Cancel(runID string) bool {
	o.mu.Lock()
	cancel, ok := o.activeRuns[runID]
	o.mu.Unlock()
	if ok {
		logger.Info("run %s: cancellation requested", runID)
		cancel()
	}
	return ok
}

// activeRunIDs returns the IDs of runs currently executing.
func (o *Orchestrator) activeRunIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.activeRuns))
	for id := range o.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

// GetRun retrieves a recorded run.
func (o *Orchestrator) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	return o.runStore.GetRun(ctx, id)
}

// ListRuns returns the most recent runs first.
func (o *Orchestrator) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	return o.runStore.ListRuns(ctx, limit)
}

// isValidationFailure reports whether err came from output validation,
// the only failure an on_failure: proceed policy may skip past.
func isValidationFailure(err error) bool {
	return errors.Is(err, domain.ErrMalformedOutput) || errors.Is(err, domain.ErrQARetryExhausted)
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
