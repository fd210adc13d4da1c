package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// ExtractionResult is the joined outcome of one fan-out.
type ExtractionResult struct {
	// Results holds one entry per enabled sub-agent in canonical agent order.
	Results []domain.SubAgentResult

	// Items is the deduplicated union of every passed sub-agent's output.
	Items []string

	// Err is set when the fan-out must stop the run: a required sub-agent
	// failed or is disabled under a halt policy, or nothing was extracted.
	Err error
}

// ExtractionSupervisor fans content out to the enabled sub-agents and
// aggregates what they find.
type ExtractionSupervisor struct {
	stages *stages.Set
	qa     *QAEngine
}

// NewExtractionSupervisor creates a supervisor over the given stages.
func NewExtractionSupervisor(set *stages.Set, qa *QAEngine) *ExtractionSupervisor {
	return &ExtractionSupervisor{
		stages: set,
		qa:     qa,
	}
}

// Run invokes every enabled sub-agent concurrently, each under its own QA
// loop and timeout, and joins them before aggregating. Disabled sub-agents
// are not invoked and leave no trace. A failed sub-agent contributes
// nothing; it stops the run only when marked required.
func (s *ExtractionSupervisor) Run(ctx context.Context, params domain.PipelineParams, in stages.Input) ExtractionResult {
	var enabled []domain.StageKind
	for _, kind := range domain.SubAgentKinds() {
		sp := params.Stage(kind)
		if sp.Enabled {
			enabled = append(enabled, kind)
			continue
		}
		if !sp.Required {
			logger.Debug("extraction: %s disabled", kind)
			continue
		}
		if sp.OnDisabledRequired == domain.DisabledRequiredHalt {
			return ExtractionResult{
				Err: fmt.Errorf("%w: %s", domain.ErrRequiredAgentDisabled, kind),
			}
		}
		logger.Info("extraction: required agent %s disabled, treated as satisfied", kind)
	}

	results := make([]domain.SubAgentResult, len(enabled))
	var g errgroup.Group
	for i, kind := range enabled {
		g.Go(func() error {
			results[i] = s.runAgent(ctx, kind, params.Stage(kind), in)
			return nil
		})
	}
	_ = g.Wait()

	out := ExtractionResult{Results: results}
	seen := make(map[string]struct{})
	for _, r := range results {
		if !r.Passed() {
			if params.Stage(r.Agent).Required {
				out.Err = fmt.Errorf("required agent %s failed: %w", r.Agent, r.Err)
				return out
			}
			logger.Warn("extraction: %s contributed nothing: %v", r.Agent, r.Err)
			continue
		}
		for _, item := range r.Output.Items {
			if _, dup := seen[item]; dup {
				continue
			}
			seen[item] = struct{}{}
			out.Items = append(out.Items, item)
		}
	}

	if len(out.Items) == 0 {
		if err := ctx.Err(); err != nil {
			out.Err = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
		} else {
			out.Err = domain.ErrNothingExtracted
		}
	}
	return out
}

func (s *ExtractionSupervisor) runAgent(ctx context.Context, kind domain.StageKind, sp domain.StageParams, in stages.Input) domain.SubAgentResult {
	res := domain.SubAgentResult{Agent: kind, Enabled: true}

	st, err := s.stages.Get(kind)
	if err != nil {
		res.Status = domain.StageFailed
		res.Err = err
		return res
	}

	// The QA engine bounds the whole loop, so a slow agent cannot hold the join.
	qa := s.qa.Run(ctx, st, in, sp)
	res.Attempts = qa.Attempts
	res.Output = qa.Result.Output
	res.Confidence = qa.Result.Confidence
	res.Err = qa.Err
	if qa.Outcome == QAValidated {
		res.Status = domain.StagePassed
	} else {
		res.Status = domain.StageFailed
	}
	return res
}
