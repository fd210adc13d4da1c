package stages

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// EnvironmentDetection identifies the platforms the content concerns.
type EnvironmentDetection struct {
	llmStage
}

// Execute implements Stage.
func (s *EnvironmentDetection) Execute(ctx context.Context, in Input, params domain.StageParams) (Result, error) {
	env, raw, err := s.invoke(ctx, in, params)
	if err != nil {
		return Result{Raw: raw}, err
	}
	if len(env.Items) == 0 {
		return Result{Raw: raw}, domain.Malformed("at least one environment is required")
	}
	return env.result(raw), nil
}

// RelevanceFilter scores whether the content is worth turning into detections.
type RelevanceFilter struct {
	llmStage
}

// Execute implements Stage.
func (s *RelevanceFilter) Execute(ctx context.Context, in Input, params domain.StageParams) (Result, error) {
	env, raw, err := s.invoke(ctx, in, params)
	if err != nil {
		return Result{Raw: raw}, err
	}
	if err := requireConfidence(env); err != nil {
		return Result{Raw: raw}, err
	}
	return env.result(raw), nil
}

// Ranking scores the detection value of relevant content.
type Ranking struct {
	llmStage
}

// Execute implements Stage.
func (s *Ranking) Execute(ctx context.Context, in Input, params domain.StageParams) (Result, error) {
	env, raw, err := s.invoke(ctx, in, params)
	if err != nil {
		return Result{Raw: raw}, err
	}
	if err := requireConfidence(env); err != nil {
		return Result{Raw: raw}, err
	}
	return env.result(raw), nil
}

// subAgent is the shared behaviour of extraction sub-agents. An agent that
// finds nothing returns an empty item list, which is a valid result.
type subAgent struct {
	llmStage
}

// Execute implements Stage.
func (s *subAgent) Execute(ctx context.Context, in Input, params domain.StageParams) (Result, error) {
	env, raw, err := s.invoke(ctx, in, params)
	if err != nil {
		return Result{Raw: raw}, err
	}
	return env.result(raw), nil
}

// CommandLineAgent extracts command lines and their arguments.
type CommandLineAgent struct {
	subAgent
}

// ProcessLineageAgent extracts parent and child process relationships.
type ProcessLineageAgent struct {
	subAgent
}

// RegistryAgent extracts registry keys and values.
type RegistryAgent struct {
	subAgent
}

// ObservablesAgent extracts host and network observables such as hashes,
// file paths, domains and addresses.
type ObservablesAgent struct {
	subAgent
}

// HuntQueryAgent extracts hunt queries quoted in the content.
type HuntQueryAgent struct {
	subAgent
}

// RuleGeneration drafts detection rules from the aggregated extraction.
// Each item is one YAML rule body.
type RuleGeneration struct {
	llmStage
}

// Execute implements Stage.
func (s *RuleGeneration) Execute(ctx context.Context, in Input, params domain.StageParams) (Result, error) {
	env, raw, err := s.invoke(ctx, in, params)
	if err != nil {
		return Result{Raw: raw}, err
	}
	if len(env.Items) == 0 {
		return Result{Raw: raw}, domain.Malformed("at least one rule is required")
	}
	for i, body := range env.Items {
		if _, err := ParseRule(body); err != nil {
			return Result{Raw: raw}, domain.Malformed("rule %d: %v", i+1, err)
		}
	}
	return env.result(raw), nil
}
