package stages

import (
	"context"
	"fmt"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Input is what a stage sees on one attempt.
type Input struct {
	// Content is the normalised content under analysis.
	Content domain.ContentItem

	// Environment lists the platforms reported by environment detection.
	Environment []string

	// Items carries upstream output, such as aggregated extraction results
	// for rule generation.
	Items []string

	// Feedback holds corrective guidance from earlier failed attempts, oldest first.
	Feedback []string
}

// WithFeedback returns a copy of in with one more piece of guidance appended.
func (in Input) WithFeedback(note string) Input {
	out := in
	out.Feedback = append(append([]string(nil), in.Feedback...), note)
	return out
}

// Result is the validated output of one attempt.
type Result struct {
	Output     domain.StageOutput
	Confidence *float64

	// Raw is the unparsed model response, kept for review and debugging.
	Raw string
}

// Stage is one analysis step.
type Stage interface {
	// Kind returns the stage kind this variant implements.
	Kind() domain.StageKind

	// Execute runs one attempt. Errors wrap domain.ErrMalformedOutput when the
	// output failed validation and domain.ErrProviderUnavailable when the
	// model could not be reached in time.
	Execute(ctx context.Context, in Input, params domain.StageParams) (Result, error)
}

// Set is the closed registry of stage variants.
type Set struct {
	stages map[domain.StageKind]Stage
}

// NewSet builds every model-backed stage over the given LLM service.
// llm may be nil; every stage then fails with ProviderUnavailable.
func NewSet(llm driven.LLMService) *Set {
	base := func(kind domain.StageKind) llmStage {
		return llmStage{kind: kind, llm: llm}
	}
	all := []Stage{
		&EnvironmentDetection{llmStage: base(domain.StageEnvironmentDetection)},
		&RelevanceFilter{llmStage: base(domain.StageRelevanceFilter)},
		&Ranking{llmStage: base(domain.StageRanking)},
		&CommandLineAgent{subAgent{base(domain.AgentCommandLine)}},
		&ProcessLineageAgent{subAgent{base(domain.AgentProcessLineage)}},
		&RegistryAgent{subAgent{base(domain.AgentRegistry)}},
		&ObservablesAgent{subAgent{base(domain.AgentObservables)}},
		&HuntQueryAgent{subAgent{base(domain.AgentHuntQueries)}},
		&RuleGeneration{llmStage: base(domain.StageRuleGeneration)},
	}
	s := &Set{stages: make(map[domain.StageKind]Stage, len(all))}
	for _, st := range all {
		s.stages[st.Kind()] = st
	}
	return s
}

// Get returns the stage for kind.
func (s *Set) Get(kind domain.StageKind) (Stage, error) {
	st, ok := s.stages[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no stage implements %s", domain.ErrInvalidInput, kind)
	}
	return st, nil
}

// Replace swaps the variant for its kind. Tests use it to inject fakes.
func (s *Set) Replace(st Stage) {
	s.stages[st.Kind()] = st
}

// kinds returns the kinds held by the set.
func (s *Set) kinds() []domain.StageKind {
	out := make([]domain.StageKind, 0, len(s.stages))
	for _, k := range domain.AllStageKinds() {
		if _, ok := s.stages[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
