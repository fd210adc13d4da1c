package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Retry limit bounds for the QA loop.
const (
	MinRetries        = 1
	MaxRetriesCeiling = 5
	DefaultMaxRetries = 3
)

// MaxTransportAttempts caps transport-level attempts of one provider call.
const MaxTransportAttempts = 8

// FailurePolicy decides what the orchestrator does when a stage fails validation.
type FailurePolicy string

// Failure policies.
const (
	// FailureHalt stops the run with FAILED status.
	FailureHalt FailurePolicy = "halt"

	// FailureProceed continues with the best-effort output of the stage.
	FailureProceed FailurePolicy = "proceed"
)

// IsValid returns true if the policy is recognised.
func (p FailurePolicy) IsValid() bool {
	return p == FailureHalt || p == FailureProceed
}

// DisabledRequiredPolicy decides how a required but disabled sub-agent is treated.
type DisabledRequiredPolicy string

// Disabled-required policies.
const (
	// DisabledRequiredHalt halts the run before extraction.
	DisabledRequiredHalt DisabledRequiredPolicy = "halt"

	// DisabledRequiredSatisfied treats the requirement as vacuously met.
	DisabledRequiredSatisfied DisabledRequiredPolicy = "satisfied"
)

// IsValid returns true if the policy is recognised.
func (p DisabledRequiredPolicy) IsValid() bool {
	return p == DisabledRequiredHalt || p == DisabledRequiredSatisfied
}

// StageParams configures one stage or sub-agent.
type StageParams struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Prompt      string  `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Threshold makes the stage a gate when set.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	QAEnabled  bool          `json:"qa_enabled" yaml:"qa_enabled"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	OnFailure  FailurePolicy `json:"on_failure" yaml:"on_failure"`

	// Required and OnDisabledRequired only apply to sub-agents.
	Required           bool                   `json:"required,omitempty" yaml:"required,omitempty"`
	OnDisabledRequired DisabledRequiredPolicy `json:"on_disabled_required,omitempty" yaml:"on_disabled_required,omitempty"`

	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// IsGate returns true if the stage compares its confidence to a threshold.
func (p StageParams) IsGate() bool {
	return p.Threshold != nil
}

// AttemptLimit returns how many attempts the stage may make.
// Without QA a stage gets exactly one attempt.
func (p StageParams) AttemptLimit() int {
	if !p.QAEnabled {
		return 1
	}
	if p.MaxRetries < MinRetries {
		return MinRetries
	}
	if p.MaxRetries > MaxRetriesCeiling {
		return MaxRetriesCeiling
	}
	return p.MaxRetries
}

// Timeout returns the per-attempt timeout, or zero for none.
func (p StageParams) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SimilarityParams configures the dedup stage.
type SimilarityParams struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	DuplicateThreshold float64 `json:"duplicate_threshold" yaml:"duplicate_threshold"`
	MatchFloor         float64 `json:"match_floor" yaml:"match_floor"`
	TopK               int     `json:"top_k" yaml:"top_k"`
	EmbeddingModel     string  `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	TimeoutSeconds     int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the per-query timeout, or zero for none.
func (p SimilarityParams) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// TransportParams bounds transport-level retries of external calls.
type TransportParams struct {
	MaxAttempts       int `json:"max_attempts" yaml:"max_attempts"`
	BaseBackoffMillis int `json:"base_backoff_millis" yaml:"base_backoff_millis"`
}

// PipelineParams is the full parameter set captured by a configuration snapshot.
type PipelineParams struct {
	Stages     map[StageKind]StageParams `json:"stages" yaml:"stages"`
	Similarity SimilarityParams          `json:"similarity" yaml:"similarity"`
	Transport  TransportParams           `json:"transport" yaml:"transport"`
}

// Stage returns the params for a kind. Unknown kinds come back disabled.
func (p PipelineParams) Stage(kind StageKind) StageParams {
	if p.Stages == nil {
		return StageParams{}
	}
	return p.Stages[kind]
}

// Validate checks the invariants a snapshot must satisfy before it is saved.
func (p PipelineParams) Validate() error {
	for kind, sp := range p.Stages {
		if !kind.IsValid() {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, kind)
		}
		if !sp.OnFailure.IsValid() {
			return fmt.Errorf("%w: stage %s: on_failure must be %q or %q",
				ErrInvalidInput, kind, FailureHalt, FailureProceed)
		}
		if sp.QAEnabled && (sp.MaxRetries < MinRetries || sp.MaxRetries > MaxRetriesCeiling) {
			return fmt.Errorf("%w: stage %s: max_retries must be between %d and %d",
				ErrInvalidInput, kind, MinRetries, MaxRetriesCeiling)
		}
		if sp.Threshold != nil && (*sp.Threshold < 0 || *sp.Threshold > 1) {
			return fmt.Errorf("%w: stage %s: threshold must be within [0,1]", ErrInvalidInput, kind)
		}
		if sp.Temperature < 0 || sp.TopP < 0 || sp.TopP > 1 {
			return fmt.Errorf("%w: stage %s: sampling parameters out of range", ErrInvalidInput, kind)
		}
		if sp.TimeoutSeconds < 0 {
			return fmt.Errorf("%w: stage %s: timeout must not be negative", ErrInvalidInput, kind)
		}
		if kind.IsSubAgent() && sp.Required && !sp.OnDisabledRequired.IsValid() {
			return fmt.Errorf("%w: sub-agent %s: on_disabled_required must be %q or %q",
				ErrInvalidInput, kind, DisabledRequiredHalt, DisabledRequiredSatisfied)
		}
	}
	s := p.Similarity
	if s.DuplicateThreshold < 0 || s.DuplicateThreshold > 1 || s.MatchFloor < 0 || s.MatchFloor > 1 {
		return fmt.Errorf("%w: similarity thresholds must be within [0,1]", ErrInvalidInput)
	}
	if s.Enabled && s.TopK <= 0 {
		return fmt.Errorf("%w: similarity top_k must be positive", ErrInvalidInput)
	}
	if p.Transport.MaxAttempts < 0 || p.Transport.BaseBackoffMillis < 0 {
		return fmt.Errorf("%w: transport limits must not be negative", ErrInvalidInput)
	}
	if p.Transport.MaxAttempts > MaxTransportAttempts {
		return fmt.Errorf("%w: transport max_attempts must not exceed %d", ErrInvalidInput, MaxTransportAttempts)
	}
	return nil
}

// Canonical returns the byte-exact JSON encoding used as the snapshot body.
// Map keys are sorted by encoding/json, so equal params encode identically.
func (p PipelineParams) Canonical() ([]byte, error) {
	return json.Marshal(p)
}

// DecodeParams parses a canonical snapshot body.
func DecodeParams(raw []byte) (PipelineParams, error) {
	var p PipelineParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return PipelineParams{}, fmt.Errorf("decode params: %w", err)
	}
	return p, nil
}

// ConfigurationVersion is an immutable snapshot of pipeline parameters.
type ConfigurationVersion struct {
	ID           int64
	Params       PipelineParams
	Raw          []byte
	Note         string
	RestoredFrom *int64
	CreatedAt    time.Time
}

// DefaultPipelineParams returns a conservative, fully explicit parameter set.
// Cost-gating stages halt on failure; advisory stages proceed.
func DefaultPipelineParams() PipelineParams {
	advisory := func(maxTokens int) StageParams {
		return StageParams{
			Enabled:        true,
			Temperature:    0.2,
			TopP:           1,
			MaxTokens:      maxTokens,
			QAEnabled:      true,
			MaxRetries:     DefaultMaxRetries,
			OnFailure:      FailureProceed,
			TimeoutSeconds: 60,
		}
	}
	gate := func(threshold float64) StageParams {
		return StageParams{
			Enabled:        true,
			Temperature:    0,
			TopP:           1,
			MaxTokens:      512,
			Threshold:      Float(threshold),
			QAEnabled:      true,
			MaxRetries:     DefaultMaxRetries,
			OnFailure:      FailureHalt,
			TimeoutSeconds: 60,
		}
	}

	stages := map[StageKind]StageParams{
		StageEnvironmentDetection: advisory(512),
		StageRelevanceFilter:      gate(0.6),
		StageRanking:              gate(0.5),
		StageExtraction: {
			Enabled:   true,
			OnFailure: FailureHalt,
		},
		StageRuleGeneration: {
			Enabled:        true,
			Temperature:    0.2,
			TopP:           1,
			MaxTokens:      4096,
			QAEnabled:      true,
			MaxRetries:     DefaultMaxRetries,
			OnFailure:      FailureHalt,
			TimeoutSeconds: 120,
		},
		StageSimilarityDedup: {
			Enabled:   true,
			OnFailure: FailureProceed,
		},
	}
	ranking := stages[StageRanking]
	ranking.Enabled = false
	stages[StageRanking] = ranking

	for _, agent := range SubAgentKinds() {
		sp := advisory(2048)
		sp.OnDisabledRequired = DisabledRequiredSatisfied
		stages[agent] = sp
	}

	return PipelineParams{
		Stages: stages,
		Similarity: SimilarityParams{
			Enabled:            true,
			DuplicateThreshold: 0.95,
			MatchFloor:         0.5,
			TopK:               5,
			TimeoutSeconds:     30,
		},
		Transport: TransportParams{
			MaxAttempts:       3,
			BaseBackoffMillis: 500,
		},
	}
}
