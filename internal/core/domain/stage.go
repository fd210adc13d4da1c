package domain

import "time"

// StageKind identifies one analysis stage or extraction sub-agent.
// The set is closed: every kind the pipeline can run is declared here.
type StageKind string

// Top-level stages in pipeline order.
const (
	StageEnvironmentDetection StageKind = "environment_detection"
	StageRelevanceFilter      StageKind = "relevance_filter"
	StageRanking              StageKind = "ranking"
	StageExtraction           StageKind = "extraction"
	StageRuleGeneration       StageKind = "rule_generation"
	StageSimilarityDedup      StageKind = "similarity_dedup"
)

// Extraction sub-agents fanned out by the extraction supervisor.
const (
	AgentCommandLine    StageKind = "extract_cmdline"
	AgentProcessLineage StageKind = "extract_process_lineage"
	AgentRegistry       StageKind = "extract_registry"
	AgentObservables    StageKind = "extract_observables"
	AgentHuntQueries    StageKind = "extract_hunt_queries"
)

// StageSequence returns the top-level stages in execution order.
func StageSequence() []StageKind {
	return []StageKind{
		StageEnvironmentDetection,
		StageRelevanceFilter,
		StageRanking,
		StageExtraction,
		StageRuleGeneration,
		StageSimilarityDedup,
	}
}

// SubAgentKinds returns the extraction sub-agents in aggregation order.
func SubAgentKinds() []StageKind {
	return []StageKind{
		AgentCommandLine,
		AgentProcessLineage,
		AgentRegistry,
		AgentObservables,
		AgentHuntQueries,
	}
}

// AllStageKinds returns every kind that can carry StageParams.
func AllStageKinds() []StageKind {
	kinds := make([]StageKind, 0, 11)
	kinds = append(kinds, StageSequence()...)
	return append(kinds, SubAgentKinds()...)
}

// IsValid returns true if the kind is recognised.
func (k StageKind) IsValid() bool {
	for _, known := range AllStageKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsSubAgent returns true for extraction sub-agents.
func (k StageKind) IsSubAgent() bool {
	for _, agent := range SubAgentKinds() {
		if k == agent {
			return true
		}
	}
	return false
}

// UsesModel returns true if the stage delegates to a language model.
// The supervisor and the dedup stage are orchestration-only.
func (k StageKind) UsesModel() bool {
	return k.IsValid() && k != StageExtraction && k != StageSimilarityDedup
}

// String returns the string representation.
func (k StageKind) String() string {
	return string(k)
}

// StageStatus is the lifecycle state of one stage attempt.
type StageStatus string

// Stage attempt states.
const (
	StagePending  StageStatus = "PENDING"
	StageRunning  StageStatus = "RUNNING"
	StageQAReview StageStatus = "QA_REVIEW"
	StageRetry    StageStatus = "RETRY"
	StagePassed   StageStatus = "PASSED"
	StageFailed   StageStatus = "FAILED"
	StageSkipped  StageStatus = "SKIPPED"
)

// IsTerminal returns true once the attempt can no longer change.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageRetry, StagePassed, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// StageOutput is the normalised structured output of a stage.
type StageOutput struct {
	Items     []string `json:"items"`
	Count     int      `json:"count"`
	Rationale string   `json:"rationale,omitempty"`
}

// Empty returns true if the output carries no items.
func (o StageOutput) Empty() bool {
	return len(o.Items) == 0
}

// StageExecution records one attempt of one stage.
// Executions are appended to a run and never rewritten.
type StageExecution struct {
	ID          string
	RunID       string
	Stage       StageKind
	Attempt     int
	InputDigest string
	Output      StageOutput
	Confidence  *float64
	Status      StageStatus
	ErrorCode   ReasonCode
	Error       string
	Feedback    string

	// BestEffort marks a terminal FAILED attempt the orchestrator proceeded past
	// because the stage policy says proceed.
	BestEffort bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the attempt took.
func (e StageExecution) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// SubAgentResult is the outcome of one sub-agent within a fan-out.
type SubAgentResult struct {
	Agent      StageKind
	Enabled    bool
	Status     StageStatus
	Output     StageOutput
	Attempts   []StageExecution
	Err        error
	Confidence *float64
}

// Passed returns true if the sub-agent produced validated output.
func (r SubAgentResult) Passed() bool {
	return r.Enabled && r.Status == StagePassed
}

// Float returns a pointer to v. Used for optional confidences and thresholds.
func Float(v float64) *float64 {
	return &v
}
