package domain

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run states. Only RUNNING is non-terminal.
const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunHalted    RunStatus = "HALTED"
	RunFailed    RunStatus = "FAILED"
)

// IsTerminal returns true once the run has left RUNNING.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunHalted || s == RunFailed
}

// IsValid returns true if the status is recognised.
func (s RunStatus) IsValid() bool {
	return s == RunRunning || s.IsTerminal()
}

// Reason explains why a run stopped.
type Reason struct {
	Code    ReasonCode
	Message string
	Stage   StageKind
}

// String returns a human-readable reason.
func (r Reason) String() string {
	if r.Code == ReasonNone {
		return ""
	}
	if r.Stage != "" {
		return fmt.Sprintf("%s at %s: %s", r.Code, r.Stage, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// ContentItem is raw intelligence handed over by the ingestion collaborator.
type ContentItem struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ContentRef is how a run refers to its content without owning it.
type ContentRef struct {
	ID     string
	Digest string
}

// StageConfidence is one entry of a run's confidence trail.
type StageConfidence struct {
	Stage      StageKind   `json:"stage"`
	Attempt    int         `json:"attempt"`
	Status     StageStatus `json:"status"`
	Confidence *float64    `json:"confidence,omitempty"`
}

// PipelineRun is one execution of the pipeline over one content item.
type PipelineRun struct {
	ID            string
	Content       ContentRef
	ConfigVersion int64
	CurrentStage  StageKind
	Status        RunStatus
	Reason        Reason
	Executions    []StageExecution
	Artifacts     []CandidateArtifact
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPipelineRun creates a RUNNING run pinned to a configuration version.
func NewPipelineRun(id string, content ContentRef, version int64, now time.Time) *PipelineRun {
	return &PipelineRun{
		ID:            id,
		Content:       content,
		ConfigVersion: version,
		Status:        RunRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Append records a stage attempt. Terminal runs reject new history.
func (r *PipelineRun) Append(exec StageExecution) error {
	if r.Status.IsTerminal() {
		return ErrRunTerminal
	}
	exec.RunID = r.ID
	r.Executions = append(r.Executions, exec)
	r.CurrentStage = exec.Stage
	r.UpdatedAt = exec.FinishedAt
	return nil
}

// Finish moves the run to a terminal status exactly once.
func (r *PipelineRun) Finish(status RunStatus, reason Reason, now time.Time) error {
	if r.Status.IsTerminal() {
		return ErrRunTerminal
	}
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidInput, status)
	}
	r.Status = status
	r.Reason = reason
	r.UpdatedAt = now
	return nil
}

// AttemptsFor returns the recorded attempts of one stage, in order.
func (r *PipelineRun) AttemptsFor(kind StageKind) []StageExecution {
	var out []StageExecution
	for _, exec := range r.Executions {
		if exec.Stage == kind {
			out = append(out, exec)
		}
	}
	return out
}

// ConfidenceTrail lists every recorded attempt with its confidence.
func (r *PipelineRun) ConfidenceTrail() []StageConfidence {
	trail := make([]StageConfidence, 0, len(r.Executions))
	for _, exec := range r.Executions {
		trail = append(trail, StageConfidence{
			Stage:      exec.Stage,
			Attempt:    exec.Attempt,
			Status:     exec.Status,
			Confidence: exec.Confidence,
		})
	}
	return trail
}

// FinalConfidences returns the confidence of the last attempt of each stage that produced one.
func (r *PipelineRun) FinalConfidences() map[StageKind]float64 {
	out := make(map[StageKind]float64)
	for _, exec := range r.Executions {
		if exec.Confidence != nil {
			out[exec.Stage] = *exec.Confidence
		}
	}
	return out
}
