package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrRunTerminal indicates a run has already left the RUNNING state.
	ErrRunTerminal = errors.New("run already terminal")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the reference index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch indicates a vector does not match the index dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// Pipeline Errors.

	// ErrMalformedOutput indicates a stage produced output that failed schema validation.
	ErrMalformedOutput = errors.New("malformed output")

	// ErrProviderUnavailable indicates a transport failure or timeout talking to a provider.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThresholdNotMet indicates a gate confidence fell below its threshold.
	// It is a controlled halt, never reported as a failure.
	ErrThresholdNotMet = errors.New("threshold not met")

	// ErrQARetryExhausted indicates the QA loop ran out of attempts.
	ErrQARetryExhausted = errors.New("QA retry exhausted")

	// ErrConfigurationNotFound indicates the requested configuration version does not exist.
	ErrConfigurationNotFound = fmt.Errorf("configuration %w", ErrNotFound)

	// ErrCancelled indicates the caller cancelled the run.
	ErrCancelled = errors.New("cancelled")

	// ErrNothingExtracted indicates no sub-agent produced usable output.
	ErrNothingExtracted = errors.New("nothing extracted")

	// ErrRequiredAgentDisabled indicates a required sub-agent is disabled and the
	// snapshot asks for a halt in that case.
	ErrRequiredAgentDisabled = errors.New("required sub-agent disabled")

	// ErrHandoffFailed indicates the review queue rejected an artifact.
	ErrHandoffFailed = errors.New("review hand-off failed")
)

// ReasonCode is the machine-readable cause recorded on a halted or failed run.
type ReasonCode string

// Reason codes mirror the pipeline error taxonomy.
const (
	ReasonNone                  ReasonCode = ""
	ReasonMalformedOutput       ReasonCode = "MalformedOutput"
	ReasonProviderUnavailable   ReasonCode = "ProviderUnavailable"
	ReasonThresholdNotMet       ReasonCode = "ThresholdNotMet"
	ReasonQARetryExhausted      ReasonCode = "QARetryExhausted"
	ReasonConfigurationNotFound ReasonCode = "ConfigurationNotFound"
	ReasonCancelled             ReasonCode = "Cancelled"
	ReasonNothingExtracted      ReasonCode = "NothingExtracted"
	ReasonRequiredAgentDisabled ReasonCode = "RequiredAgentDisabled"
	ReasonHandoffFailed         ReasonCode = "HandoffFailed"
	ReasonInternal              ReasonCode = "Internal"
)

// Retryable reports whether the transport layer may retry an error with this code.
func (c ReasonCode) Retryable() bool {
	return c == ReasonProviderUnavailable
}

// CodeOf maps an error chain onto the pipeline taxonomy.
// Context cancellation and deadline errors surface as Cancelled and
// ProviderUnavailable respectively.
func CodeOf(err error) ReasonCode {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrThresholdNotMet):
		return ReasonThresholdNotMet
	case errors.Is(err, ErrQARetryExhausted):
		return ReasonQARetryExhausted
	case errors.Is(err, ErrMalformedOutput):
		return ReasonMalformedOutput
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ReasonProviderUnavailable
	case errors.Is(err, ErrConfigurationNotFound):
		return ReasonConfigurationNotFound
	case errors.Is(err, ErrNothingExtracted):
		return ReasonNothingExtracted
	case errors.Is(err, ErrRequiredAgentDisabled):
		return ReasonRequiredAgentDisabled
	case errors.Is(err, ErrHandoffFailed):
		return ReasonHandoffFailed
	default:
		return ReasonInternal
	}
}

// StageError ties a failure to the stage and attempt that produced it.
type StageError struct {
	Stage   StageKind
	Attempt int
	Err     error
}

// Error implements error.
func (e *StageError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("stage %s (attempt %d): %v", e.Stage, e.Attempt, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Malformed wraps a validation message as ErrMalformedOutput.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedOutput, fmt.Sprintf(format, args...))
}
