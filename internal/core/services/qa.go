package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Reviewer judges stage output that already passed schema validation.
type Reviewer interface {
	Review(ctx context.Context, kind domain.StageKind, in stages.Input, res stages.Result) (stages.Verdict, error)
}

// QAOutcome is how a QA loop ended.
type QAOutcome string

// QA loop exit states.
const (
	// QAValidated means an attempt passed every validator.
	QAValidated QAOutcome = "validated"

	// QAExhausted means every allowed attempt failed validation.
	QAExhausted QAOutcome = "exhausted"

	// QAFailed means an attempt failed in a way retrying cannot fix.
	QAFailed QAOutcome = "failed"

	// QACancelled means the caller cancelled the loop.
	QACancelled QAOutcome = "cancelled"
)

// QAResult is the outcome of one QA loop over one stage.
type QAResult struct {
	Outcome QAOutcome

	// Result is the output of the last attempt. Only trustworthy when validated.
	Result stages.Result

	// Attempts lists every attempt in order. Earlier failures are RETRY,
	// the last one is PASSED or FAILED.
	Attempts []domain.StageExecution

	// Err is set unless the outcome is validated.
	Err error
}

// QAEngine wraps a stage with a bounded validate-and-retry loop.
type QAEngine struct {
	reviewer Reviewer
	now      func() time.Time
}

// NewQAEngine creates a QA engine. reviewer is optional; without it only
// the stage's own schema checks validate output.
func NewQAEngine(reviewer Reviewer) *QAEngine {
	return &QAEngine{
		reviewer: reviewer,
		now:      time.Now,
	}
}

// Run executes st until it validates, the attempt limit from params is
// reached, a non-retryable error occurs or ctx is cancelled.
// The loop never makes more than params.AttemptLimit() attempts.
// The stage timeout applies to each model call; the loop as a whole,
// reviewer calls included, gets one timeout per allowed attempt.
func (q *QAEngine) Run(ctx context.Context, st stages.Stage, in stages.Input, params domain.StageParams) QAResult {
	kind := st.Kind()
	limit := params.AttemptLimit()
	var out QAResult

	if timeout := params.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(limit)*timeout)
		defer cancel()
	}

	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				out.Outcome = QAFailed
				out.Err = &domain.StageError{Stage: kind, Attempt: attempt,
					Err: fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)}
				return out
			}
			out.Outcome = QACancelled
			out.Err = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
			return out
		}

		exec := domain.StageExecution{
			ID:          uuid.New().String(),
			Stage:       kind,
			Attempt:     attempt,
			InputDigest: inputDigest(in),
			StartedAt:   q.now(),
		}
		logger.Debug("stage %s: attempt %d/%d %s", kind, attempt, limit, domain.StageRunning)

		res, err := st.Execute(ctx, in, params)
		feedback := ""
		if err == nil && params.QAEnabled && q.reviewer != nil {
			logger.Debug("stage %s: attempt %d %s", kind, attempt, domain.StageQAReview)
			feedback, err = q.review(ctx, kind, in, res)
		}
		if err != nil && feedback == "" && errors.Is(err, domain.ErrMalformedOutput) {
			feedback = correction(err)
		}

		exec.FinishedAt = q.now()
		exec.Output = res.Output
		exec.Confidence = res.Confidence
		out.Result = res

		if err == nil {
			exec.Status = domain.StagePassed
			out.Attempts = append(out.Attempts, exec)
			out.Outcome = QAValidated
			return out
		}

		exec.Error = err.Error()
		exec.ErrorCode = domain.CodeOf(err)
		exec.Feedback = feedback

		switch {
		case exec.ErrorCode == domain.ReasonCancelled:
			exec.Status = domain.StageFailed
			out.Attempts = append(out.Attempts, exec)
			out.Outcome = QACancelled
			out.Err = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
			return out

		case !errors.Is(err, domain.ErrMalformedOutput):
			exec.Status = domain.StageFailed
			out.Attempts = append(out.Attempts, exec)
			out.Outcome = QAFailed
			out.Err = &domain.StageError{Stage: kind, Attempt: attempt, Err: err}
			return out

		case attempt < limit:
			logger.Debug("stage %s: attempt %d rejected, retrying: %s", kind, attempt, feedback)
			exec.Status = domain.StageRetry
			out.Attempts = append(out.Attempts, exec)
			in = in.WithFeedback(feedback)
		default:
			exec.Status = domain.StageFailed
			out.Outcome = QAFailed
			if params.QAEnabled {
				err = fmt.Errorf("%w after %d attempts: %w", domain.ErrQARetryExhausted, limit, err)
				exec.ErrorCode = domain.ReasonQARetryExhausted
				exec.Error = err.Error()
				out.Outcome = QAExhausted
			}
			out.Attempts = append(out.Attempts, exec)
			out.Err = &domain.StageError{Stage: kind, Attempt: attempt, Err: err}
			logger.Warn("stage %s: %v", kind, err)
			return out
		}
	}

	// Unreachable while AttemptLimit is at least one.
	out.Outcome = QAExhausted
	out.Err = &domain.StageError{Stage: kind, Err: domain.ErrQARetryExhausted}
	return out
}

// review runs the optional reviewer. A rejection comes back as malformed
// output with the reviewer's feedback. A reviewer that cannot be reached or
// answers nonsense does not fail an attempt the schema already accepted.
func (q *QAEngine) review(ctx context.Context, kind domain.StageKind, in stages.Input, res stages.Result) (string, error) {
	verdict, err := q.reviewer.Review(ctx, kind, in, res)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("stage %s: reviewer unavailable, accepting schema-valid output: %v", kind, err)
		return "", nil
	}
	if verdict.Pass {
		return "", nil
	}
	return verdict.Feedback, domain.Malformed("rejected by reviewer: %s", verdict.Feedback)
}

// correction turns a validation error into guidance for the next attempt.
func correction(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, domain.ErrMalformedOutput.Error()+": ")
	return "Your previous response was invalid (" + msg + "). Return only the JSON object described in the instructions."
}

// inputDigest fingerprints everything an attempt saw.
func inputDigest(in stages.Input) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write("content", in.Content.ID, in.Content.Text)
	write("environment")
	write(in.Environment...)
	write("items")
	write(in.Items...)
	write("feedback")
	write(in.Feedback...)
	return hex.EncodeToString(h.Sum(nil))
}
