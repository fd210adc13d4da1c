package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// llmStage carries what every model-backed stage shares: prompt assembly,
// the timed model call and envelope parsing.
type llmStage struct {
	kind domain.StageKind
	llm  driven.LLMService
}

// Kind returns the stage kind.
func (s llmStage) Kind() domain.StageKind {
	return s.kind
}

// invoke performs one model call and returns the parsed envelope.
func (s llmStage) invoke(ctx context.Context, in Input, params domain.StageParams) (envelope, string, error) {
	if s.llm == nil {
		return envelope{}, "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, domain.ErrLLMUnavailable)
	}

	system := params.Prompt
	if system == "" {
		system = DefaultPrompt(s.kind)
	}
	messages := []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: system},
		{Role: driven.RoleUser, Content: renderInput(in)},
	}
	opts := driven.ChatOptions{
		Model:       params.Model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		JSON:        true,
	}

	callCtx := ctx
	if timeout := params.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("stage %s: calling model %q (%d feedback notes)", s.kind, params.Model, len(in.Feedback))
	raw, err := s.llm.Chat(callCtx, messages, opts)
	if err != nil {
		// The caller's own cancellation stays a cancellation; our timeout is a provider failure.
		if ctx.Err() != nil {
			return envelope{}, "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrProviderUnavailable) {
			return envelope{}, "", fmt.Errorf("%w: %s timed out after %s", domain.ErrProviderUnavailable, s.kind, params.Timeout())
		}
		return envelope{}, "", err
	}

	env, err := parseEnvelope(raw)
	if err != nil {
		return envelope{}, raw, err
	}
	return env, raw, nil
}

// renderInput builds the user message for an attempt.
func renderInput(in Input) string {
	var b strings.Builder
	b.WriteString("CONTENT:\n")
	b.WriteString(in.Content.Text)
	b.WriteString("\n")

	if len(in.Environment) > 0 {
		b.WriteString("\nENVIRONMENT: ")
		b.WriteString(strings.Join(in.Environment, ", "))
		b.WriteString("\n")
	}

	if len(in.Items) > 0 {
		b.WriteString("\nEXTRACTED:\n")
		for _, item := range in.Items {
			b.WriteString("- ")
			b.WriteString(item)
			b.WriteString("\n")
		}
	}

	if len(in.Feedback) > 0 {
		b.WriteString("\nYOUR PREVIOUS ATTEMPTS WERE REJECTED. Address every point:\n")
		for i, note := range in.Feedback {
			fmt.Fprintf(&b, "%d. %s\n", i+1, note)
		}
	}
	return b.String()
}

// requireConfidence rejects envelopes without a confidence score.
func requireConfidence(env envelope) error {
	if env.Confidence == nil {
		return domain.Malformed("field \"confidence\" is required for this stage")
	}
	return nil
}
