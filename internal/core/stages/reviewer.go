package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Verdict is the outcome of a QA review.
type Verdict struct {
	Pass     bool
	Feedback string
}

// LLMReviewer asks a model to judge stage output that already passed the
// schema checks.
type LLMReviewer struct {
	llm    driven.LLMService
	prompt string
	model  string
}

// NewLLMReviewer creates a reviewer. An empty prompt selects the built-in
// one; an empty model uses the service default.
func NewLLMReviewer(llm driven.LLMService, prompt, model string) *LLMReviewer {
	if prompt == "" {
		prompt = defaultPrompts[driven.PromptQAReview]
	}
	return &LLMReviewer{llm: llm, prompt: prompt, model: model}
}

type verdictResponse struct {
	Verdict  string `json:"verdict"`
	Feedback string `json:"feedback"`
}

// Review judges one attempt of a stage.
func (r *LLMReviewer) Review(ctx context.Context, kind domain.StageKind, in Input, res Result) (Verdict, error) {
	if r.llm == nil {
		return Verdict{}, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, domain.ErrLLMUnavailable)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "STEP: %s\n\nTASK:\n%s\n\n", kind, DefaultPrompt(kind))
	b.WriteString(renderInput(Input{Content: in.Content, Environment: in.Environment, Items: in.Items}))
	b.WriteString("\nOUTPUT:\n")
	for _, item := range res.Output.Items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	if res.Confidence != nil {
		fmt.Fprintf(&b, "confidence: %.2f\n", *res.Confidence)
	}

	raw, err := r.llm.Chat(ctx, []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: r.prompt},
		{Role: driven.RoleUser, Content: b.String()},
	}, driven.ChatOptions{Model: r.model, MaxTokens: 512, JSON: true})
	if err != nil {
		return Verdict{}, err
	}

	body, ok := extractObject(raw)
	if !ok {
		return Verdict{}, domain.Malformed("review contains no JSON object")
	}
	var resp verdictResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Verdict{}, domain.Malformed("review is not valid JSON: %v", err)
	}

	feedback := strings.TrimSpace(domain.CleanText(resp.Feedback))
	switch strings.ToLower(strings.TrimSpace(resp.Verdict)) {
	case "pass":
		return Verdict{Pass: true, Feedback: feedback}, nil
	case "fail":
		if feedback == "" {
			feedback = "the reviewer rejected the output without detail; re-read the task and try again"
		}
		return Verdict{Pass: false, Feedback: feedback}, nil
	default:
		return Verdict{}, domain.Malformed("unknown verdict %q", resp.Verdict)
	}
}
