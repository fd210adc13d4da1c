package driven

import (
	"context"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// PromptStore provides access to LLM prompt templates.
// Templates seed new configuration snapshots; a running pipeline only ever
// reads the prompt pinned in its snapshot.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Unknown names fall back to the built-in default, or fail when there is none.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// PromptWatcher is implemented by prompt stores backed by something that can change.
type PromptWatcher interface {
	// Watch calls onChange with the prompt name whenever a template changes.
	// It blocks until ctx is done.
	Watch(ctx context.Context, onChange func(name string)) error
}

// PromptQAReview is the system prompt of the LLM reviewer in the QA loop.
// Every other prompt is named after its stage kind.
const PromptQAReview = "qa_review"

// PromptName returns the template name for a stage kind.
func PromptName(kind domain.StageKind) string {
	return string(kind)
}
