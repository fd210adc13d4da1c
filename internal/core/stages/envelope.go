package stages

import (
	"encoding/json"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// envelope is the response shape shared by every model-backed stage.
type envelope struct {
	Items      []string `json:"items"`
	Count      *int     `json:"count"`
	Confidence *float64 `json:"confidence,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

// parseEnvelope extracts and validates the JSON envelope from a model response.
// Models often wrap JSON in prose or code fences, so the outermost object is located first.
func parseEnvelope(raw string) (envelope, error) {
	body, ok := extractObject(raw)
	if !ok {
		return envelope{}, domain.Malformed("response contains no JSON object")
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return envelope{}, domain.Malformed("response is not a valid envelope: %v", err)
	}
	if env.Items == nil {
		return envelope{}, domain.Malformed("field \"items\" is required")
	}
	if env.Count == nil {
		return envelope{}, domain.Malformed("field \"count\" is required")
	}
	if *env.Count != len(env.Items) {
		return envelope{}, domain.Malformed("count is %d but %d items were returned", *env.Count, len(env.Items))
	}
	if env.Confidence != nil && (*env.Confidence < 0 || *env.Confidence > 1) {
		return envelope{}, domain.Malformed("confidence %.3f is outside [0,1]", *env.Confidence)
	}

	for i, item := range env.Items {
		env.Items[i] = strings.TrimSpace(domain.CleanText(item))
		if env.Items[i] == "" {
			return envelope{}, domain.Malformed("item %d is empty", i+1)
		}
	}
	env.Rationale = strings.TrimSpace(domain.CleanText(env.Rationale))
	return env, nil
}

func extractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

func (e envelope) result(raw string) Result {
	return Result{
		Output: domain.StageOutput{
			Items:     e.Items,
			Count:     len(e.Items),
			Rationale: e.Rationale,
		},
		Confidence: e.Confidence,
		Raw:        raw,
	}
}
