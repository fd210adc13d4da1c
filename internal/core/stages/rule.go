package stages

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is a generated detection rule.
type Rule struct {
	Title string
	Body  string
}

// ParseRule checks that body is a YAML mapping with a non-empty detection
// section and returns the rule with its title. A missing title falls back
// to the first line of the body.
func ParseRule(body string) (Rule, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Rule{}, errors.New("rule body is empty")
	}

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return Rule{}, fmt.Errorf("rule body is not valid YAML: %w", err)
	}
	detection, ok := doc["detection"]
	if !ok || detection == nil {
		return Rule{}, errors.New("rule has no detection: section")
	}
	if m, isMap := detection.(map[string]any); isMap && len(m) == 0 {
		return Rule{}, errors.New("rule detection: section is empty")
	}

	title, _ := doc["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		title, _, _ = strings.Cut(body, "\n")
	}
	return Rule{Title: title, Body: body}, nil
}
