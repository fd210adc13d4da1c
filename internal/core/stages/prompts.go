package stages

import (
	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

const envelopeInstruction = `
Respond with a single JSON object and nothing else:
{"items": [<strings>], "count": <number of items>, "confidence": <0.0-1.0>, "rationale": "<one sentence>"}`

var defaultPrompts = map[string]string{
	string(domain.StageEnvironmentDetection): `You are a detection engineer triaging threat intelligence.
Identify the operating systems and platforms the described activity targets
(for example: windows, linux, macos, aws, azure, kubernetes).
Each item is one lowercase platform name.` + envelopeInstruction,

	string(domain.StageRelevanceFilter): `You are a detection engineer triaging threat intelligence.
Decide whether the content describes attacker behaviour concrete enough to
write host or network detections for. Vendor marketing, vulnerability
announcements without exploitation detail and opinion pieces are not relevant.
Items list the behaviours you found. Confidence is the probability the
content is relevant.` + envelopeInstruction,

	string(domain.StageRanking): `You are a detection engineer prioritising a backlog.
Rate how valuable detections derived from this content would be, considering
novelty, prevalence of the technique and how observable it is in common
telemetry. Items list the techniques worth detecting, most valuable first.
Confidence is the overall value score.` + envelopeInstruction,

	string(domain.AgentCommandLine): `Extract every command line an attacker ran, exactly as written,
including arguments. Do not invent or complete commands.
Each item is one command line. Return an empty list if there are none.` + envelopeInstruction,

	string(domain.AgentProcessLineage): `Extract parent and child process relationships described in the content.
Each item has the form "parent.exe -> child.exe". Return an empty list if there are none.` + envelopeInstruction,

	string(domain.AgentRegistry): `Extract Windows registry keys and values the attacker created, modified or queried.
Each item is one full key path, optionally followed by " = value".
Return an empty list if there are none.` + envelopeInstruction,

	string(domain.AgentObservables): `Extract atomic observables: file paths, file names, hashes, domains,
URLs, IP addresses, named pipes, mutexes and service names.
Each item is one observable, exactly as written. Return an empty list if there are none.` + envelopeInstruction,

	string(domain.AgentHuntQueries): `Extract hunting or detection queries quoted in the content
(KQL, SPL, EQL, SQL, Sigma). Each item is one complete query, verbatim.
Return an empty list if there are none.` + envelopeInstruction,

	string(domain.StageRuleGeneration): `You are a senior detection engineer. Write Sigma detection rules for the
behaviour described, using the extracted indicators and the listed environment.
Each item is one complete rule in YAML with at least title, description,
logsource and detection (including a condition) fields. Prefer behavioural
logic over atomic indicators. Confidence is how likely the rules are to fire
on the described activity without excessive false positives.` + envelopeInstruction,

	driven.PromptQAReview: `You review the output of one step of a detection engineering pipeline.
Check the output against the task and the source content. Reject output that
invents facts, misses obvious items or does not answer the task.
Respond with a single JSON object and nothing else:
{"verdict": "pass" | "fail", "feedback": "<what to fix, empty when passing>"}`,
}

// DefaultPrompt returns the built-in system prompt for a stage kind.
func DefaultPrompt(kind domain.StageKind) string {
	return defaultPrompts[driven.PromptName(kind)]
}

// DefaultPrompts returns a copy of every built-in prompt keyed by prompt name.
func DefaultPrompts() map[string]string {
	out := make(map[string]string, len(defaultPrompts))
	for k, v := range defaultPrompts {
		out[k] = v
	}
	return out
}
