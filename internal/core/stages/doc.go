// Package stages implements the analysis stages of the pipeline.
//
// Every stage satisfies the same contract: given an Input and the
// StageParams pinned in the run's configuration snapshot, Execute returns a
// Result or a structured error. Model-backed stages share one response
// envelope:
//
//	{"items": ["..."], "count": 1, "confidence": 0.8, "rationale": "..."}
//
// Output that does not match the envelope, or the per-kind checks layered on
// top of it, fails with domain.ErrMalformedOutput. Transport failures surface
// as domain.ErrProviderUnavailable. The two are never confused, because only
// the former is worth a QA retry.
//
// The set of stages is closed. Set holds exactly one typed variant per
// model-backed domain.StageKind; extraction supervision and similarity dedup
// are orchestration steps and live in the services package.
package stages
