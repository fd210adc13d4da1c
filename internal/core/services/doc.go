// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The pipeline lives here: configuration snapshots (ConfigService), the QA
// retry loop (QAEngine), sub-agent fan-out (ExtractionSupervisor), the
// similarity matcher (SimilarityService), the run orchestrator and the
// bounded batch pool (RunPool).
package services
