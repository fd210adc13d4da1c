// Package domain defines the core business entities for ruleforge.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ContentItem: A piece of raw intelligence submitted for analysis
//   - ConfigurationVersion: An immutable, versioned pipeline parameter set
//   - PipelineRun: One execution of the pipeline over one content item
//   - StageExecution: One attempt of one stage within a run
//   - CandidateArtifact: A proposed detection rule and its similarity matches
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
