// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ConfigVersionStore: Immutable configuration snapshot persistence
//   - RunStore: Append-only run and stage execution history
//   - ReferenceStore: Reference corpus persistence backing the index
//   - ReviewQueue: Hand-off of candidate artifacts to external review
//   - ConfigStore: Application settings
//   - PromptStore: Prompt templates seeding new snapshots
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Language model calls. Without it, runs fail fast with ProviderUnavailable.
//   - EmbeddingService: Generates vector embeddings. Without it, similarity dedup is skipped.
//   - ReferenceIndex: Nearest-neighbour search. Without it, similarity dedup is skipped.
//   - NormaliserRegistry: Content normalisation. Without it, content is used as submitted.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
