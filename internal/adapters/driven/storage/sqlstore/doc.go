// Package sqlstore provides SQL implementations of the persistence ports.
//
// One Store serves both supported dialects:
//
//   - sqlite: modernc.org/sqlite, a pure Go driver that needs no CGO
//   - postgres: github.com/jackc/pgx/v5 through its database/sql driver
//
// Queries are built with squirrel so the only per-dialect differences are the
// placeholder format and the schema files under migrations/.
//
// # Stores
//
//   - ConfigVersionStore: append-only configuration snapshots
//   - RunStore: pipeline runs, stage executions and artifacts
//   - ReferenceStore: the reference corpus behind the similarity index
//
// # Encoding
//
// Timestamps are stored as Unix nanoseconds and embeddings as little-endian
// float32 blobs. Snapshot params are stored as raw bytes so a restore
// reproduces them exactly.
package sqlstore
