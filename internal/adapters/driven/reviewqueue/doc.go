// Package reviewqueue provides the review hand-off adapters.
//
// Every candidate artifact is pushed, duplicate or not, together with its
// similarity matches and the provenance of the run that produced it.
//
//   - Spool appends NDJSON lines to a local directory, one file per UTC day
//   - ObjectQueue writes one JSON object per artifact to an S3 compatible bucket
package reviewqueue
