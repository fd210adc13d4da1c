// Package migrations embeds the SQL schema of each supported dialect.
package migrations

import "embed"

// FS holds one directory of numbered *.up.sql files per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
