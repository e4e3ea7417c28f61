// Package migrations embeds the SQL migration files for the sqlite board
// storage backend.
package migrations

import "embed"

// FS exposes the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
