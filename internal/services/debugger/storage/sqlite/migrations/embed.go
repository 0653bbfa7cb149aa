package migrations

import "embed"

// FS contains embedded SQLite migrations for trace storage.
//
//go:embed *.sql
var FS embed.FS
