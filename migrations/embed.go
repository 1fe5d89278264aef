// Package migrations holds the PostgreSQL schema of the file registry.
package migrations

import "embed"

// FS contains every migration, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
