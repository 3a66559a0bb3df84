// Package migrations embeds the goose SQL migrations.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS

// Dir is the root of FS as goose expects it.
const Dir = "."
