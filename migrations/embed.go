// Package migrations embeds the controller's SQL schema migrations.
package migrations

import "embed"

// FS holds every migration file; pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
