// Package database provides SQLite storage for Idiotic Core.
//
// The controller keeps very little durable state: the catalogue of
// devices that have ever said hello, and the schema bookkeeping that
// goes with it. Live attribute values are never persisted.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Forward and backward schema migrations read from an fs.FS
//   - Health checks for the REST health endpoint
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
