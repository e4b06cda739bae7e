// Package database provides SQLite connectivity and schema migrations.
//
// The device registry and the audit log both live in one SQLite file opened
// in WAL mode with a single pooled connection. Every query is parameterised.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every YYYYMMDD_HHMMSS_name.up.sql has a matching .down.sql.
package database
