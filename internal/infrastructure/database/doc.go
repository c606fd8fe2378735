// Package database provides SQLite connectivity for InfiGrid Core.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Embedded, additive-only schema migrations
//   - Health checks and lifecycle
//
// The only table of consequence is the transaction journal (see package
// journal). Ledger state itself is never stored: it is rebuilt from the
// journal on start-up.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are forward-only. The journal is an audit record and is never
// rolled back, so there are no .down.sql files:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME journal columns
//   - Files are named YYYYMMDD_HHMMSS_description.up.sql
package database
