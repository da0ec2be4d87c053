// Package db opens the SQLite run ledger.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

// InitDB ensures the directory of path exists, opens the SQLite database
// and creates the schema if it does not exist.
func InitDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; the ledger is appended to once per run
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, multierr.Append(fmt.Errorf("enable foreign keys: %w", err), db.Close())
	}
	if err := ApplyMigrations(db); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return db, nil
}
