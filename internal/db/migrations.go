package db

import (
	"database/sql"
	_ "embed"
	"fmt"

	// _ import for sqlite driver registration
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// addedRunColumns are run columns introduced after the first ledger
// version, in the order they were added.
var addedRunColumns = []struct{ name, decl string }{
	{"tagship_version", "TEXT"},
}

// ApplyMigrations creates the ledger tables and upgrades older ledgers.
func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	have, err := columns(db, "runs")
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, c := range addedRunColumns {
		if have[c.name] {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE runs ADD COLUMN %s %s", c.name, c.decl)); err != nil {
			return fmt.Errorf("apply migrations: add runs.%s: %w", c.name, err)
		}
	}
	return nil
}

func columns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	have := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		have[name] = true
	}
	return have, rows.Err()
}
