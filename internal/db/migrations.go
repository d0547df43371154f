package db

import (
	"database/sql"
	"fmt"
)

// columnMigration adds a column to databases created before it existed.
type columnMigration struct {
	table  string
	column string
	stmt   string
}

// migrations are applied in order after schema creation. ALTER TABLE ADD
// COLUMN is not idempotent in SQLite, so each one only runs while its
// column is missing. Append new migrations at the end.
var migrations = []columnMigration{
	// Dedicated return notes, so a return no longer overwrites the
	// request notes.
	{"assignments", "return_notes", `ALTER TABLE assignments ADD COLUMN return_notes TEXT`},
	// Receipts remember which device and user a keyed action targeted.
	{"sync_receipts", "device_id", `ALTER TABLE sync_receipts ADD COLUMN device_id INTEGER NOT NULL DEFAULT 0`},
	{"sync_receipts", "user_id", `ALTER TABLE sync_receipts ADD COLUMN user_id INTEGER NOT NULL DEFAULT 0`},
}

// Migrate ensures the schema and runs any pending migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		has, err := hasColumn(db, m.table, m.column)
		if err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
		if has {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("inspecting %s: %w", table, err)
	}
	return count > 0, nil
}
