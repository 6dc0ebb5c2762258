package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "records and sqlar tables",
		Up:          migration001Initial,
	})
}

func migration001Initial(tx *sql.Tx) error {
	// records holds the whole-value key/value entries (history, preferences).
	_, err := tx.Exec(`
		CREATE TABLE records (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Standard SQLite archive layout for produced artifacts.
	_, err = tx.Exec(`
		CREATE TABLE sqlar (
			name TEXT PRIMARY KEY,
			mode INT,
			mtime INT,
			sz INT,
			data BLOB
		)
	`)
	return err
}
