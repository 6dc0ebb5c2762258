package db

import (
	"database/sql"
	"time"

	"github.com/xiaoyuanzhu-com/omnitool/storage"
)

// NowMs returns the current time in Unix milliseconds
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// available reports ErrUnavailable once the database is closed.
func (d *DB) available() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return storage.ErrUnavailable
	}
	return nil
}

// GetItem retrieves a record by key
func (d *DB) GetItem(key string) (string, bool, error) {
	if err := d.available(); err != nil {
		return "", false, err
	}
	const q = "SELECT value FROM records WHERE key = ?"
	d.logQuery("get", q, key)

	var value string
	err := d.conn.QueryRow(q, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetItem replaces the record in a single statement; readers see either
// the old or the new value, never a mix.
func (d *DB) SetItem(key, value string) error {
	if err := d.available(); err != nil {
		return err
	}
	const q = `
		INSERT INTO records (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	d.logQuery("run", q, key)
	_, err := d.conn.Exec(q, key, value, NowMs())
	return err
}

// RemoveItem deletes a record
func (d *DB) RemoveItem(key string) error {
	if err := d.available(); err != nil {
		return err
	}
	const q = "DELETE FROM records WHERE key = ?"
	d.logQuery("run", q, key)
	_, err := d.conn.Exec(q, key)
	return err
}

// Keys lists all record keys, sorted.
func (d *DB) Keys() ([]string, error) {
	if err := d.available(); err != nil {
		return nil, err
	}
	rows, err := d.conn.Query("SELECT key FROM records ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

var _ storage.Storage = (*DB)(nil)
