package db

import (
	"bytes"
	"database/sql"
	"errors"
	"compress/zlib"
	"fmt"
	"io"
	"time"
)

// SqlarStore stores a blob in SQLAR format with zlib compression
func (d *DB) SqlarStore(name string, data []byte, mode int) error {
	if err := d.available(); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0644
	}

	var compressed bytes.Buffer
	writer := zlib.NewWriter(&compressed)
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}

	_, err := d.conn.Exec(`
		INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz, data)
		VALUES (?, ?, ?, ?, ?)
	`, name, mode, time.Now().Unix(), len(data), compressed.Bytes())
	if err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}

	logger.Debug().
		Str("name", name).
		Int("originalSize", len(data)).
		Int("compressedSize", compressed.Len()).
		Msg("stored file in sqlar")
	return nil
}

// SqlarGet retrieves and decompresses a blob. Missing names return (nil, false, nil).
func (d *DB) SqlarGet(name string) ([]byte, bool, error) {
	if err := d.available(); err != nil {
		return nil, false, err
	}

	var compressedData []byte
	var sz int
	err := d.conn.QueryRow("SELECT data, sz FROM sqlar WHERE name = ?", name).Scan(&compressedData, &sz)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	reader, err := zlib.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", name, err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("decompress %s: %w", name, err)
	}
	return decompressed, true, nil
}

// SqlarDelete removes a blob. Deleting a missing name is not an error.
func (d *DB) SqlarDelete(name string) error {
	if err := d.available(); err != nil {
		return err
	}
	result, err := d.conn.Exec("DELETE FROM sqlar WHERE name = ?", name)
	if err != nil {
		return err
	}
	changes, _ := result.RowsAffected()
	logger.Debug().Str("name", name).Int64("changes", changes).Msg("deleted file from sqlar")
	return nil
}

// SqlarDeletePrefix deletes all blobs whose name starts with prefix
func (d *DB) SqlarDeletePrefix(prefix string) (int, error) {
	if err := d.available(); err != nil {
		return 0, err
	}
	result, err := d.conn.Exec("DELETE FROM sqlar WHERE name LIKE ?", prefix+"%")
	if err != nil {
		return 0, err
	}
	changes, _ := result.RowsAffected()
	return int(changes), nil
}
