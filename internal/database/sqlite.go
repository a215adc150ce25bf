package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// SQLite wraps the SQLite database instance and stores every document in
// a single kv table.
type SQLite struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// OpenSQLite initializes and returns a SQLite store.
func OpenSQLite(path string) (*SQLite, error) {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}

	wrapper := &SQLite{db: db}

	if err := wrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Infof("SQLite database opened successfully at %s", path)
	return wrapper, nil
}

// initSchema creates the database schema if it doesn't exist
func (d *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TRIGGER IF NOT EXISTS update_kv_timestamp
		AFTER UPDATE ON kv
		BEGIN
			UPDATE kv SET updated_at = CURRENT_TIMESTAMP WHERE key = NEW.key;
		END;
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (d *SQLite) Close() error {
	d.closeOnce.Do(func() {
		log.Info("Closing database...")
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		d.closed = true

		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		} else {
			log.Info("Database closed successfully.")
		}
	})

	return d.closeErr
}

// Has checks if a key exists in the database.
func (d *SQLite) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return false
	}

	var exists bool
	err := d.db.QueryRow("SELECT EXISTS(SELECT 1 FROM kv WHERE key = ?)", string(key)).Scan(&exists)
	return err == nil && exists
}

// Get retrieves the value associated with a key.
func (d *SQLite) Get(key []byte) ([]byte, error) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	var value []byte
	err := d.db.QueryRow("SELECT value FROM kv WHERE key = ?", string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error querying key %s: %w", key, err)
	}
	return value, nil
}

// Put stores a key-value pair in the database.
func (d *SQLite) Put(key []byte, value []byte) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	_, err := d.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, string(key), value)
	if err != nil {
		return fmt.Errorf("error storing key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *SQLite) Delete(key []byte) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	result, err := d.db.Exec("DELETE FROM kv WHERE key = ?", string(key))
	if err != nil {
		return fmt.Errorf("error deleting key %s: %w", key, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Scan iterates over every key starting with prefix.
func (d *SQLite) Scan(prefix []byte, fn func(key []byte, value []byte) error) error {
	d.RLock()
	if d.closed {
		d.RUnlock()
		return ErrClosed
	}

	// Rows are collected first so fn may write back to the store.
	// substr on TEXT counts characters, so the prefix is compared as bytes.
	rows, err := d.db.Query(
		"SELECT key, value FROM kv WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB) ORDER BY key",
		len(prefix), string(prefix),
	)
	if err != nil {
		d.RUnlock()
		return fmt.Errorf("error querying prefix %s: %w", prefix, err)
	}

	type pair struct{ key, value []byte }
	var pairs []pair
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			log.WithError(err).Warn("Scan: Error reading row")
			continue
		}
		pairs = append(pairs, pair{key: []byte(k), value: v})
	}
	rowsErr := rows.Err()
	rows.Close()
	d.RUnlock()

	if rowsErr != nil {
		return fmt.Errorf("error iterating prefix %s: %w", prefix, rowsErr)
	}

	for _, p := range pairs {
		if err := fn(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}
