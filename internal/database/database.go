// Package database provides the key-value backends records, projects and
// jobs are persisted in.
package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go-image-organizer/internal/models"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("database is closed")

// KV is the document store contract every backend implements. Values are
// opaque JSON documents.
type KV interface {
	Has(key []byte) bool
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	// Scan calls fn for every key starting with prefix. Order is unspecified.
	Scan(prefix []byte, fn func(key []byte, value []byte) error) error
	Close() error
}

// DefaultFileName returns the on-disk name used for a backend under DataDir.
func DefaultFileName(backend string) string {
	switch backend {
	case models.BackendBitcask:
		return "organizer.bitcask"
	default:
		return "organizer.db"
	}
}

// Open selects a backend by name.
func Open(cfg models.Config) (KV, error) {
	backend := strings.ToLower(cfg.DatabaseBackend)
	path := cfg.DatabasePath
	if path == "" && cfg.DataDir != "" {
		path = filepath.Join(cfg.DataDir, DefaultFileName(backend))
	}

	switch backend {
	case "", models.BackendSQLite:
		return OpenSQLite(path)
	case models.BackendBitcask:
		return OpenBitcask(path)
	case models.BackendRedis:
		return OpenRedis(cfg.Redis)
	case models.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.DatabaseBackend)
	}
}
