package database

import (
	"errors"
	"fmt"
	"os"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

const (
	bitcaskMaxKeySize   = 1024
	bitcaskMaxValueSize = 64 << 20
)

// Bitcask is an embedded log-structured store.
type Bitcask struct {
	db *bitcask.Bitcask
}

// OpenBitcask opens (or creates) a bitcask directory at path.
func OpenBitcask(path string) (*Bitcask, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create bitcask directory %s: %w", path, err)
	}
	db, err := bitcask.Open(path,
		bitcask.WithMaxKeySize(bitcaskMaxKeySize),
		bitcask.WithMaxValueSize(bitcaskMaxValueSize),
		bitcask.WithSync(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Infof("Bitcask database opened successfully at %s", path)
	return &Bitcask{db: db}, nil
}

func (b *Bitcask) Has(key []byte) bool {
	return b.db.Has(key)
}

func (b *Bitcask) Get(key []byte) ([]byte, error) {
	value, err := b.db.Get(key)
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (b *Bitcask) Put(key []byte, value []byte) error {
	return b.db.Put(key, value)
}

func (b *Bitcask) Delete(key []byte) error {
	if !b.db.Has(key) {
		return ErrNotFound
	}
	return b.db.Delete(key)
}

func (b *Bitcask) Scan(prefix []byte, fn func(key []byte, value []byte) error) error {
	var keys [][]byte
	err := b.db.Scan(prefix, func(key []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return fmt.Errorf("error scanning prefix %s: %w", prefix, err)
	}

	for _, key := range keys {
		value, err := b.db.Get(key)
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			// deleted since the key scan
			continue
		} else if err != nil {
			return fmt.Errorf("error reading key %s: %w", key, err)
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bitcask) Close() error {
	log.Info("Closing bitcask database...")
	return b.db.Close()
}
