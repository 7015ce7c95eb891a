// Package cache stores analysis results keyed by APK identity, so
// re-running analyze or a batch over unchanged files skips the expensive
// decompile step.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// ErrNotFound is returned when no entry exists for an APK.
var ErrNotFound = errors.New("cache entry not found")

// DefaultTTL is how long entries live before badger expires them.
const DefaultTTL = 30 * 24 * time.Hour

// Store wraps Badger for analysis caching.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *logging.Logger
}

// Open opens or creates a cache store at the given path.
func Open(path string) (*Store, error) {
	return OpenWithTTL(path, DefaultTTL)
}

// OpenWithTTL opens a store whose entries expire after ttl.
func OpenWithTTL(path string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	return &Store{db: db, ttl: ttl, logger: logging.Get("cache")}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key derives the cache key for an APK from its path, size, and mtime.
// Any rewrite of the file produces a different key, so stale analyses
// are never served for changed inputs.
func Key(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stating apk: %w", err)
	}

	h := sha1.New()
	fmt.Fprintf(h, "%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	sum := h.Sum(nil)

	return []byte("analysis:" + hex.EncodeToString(sum)), nil
}

// Get retrieves the cached analysis for an APK, or ErrNotFound.
func (s *Store) Get(path string) (*types.Analysis, error) {
	key, err := Key(path)
	if err != nil {
		return nil, err
	}

	var analysis types.Analysis
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &analysis)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("cache hit", "apk", path)
	return &analysis, nil
}

// Put stores the analysis for an APK.
func (s *Store) Put(path string, analysis *types.Analysis) error {
	key, err := Key(path)
	if err != nil {
		return err
	}

	value, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, value)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes the entry for an APK, if any.
func (s *Store) Delete(path string) error {
	key, err := Key(path)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}
