// Package state keeps per-machine state that must not be shared through the
// history database: the sync cursor and local-only settings.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const (
	cursorBucket   = "cursors"
	settingsBucket = "settings"
)

var (
	// ErrNotFound is returned when a local setting does not exist
	ErrNotFound = errors.New("not found")
	// ErrLocked is returned when another process holds the state file
	ErrLocked = errors.New("state file is in use by another process")
)

// StoreConfig holds configuration for Store initialization
type StoreConfig struct {
	Path        string
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

// Store is a bbolt file with one bucket per kind of state
type Store struct {
	db     *bbolt.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates the state file. Only one process can hold it; a
// second opener fails after OpenTimeout.
func Open(config StoreConfig) (*Store, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.OpenTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(config.Path, 0600, &bbolt.Options{Timeout: timeout})
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, config.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{cursorBucket, settingsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("State store opened", zap.String("path", config.Path))

	return &Store{
		db:     db,
		path:   config.Path,
		logger: logger.With(zap.String("component", "state")),
	}, nil
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}

// Close releases the file lock
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadCursor returns the stored cursor for key, or 0 if none was saved
func (s *Store) LoadCursor(key string) (int64, error) {
	var cursor int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(cursorBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) != 8 {
			return fmt.Errorf("corrupt cursor for %s: %d bytes", key, len(v))
		}
		cursor = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return cursor, err
}

// SaveCursor stores cursor under key
func (s *Store) SaveCursor(key string, cursor int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(cursor))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cursorBucket)).Put([]byte(key), buf)
	})
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	s.logger.Debug("Cursor saved", zap.String("key", key), zap.Int64("cursor", cursor))
	return nil
}

// Cursors lists every stored cursor by key
func (s *Store) Cursors() (map[string]int64, error) {
	out := make(map[string]int64)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cursorBucket)).ForEach(func(k, v []byte) error {
			if len(v) == 8 {
				out[string(k)] = int64(binary.BigEndian.Uint64(v))
			}
			return nil
		})
	})
	return out, err
}

// Get returns a local setting
func (s *Store) Get(key string) (string, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(settingsBucket)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Set stores a local setting
func (s *Store) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key cannot be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Put([]byte(key), []byte(value))
	})
}

// Delete removes a local setting and reports whether it existed
func (s *Store) Delete(key string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(settingsBucket))
		existed = b.Get([]byte(key)) != nil
		return b.Delete([]byte(key))
	})
	return existed, err
}

// Keys returns local setting keys in sorted order
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

// List returns all local settings
func (s *Store) List() (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}
