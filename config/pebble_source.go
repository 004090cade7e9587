package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleSource is a Source persisted in a pebble store. Keys and values are stored as-is.
type PebbleSource struct {
	db     *pebble.DB
	owned  bool
	closed bool
	mu     sync.RWMutex
}

// OpenPebbleSource opens (or creates) a property store at path
func OpenPebbleSource(path string, opts *pebble.Options) (*PebbleSource, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleSource{db: db, owned: true}, nil
}

// NewPebbleSource wraps an already open store; Close leaves it open
func NewPebbleSource(db *pebble.DB) *PebbleSource {
	return &PebbleSource{db: db}
}

func (s *PebbleSource) Lookup(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, pebble.ErrClosed
	}

	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	return string(value), true, nil
}

// Set stores a property durably
func (s *PebbleSource) Set(key, value string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pebble.ErrClosed
	}
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Delete removes a property
func (s *PebbleSource) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pebble.ErrClosed
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete: %w", err)
	}
	return nil
}

// Close closes the underlying store if this source opened it
func (s *PebbleSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
