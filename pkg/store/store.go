// Package store implements the thread-safe in-process variable mapping.
//
// The mapping itself is a concurrent map, so individual operations never
// block each other. The store additionally carries a plain mutex for the
// scoped-acquisition form (WithLock): cooperating callers that need a
// multi-operation critical section serialize through it. Neither lock
// provides any cross-process guarantee; that is the segment layer's
// opt-in mutex.
package store

import (
	"fmt"
	"strings"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"

	"github.com/srediag/shmvars/pkg/logsys"
	"github.com/srediag/shmvars/pkg/result"
)

// Store is a thread-safe key/value mapping local to one process. Two
// independently constructed Stores never observe each other's entries
// unless both are bound to the same segment name and explicitly synced.
type Store struct {
	vars   cmap.ConcurrentMap[string, any]
	mu     sync.Mutex
	logger *zap.Logger
}

// New returns an empty Store. logger may be nil.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = logsys.Nop()
	}
	return &Store{
		vars:   cmap.New[any](),
		logger: logger,
	}
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key must be a non-empty string")
	}
	return nil
}

// Set stores value under key. Without overwrite an existing key reports
// ErrAlreadyExists and the stored value is untouched.
func (s *Store) Set(key string, value any, overwrite bool) error {
	if err := validKey(key); err != nil {
		return err
	}
	if overwrite {
		s.vars.Set(key, value)
		s.logger.Debug("variable set", zap.String("key", key))
		return nil
	}
	if !s.vars.SetIfAbsent(key, value) {
		return fmt.Errorf("variable %q: %w", key, result.ErrAlreadyExists)
	}
	s.logger.Debug("variable set", zap.String("key", key))
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(key string) (any, error) {
	v, ok := s.vars.Get(key)
	if !ok {
		return nil, fmt.Errorf("variable %q: %w", key, result.ErrNotFound)
	}
	return v, nil
}

// Delete removes key. A missing key reports ErrNotFound.
func (s *Store) Delete(key string) error {
	if _, ok := s.vars.Pop(key); !ok {
		return fmt.Errorf("variable %q: %w", key, result.ErrNotFound)
	}
	s.logger.Debug("variable deleted", zap.String("key", key))
	return nil
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.vars.Clear()
	s.logger.Debug("variables cleared")
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) bool { return s.vars.Has(key) }

// ListVars returns the current variable names.
func (s *Store) ListVars() []string { return s.vars.Keys() }

// Len returns the number of variables.
func (s *Store) Len() int { return s.vars.Count() }

// Snapshot returns a copy of the whole mapping, e.g. for serialization
// into a segment.
func (s *Store) Snapshot() map[string]any { return s.vars.Items() }

// Merge stores every entry of m, overwriting existing keys. Used when
// pulling segment content into the store.
func (s *Store) Merge(m map[string]any) {
	s.vars.MSet(m)
}

// WithLock runs fn while holding the store's scoped lock, releasing it on
// every exit path including panics. It serializes only cooperating
// WithLock callers; plain Get/Set calls are independently safe and do not
// take this lock.
func (s *Store) WithLock(fn func(s *Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// Locker exposes the scoped lock for callers that manage the critical
// section themselves.
func (s *Store) Locker() sync.Locker { return &s.mu }
