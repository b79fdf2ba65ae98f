// Package filestore is the persistent side of the system: atomic file
// writes, JSON read/write and advisory file locking. The shared-memory
// core never consults it.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/srediag/shmvars/pkg/logsys"
)

// Store roots file operations at a base directory.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// New returns a Store rooted at baseDir (empty means the working
// directory). logger may be nil.
func New(baseDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = logsys.Nop()
	}
	return &Store{baseDir: baseDir, logger: logger}
}

func (s *Store) path(rel string) string {
	if s.baseDir == "" {
		return rel
	}
	return filepath.Join(s.baseDir, rel)
}

// WriteFile writes data atomically: the content lands in a temp file in
// the destination directory, is fsynced and renamed over the target, so
// readers observe either the old or the new content, never a torn mix.
func (s *Store) WriteFile(rel string, data []byte) error {
	path := s.path(rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if err := unix.Flock(int(tmp.Fd()), unix.LOCK_EX); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flock: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	s.logger.Debug("file written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// ReadFile returns the file's content, holding a shared advisory lock
// while reading.
func (s *Store) ReadFile(rel string) ([]byte, error) {
	path := s.path(rel)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()
	return os.ReadFile(path)
}

// WriteJSON marshals v (indented) and writes it atomically.
func (s *Store) WriteJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.WriteFile(rel, data)
}

// ReadJSON reads the file and unmarshals it into v.
func (s *Store) ReadJSON(rel string, v any) error {
	data, err := s.ReadFile(rel)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Delete removes a file.
func (s *Store) Delete(rel string) error { return os.Remove(s.path(rel)) }

// CreateDir makes a directory (and parents).
func (s *Store) CreateDir(rel string) error { return os.MkdirAll(s.path(rel), 0o755) }

// DeleteDir removes a directory tree.
func (s *Store) DeleteDir(rel string) error { return os.RemoveAll(s.path(rel)) }

// ListFiles returns the names of regular files directly under rel.
func (s *Store) ListFiles(rel string) ([]string, error) {
	entries, err := os.ReadDir(s.path(rel))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
