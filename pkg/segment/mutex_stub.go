//go:build !linux

package segment

import (
	"os"

	internalshm "github.com/srediag/shmvars/internal/shm"
)

// Mutex is unavailable on platforms without a shared futex backend.
type Mutex struct{}

func NewMutex() (*Mutex, error) { return nil, internalshm.ErrNotSupported }

func MutexFromFile(f *os.File) (*Mutex, error) { return nil, internalshm.ErrNotSupported }

func MutexFromFD(fd uintptr) (*Mutex, error) { return nil, internalshm.ErrNotSupported }

func (m *Mutex) Lock() error { return internalshm.ErrNotSupported }

func (m *Mutex) TryLock() bool { return false }

func (m *Mutex) Unlock() error { return internalshm.ErrNotSupported }

func (m *Mutex) File() *os.File { return nil }

func (m *Mutex) Close() error { return nil }
