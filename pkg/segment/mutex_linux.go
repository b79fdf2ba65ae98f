//go:build linux

package segment

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	internalshm "github.com/srediag/shmvars/internal/shm"
	"github.com/srediag/shmvars/pkg/result"
)

// mutexMemSize keeps the futex word on its own cache line.
const mutexMemSize = 128

// Mutex word states.
const (
	mutexUnlocked  uint32 = 0
	mutexLocked    uint32 = 1
	mutexContended uint32 = 2
)

// Mutex is a process-shared mutual exclusion primitive: a futex word in
// an anonymous memfd-backed mapping.
//
// The backing fd is deliberately anonymous -- the mutex cannot be
// recovered by name after creation. A process that should participate
// must receive the fd before it first touches the guarded segment,
// typically via ExtraFiles on the child's command (see runner.Spawn) and
// MutexFromFile on the far side.
//
// Lock blocks without timeout or cancellation; whoever holds the word
// holds it until Unlock.
type Mutex struct {
	file  *os.File
	mem   []byte
	state *uint32
}

// NewMutex constructs a process-shared mutex.
func NewMutex() (*Mutex, error) {
	fd, err := internalshm.MemfdCreate("shmvars-mutex", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, mutexMemSize); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	return mapMutex(os.NewFile(uintptr(fd), "shmvars-mutex"))
}

// MutexFromFile attaches to a mutex received from another process, e.g.
// as an inherited fd. The file is owned by the returned Mutex.
func MutexFromFile(f *os.File) (*Mutex, error) {
	return mapMutex(f)
}

// MutexFromFD is MutexFromFile for a raw inherited descriptor (the first
// ExtraFiles entry arrives as fd 3).
func MutexFromFD(fd uintptr) (*Mutex, error) {
	return mapMutex(os.NewFile(fd, "shmvars-mutex"))
}

func mapMutex(f *os.File) (*Mutex, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, mutexMemSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap mutex: %w", err)
	}
	return &Mutex{
		file:  f,
		mem:   mem,
		state: (*uint32)(unsafe.Pointer(&mem[0])),
	}, nil
}

// Lock acquires the mutex, blocking on the futex while another process
// holds it.
func (m *Mutex) Lock() error {
	if atomic.CompareAndSwapUint32(m.state, mutexUnlocked, mutexLocked) {
		return nil
	}
	for {
		// mark contended so the holder knows to wake us
		if atomic.LoadUint32(m.state) == mutexContended ||
			atomic.CompareAndSwapUint32(m.state, mutexLocked, mutexContended) {
			if err := internalshm.FutexWait(m.state, mutexContended); err != nil {
				return err
			}
		}
		if atomic.CompareAndSwapUint32(m.state, mutexUnlocked, mutexContended) {
			return nil
		}
	}
}

// TryLock acquires the mutex without blocking and reports success.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(m.state, mutexUnlocked, mutexLocked)
}

// Unlock releases the mutex and wakes one waiter if any queued up.
// Unlocking an unheld mutex reports ErrLockMisuse.
func (m *Mutex) Unlock() error {
	switch atomic.SwapUint32(m.state, mutexUnlocked) {
	case mutexUnlocked:
		return fmt.Errorf("unlock of unheld process mutex: %w", result.ErrLockMisuse)
	case mutexContended:
		return internalshm.FutexWake(m.state, 1)
	default:
		return nil
	}
}

// File exposes the backing fd for handing the mutex to a child process.
// The caller must pass it before the child starts touching the segment.
func (m *Mutex) File() *os.File { return m.file }

// Close detaches the local mapping. The mutex itself lives on in any
// process still holding the fd.
func (m *Mutex) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	m.state = nil
	if cerr := m.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
