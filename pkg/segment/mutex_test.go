//go:build linux

package segment

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srediag/shmvars/pkg/result"
)

func TestMutexLockUnlock(t *testing.T) {
	m, err := NewMutex()
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Lock())
	assert.False(t, m.TryLock(), "held mutex must not be re-acquirable")
	require.NoError(t, m.Unlock())
	assert.True(t, m.TryLock())
	require.NoError(t, m.Unlock())
}

func TestMutexUnlockUnheld(t *testing.T) {
	m, err := NewMutex()
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	assert.ErrorIs(t, m.Unlock(), result.ErrLockMisuse)
}

func TestMutexContention(t *testing.T) {
	m, err := NewMutex()
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.NoError(t, m.Lock())
				counter++
				assert.NoError(t, m.Unlock())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1600, counter)
}

func TestMutexBlocksUntilReleased(t *testing.T) {
	m, err := NewMutex()
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Lock())
	acquired := make(chan struct{})
	go func() {
		_ = m.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second locker must block while the mutex is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.Unlock())
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken")
	}
	require.NoError(t, m.Unlock())
}

func TestMutexSharedThroughFD(t *testing.T) {
	a, err := NewMutex()
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	// a second mapping of the same fd observes the same word, which is
	// what an inheriting process sees
	f, err := a.File().SyscallConn()
	require.NoError(t, err)
	var b *Mutex
	require.NoError(t, f.Control(func(fd uintptr) {
		var dupFd int
		dupFd, err = unix.Dup(int(fd))
		require.NoError(t, err)
		b, err = MutexFromFD(uintptr(dupFd))
	}))
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	require.NoError(t, a.Lock())
	assert.False(t, b.TryLock(), "both views guard the same word")
	require.NoError(t, a.Unlock())
	assert.True(t, b.TryLock())
	require.NoError(t, b.Unlock())
}
