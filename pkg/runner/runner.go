// Package runner executes tasks in parallel inside the process and
// spawns child processes that participate in shared-memory exchange.
//
// The only way a child can use the cross-process mutex created by
// ShmGen is to inherit its file descriptor: Spawn passes it as the first
// extra fd before the child starts, and InheritedMutex picks it up on the
// far side. Handing the mutex over after the child already touched the
// segment is a precondition violation, not a recoverable state.
package runner

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/srediag/shmvars/pkg/logsys"
	"github.com/srediag/shmvars/pkg/segment"
)

// MutexFDEnv names the env var telling a child which inherited fd carries
// the mutex. Spawn always sets it.
const MutexFDEnv = "SHMVARS_MUTEX_FD"

// firstExtraFD is where ExtraFiles land in the child.
const firstExtraFD = 3

// Pool runs funcs on a bounded goroutine pool.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger
}

// NewPool returns a Pool with the given worker bound.
func NewPool(size int, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = logsys.Nop()
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, logger: logger}, nil
}

// Submit schedules one task.
func (p *Pool) Submit(task func()) error { return p.pool.Submit(task) }

// Run executes every task on the pool and blocks until all finish,
// returning the per-task errors in submission order.
func (p *Pool) Run(tasks ...func() error) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			errs[i] = task()
		}); err != nil {
			errs[i] = err
			wg.Done()
		}
	}
	wg.Wait()
	return errs
}

// Running returns the number of in-flight tasks.
func (p *Pool) Running() int { return p.pool.Running() }

// Release shuts the pool down.
func (p *Pool) Release() { p.pool.Release() }

// SpawnOptions configures a child process launch.
type SpawnOptions struct {
	// Mutex, when set, is handed to the child as an inherited fd.
	Mutex *segment.Mutex
	// Env entries appended to the parent environment.
	Env []string
	// Stdout/Stderr destinations; nil inherits the parent's.
	Stdout *os.File
	Stderr *os.File
}

// Spawn starts a child process that may call ShmConnect. The mutex fd,
// if any, is wired up before Start so the precondition "transferred
// before the segment is first touched" holds by construction.
func Spawn(path string, args []string, opts SpawnOptions) (*exec.Cmd, error) {
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	if opts.Mutex != nil {
		f := opts.Mutex.File()
		if f == nil {
			return nil, fmt.Errorf("mutex has no transferable fd")
		}
		cmd.ExtraFiles = []*os.File{f}
		cmd.Env = append(cmd.Env, MutexFDEnv+"="+strconv.Itoa(firstExtraFD))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		cmd.Stderr = opts.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", path, err)
	}
	return cmd, nil
}

// InheritedMutex attaches to the mutex fd a parent passed via Spawn.
// Returns nil without error when no mutex was handed over.
func InheritedMutex() (*segment.Mutex, error) {
	s := os.Getenv(MutexFDEnv)
	if s == "" {
		return nil, nil
	}
	fd, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("bad %s value %q: %w", MutexFDEnv, s, err)
	}
	return segment.MutexFromFD(uintptr(fd))
}
