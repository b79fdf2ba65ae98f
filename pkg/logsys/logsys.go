// Package logsys builds and hands out named zap loggers for the rest of
// the module. The default level is Warn; the SHMVARS_LOG_LEVEL env var
// overrides it (zap level syntax: debug, info, warn, error).
package logsys

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const levelEnv = "SHMVARS_LOG_LEVEL"

// Manager produces and caches named loggers. With a base directory each
// logger also writes JSON lines to <baseDir>/<name>.log; without one,
// output goes to stderr only.
type Manager struct {
	mu      sync.Mutex
	baseDir string
	level   zap.AtomicLevel
	loggers map[string]*zap.Logger
	files   []*os.File
}

// NewManager returns a Manager rooted at baseDir (may be empty).
func NewManager(baseDir string) *Manager {
	lvl := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if s := os.Getenv(levelEnv); s != "" {
		if parsed, err := zapcore.ParseLevel(s); err == nil {
			lvl.SetLevel(parsed)
		}
	}
	return &Manager{
		baseDir: baseDir,
		level:   lvl,
		loggers: make(map[string]*zap.Logger),
	}
}

// SetLevel changes the level of every logger the Manager produced.
func (m *Manager) SetLevel(l zapcore.Level) { m.level.SetLevel(l) }

// Logger returns the named logger, creating it on first use.
func (m *Manager) Logger(name string) *zap.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lg, ok := m.loggers[name]; ok {
		return lg
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), m.level),
	}
	if m.baseDir != "" {
		if err := os.MkdirAll(m.baseDir, 0o755); err == nil {
			path := filepath.Join(m.baseDir, name+".log")
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				m.files = append(m.files, f)
				cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), m.level))
			}
		}
	}

	lg := zap.New(zapcore.NewTee(cores...)).Named(name)
	m.loggers[name] = lg
	return lg
}

// Close flushes and closes every logger and log file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for _, lg := range m.loggers {
		if err := lg.Sync(); err != nil && first == nil {
			first = err
		}
	}
	for _, f := range m.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.loggers = make(map[string]*zap.Logger)
	m.files = nil
	return first
}

// Nop returns a logger that discards everything. Components default to it
// when the caller doesn't supply one.
func Nop() *zap.Logger { return zap.NewNop() }
