// Package globalvars composes the variable store, serializer registry,
// segment manager and handle cache into the unified shared-variable
// facade.
//
// Every public operation returns a result.Result (success / failure /
// cancelled) instead of raising; callers wanting fail-fast behavior use
// the unwrap family on the Result. Cross-process ordering is opt-in: only
// the mutex created by ShmGen(..., createLock=true), explicitly handed to
// the peer process and held by the caller across a full ShmSync/ShmUpdate
// call, serializes against other processes. The facade never acquires
// that mutex implicitly.
package globalvars

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Workiva/go-datastructures/set"
	"github.com/cenkalti/backoff/v4"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	internalshm "github.com/srediag/shmvars/internal/shm"
	"github.com/srediag/shmvars/pkg/diag"
	"github.com/srediag/shmvars/pkg/logsys"
	"github.com/srediag/shmvars/pkg/result"
	"github.com/srediag/shmvars/pkg/segment"
	"github.com/srediag/shmvars/pkg/serializer"
	"github.com/srediag/shmvars/pkg/store"
)

// GlobalVars is the facade over one VariableStore and one process-local
// segment cache. The cache is constructed empty here and torn down
// (closing, never destroying, all entries) by Close; it is an owned
// component, not a process-wide implicit global.
type GlobalVars struct {
	cfg       Config
	vars      *store.Store
	manager   *segment.Manager
	cache     *segment.Cache
	bound     *set.Set
	collector *diag.Collector
	logger    *zap.Logger
	logs      *logsys.Manager
	metrics   *facadeMetrics
	registry  prometheus.Gatherer
	defFormat serializer.Format
}

// New builds a facade from cfg (nil means DefaultConfig).
func New(cfg *Config) (*GlobalVars, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	g := &GlobalVars{
		cfg:       *cfg,
		bound:     set.New(),
		collector: diag.NewCollector(),
	}

	g.logger = cfg.Logger
	if g.logger == nil {
		if cfg.LogDir != "" {
			g.logs = logsys.NewManager(cfg.LogDir)
			g.logger = g.logs.Logger("globalvars")
		} else {
			g.logger = logsys.Nop()
		}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = serializer.NewRegistry()
	}
	codec, _ := registry.ByName(cfg.DefaultFormat)
	g.defFormat = codec.Format()

	reg := cfg.Registerer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg = r
		g.registry = r
	}
	g.metrics = newFacadeMetrics(reg)

	g.vars = store.New(g.logger)
	g.manager = segment.NewManager(segment.ManagerConfig{
		Dir:      cfg.SegmentDir,
		Registry: registry,
		Logger:   g.logger,
	})
	g.cache = segment.NewCache(g.manager, cfg.CacheCapacity)
	g.cache.OnEvict = func(name string) {
		g.metrics.cacheEvictions.Inc()
		g.logger.Info("segment handle evicted from cache", zap.String("name", name))
	}
	g.cache.OnHit = func(string) { g.metrics.cacheHits.Inc() }
	g.cache.OnMiss = func(string) { g.metrics.cacheMisses.Inc() }
	return g, nil
}

// Store exposes the underlying variable store for direct access.
func (g *GlobalVars) Store() *store.Store { return g.vars }

// Manager exposes the segment manager, e.g. for tooling.
func (g *GlobalVars) Manager() *segment.Manager { return g.manager }

// Gatherer returns the internal Prometheus registry, or nil when the
// facade was built with an external Registerer.
func (g *GlobalVars) Gatherer() prometheus.Gatherer { return g.registry }

const ctxFacade = "globalvars"

func (g *GlobalVars) fail(err error, op string) result.Result {
	return g.collector.Failure(err, ctxFacade+"."+op)
}

// Set stores a variable.
func (g *GlobalVars) Set(key string, value any, overwrite bool) result.Result {
	if err := g.vars.Set(key, value, overwrite); err != nil {
		return g.fail(err, "Set")
	}
	return result.OKMsg(fmt.Sprintf("variable %q set", key), nil)
}

// Get returns a variable's value.
func (g *GlobalVars) Get(key string) result.Result {
	v, err := g.vars.Get(key)
	if err != nil {
		return g.fail(err, "Get")
	}
	return result.OK(v)
}

// Delete removes a variable.
func (g *GlobalVars) Delete(key string) result.Result {
	if err := g.vars.Delete(key); err != nil {
		return g.fail(err, "Delete")
	}
	return result.OKMsg(fmt.Sprintf("variable %q deleted", key), nil)
}

// Clear removes every variable.
func (g *GlobalVars) Clear() result.Result {
	g.vars.Clear()
	return result.OKMsg("all variables cleared", nil)
}

// Exists reports whether a variable is present.
func (g *GlobalVars) Exists(key string) result.Result {
	return result.OK(g.vars.Exists(key))
}

// ListVars returns the variable names.
func (g *GlobalVars) ListVars() result.Result {
	return result.OK(g.vars.ListVars())
}

// WithLock runs fn under the store's scoped lock; the lock is released on
// every exit path.
func (g *GlobalVars) WithLock(fn func(s *store.Store) error) result.Result {
	if err := g.vars.WithLock(fn); err != nil {
		return g.fail(err, "WithLock")
	}
	return result.OK(nil)
}

// ShmGen allocates a new named segment of exactly size bytes and binds it
// to this facade. With createLock the returned Result carries a
// *segment.Mutex that must be handed to any other process before that
// process first touches the segment -- it cannot be recovered by name
// afterwards.
func (g *GlobalVars) ShmGen(name string, size int, createLock bool) result.Result {
	h, mtx, err := g.manager.Create(name, size, g.defFormat, createLock)
	if err != nil {
		return g.fail(err, "ShmGen")
	}
	g.cache.Put(name, h)
	g.bound.Add(name)
	g.logger.Info("segment generated", zap.String("name", name), zap.Int("size", size))
	if createLock {
		return result.OKMsg(fmt.Sprintf("segment %q created", name), mtx)
	}
	return result.OKMsg(fmt.Sprintf("segment %q created", name), nil)
}

// ShmConnect attaches to an existing segment created elsewhere. Unlike
// ShmGen it never creates the segment or a lock.
func (g *GlobalVars) ShmConnect(name string) result.Result {
	if _, err := g.cache.GetOrOpen(name); err != nil {
		return g.fail(err, "ShmConnect")
	}
	g.bound.Add(name)
	g.logger.Info("connected to segment", zap.String("name", name))
	return result.OKMsg(fmt.Sprintf("connected to segment %q", name), nil)
}

// ShmConnectWait is ShmConnect with exponential backoff while the creator
// has not published the segment yet, bounded by maxElapsed.
func (g *GlobalVars) ShmConnectWait(name string, maxElapsed time.Duration) result.Result {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed
	err := backoff.Retry(func() error {
		_, err := g.cache.GetOrOpen(name)
		if err != nil && !errors.Is(err, result.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
	if err != nil {
		return g.fail(err, "ShmConnectWait")
	}
	g.bound.Add(name)
	return result.OKMsg(fmt.Sprintf("connected to segment %q", name), nil)
}

// ShmGet returns the open handle for name, opening and caching it if
// needed.
func (g *GlobalVars) ShmGet(name string) result.Result {
	h, err := g.cache.GetOrOpen(name)
	if err != nil {
		return g.fail(err, "ShmGet")
	}
	return result.OK(h)
}

// ShmSync pushes the whole variable mapping into the segment, framed
// with the given format (FormatUnknown means the configured default).
//
// If a cross-process mutex guards the segment, the caller must hold it
// across the entire call; the facade never acquires it implicitly.
func (g *GlobalVars) ShmSync(ctx context.Context, name string, format serializer.Format) result.Result {
	if err := ctx.Err(); err != nil {
		return result.Cancelled(err.Error(), ctxFacade+".ShmSync")
	}
	if !g.bound.Exists(name) {
		g.metrics.syncErrors.Inc()
		return g.fail(fmt.Errorf("segment %q is not bound to this facade: %w", name, result.ErrNotFound), "ShmSync")
	}
	h, err := g.cache.GetOrOpen(name)
	if err != nil {
		g.metrics.syncErrors.Inc()
		return g.fail(err, "ShmSync")
	}
	if format == serializer.FormatUnknown {
		format = g.defFormat
	}
	n, err := g.manager.Write(ctx, h, g.vars.Snapshot(), format)
	if err != nil {
		g.metrics.syncErrors.Inc()
		return g.fail(err, "ShmSync")
	}
	g.metrics.syncBytes.Add(float64(n))
	g.logger.Debug("segment synchronized", zap.String("name", name), zap.Int("bytes", n))
	return result.OKMsg(fmt.Sprintf("segment %q synchronized", name), nil)
}

// ShmUpdate pulls the segment's content into the variable mapping,
// merging over existing keys. The header's declared format drives
// decoding; a non-unknown format argument is treated as an expectation
// and a mismatch fails with ErrUnsupportedFormat. A valid header with a
// zero-length payload is a success no-op.
func (g *GlobalVars) ShmUpdate(ctx context.Context, name string, format serializer.Format) result.Result {
	if err := ctx.Err(); err != nil {
		return result.Cancelled(err.Error(), ctxFacade+".ShmUpdate")
	}
	h, err := g.cache.GetOrOpen(name)
	if err != nil {
		g.metrics.updateErrors.Inc()
		return g.fail(err, "ShmUpdate")
	}
	var decoded map[string]any
	declared, n, err := g.manager.Read(ctx, h, &decoded)
	if err != nil {
		g.metrics.updateErrors.Inc()
		return g.fail(err, "ShmUpdate")
	}
	if format != serializer.FormatUnknown && format != declared {
		g.metrics.updateErrors.Inc()
		return g.fail(fmt.Errorf("segment %q declares format %s, expected %s: %w",
			name, declared, format, result.ErrUnsupportedFormat), "ShmUpdate")
	}
	if n == 0 {
		return result.OKMsg(fmt.Sprintf("segment %q holds no payload", name), nil)
	}
	g.vars.Merge(decoded)
	g.metrics.updateBytes.Add(float64(n))
	g.logger.Debug("store updated from segment", zap.String("name", name), zap.Int("bytes", n))
	return result.OKMsg(fmt.Sprintf("store updated from segment %q", name), nil)
}

// ShmClose detaches the segment locally; with closeOnly=false it also
// destroys the OS segment for every process, after which any Open of the
// name reports NotFound. Closing a name that is no longer open is a no-op
// for closeOnly and reports NotFound when destruction was requested.
func (g *GlobalVars) ShmClose(name string, closeOnly bool) result.Result {
	err := g.cache.Close(name, closeOnly)
	if errors.Is(err, result.ErrNotFound) && !closeOnly {
		// not cached locally; attach just to destroy
		h, oerr := g.manager.Open(name)
		if oerr != nil {
			g.bound.Remove(name)
			return g.fail(oerr, "ShmClose")
		}
		err = g.manager.Close(h, false)
	} else if errors.Is(err, result.ErrNotFound) && closeOnly {
		err = nil
	}
	if err != nil {
		return g.fail(err, "ShmClose")
	}
	if !closeOnly {
		g.bound.Remove(name)
	}
	g.logger.Info("segment closed", zap.String("name", name), zap.Bool("close_only", closeOnly))
	return result.OKMsg(fmt.Sprintf("segment %q closed", name), nil)
}

// ShmCacheManagement mirrors the cache's maintenance entry points:
// a name with a handle inserts or refreshes the entry, a bare name
// refreshes recency, and empty arguments detach every cached handle.
func (g *GlobalVars) ShmCacheManagement(name string, h *segment.Handle) result.Result {
	switch {
	case name == "" && h == nil:
		if err := g.cache.CloseAll(); err != nil {
			return g.fail(err, "ShmCacheManagement")
		}
		return result.OKMsg("segment cache cleared", nil)
	case name == "":
		return g.fail(fmt.Errorf("cache entry needs a segment name"), "ShmCacheManagement")
	case h != nil:
		g.cache.Put(name, h)
		return result.OKMsg(fmt.Sprintf("segment %q cached", name), nil)
	default:
		if _, err := g.cache.GetOrOpen(name); err != nil {
			return g.fail(err, "ShmCacheManagement")
		}
		return result.OKMsg(fmt.Sprintf("segment %q touched", name), nil)
	}
}

// CacheLen returns the number of cached segment handles.
func (g *GlobalVars) CacheLen() int { return g.cache.Len() }

// HealthHandler returns a healthcheck handler wired with segment-dir
// space and cache-bound checks.
func (g *GlobalVars) HealthHandler() healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("segment-dir-space", func() error {
		if !internalshm.CanCreateOnDevShm(segment.HeaderSize, internalshm.SegmentPath(g.cfg.SegmentDir, "probe")) {
			return fmt.Errorf("no space left for even a segment header")
		}
		return nil
	})
	h.AddReadinessCheck("segment-cache", func() error {
		if n := g.cache.Len(); n > g.cfg.CacheCapacity {
			return fmt.Errorf("cache holds %d handles, capacity %d", n, g.cfg.CacheCapacity)
		}
		return nil
	})
	return h
}

// Close tears the facade down: every cached handle is closed (none
// destroyed) and owned loggers are flushed.
func (g *GlobalVars) Close() error {
	err := g.cache.CloseAll()
	if g.logs != nil {
		if lerr := g.logs.Close(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}
