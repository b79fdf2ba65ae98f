// Package segment creates, opens and frames named shared-memory segments,
// and bounds the set of open handles with an LRU cache.
//
// A segment name denotes exactly one OS-level block; every process that
// opens the name sees the same bytes. The block lives until some holder
// destroys it with a non-close-only Close, regardless of how many other
// processes still hold mappings.
package segment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	internalshm "github.com/srediag/shmvars/internal/shm"
	"github.com/srediag/shmvars/pkg/logsys"
	"github.com/srediag/shmvars/pkg/result"
	"github.com/srediag/shmvars/pkg/serializer"
)

// Handle is an open view of a named segment. The size is fixed at
// creation and immutable; Format is the default used by Write.
type Handle struct {
	name   string
	format serializer.Format

	mu     sync.Mutex
	region *internalshm.MappedRegion
	closed bool
}

// Name returns the OS-global segment name.
func (h *Handle) Name() string { return h.name }

// Size returns the fixed segment size in bytes.
func (h *Handle) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.region == nil {
		return 0
	}
	return h.region.Size
}

// Format returns the handle's default serializer format.
func (h *Handle) Format() serializer.Format { return h.format }

// ManagerConfig holds Manager construction parameters. Zero values fall
// back to the platform segment directory, a fresh registry with the
// built-in codecs, a nop logger and noop OTel providers.
type ManagerConfig struct {
	// Dir is the directory backing named segments (/dev/shm on Linux).
	Dir      string
	Registry *serializer.Registry
	Logger   *zap.Logger
	Meter    metric.Meter
	Tracer   trace.Tracer
}

// Manager creates and opens segments and performs header-framed reads and
// writes against them. Safe for concurrent use.
type Manager struct {
	dir      string
	registry *serializer.Registry
	logger   *zap.Logger
	tracer   trace.Tracer

	writeBytes metric.Int64Counter
	readBytes  metric.Int64Counter
}

// NewManager returns a Manager for the given config.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Registry == nil {
		cfg.Registry = serializer.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logsys.Nop()
	}
	if cfg.Meter == nil {
		cfg.Meter = metricnoop.NewMeterProvider().Meter("shmvars")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("shmvars")
	}
	m := &Manager{
		dir:      cfg.Dir,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
	}
	m.writeBytes, _ = cfg.Meter.Int64Counter("shmvars.segment.write.bytes")
	m.readBytes, _ = cfg.Meter.Int64Counter("shmvars.segment.read.bytes")
	return m
}

// Registry exposes the serializer registry the Manager encodes with.
func (m *Manager) Registry() *serializer.Registry { return m.registry }

// Create allocates a new segment of exactly size bytes. The name must not
// be taken; a collision reports ErrAlreadyExists and the first creator
// wins. When createLock is set, a process-shared mutex is constructed and
// returned; it is not discoverable by name and must be handed to any other
// process before that process first touches the segment.
func (m *Manager) Create(name string, size int, format serializer.Format, createLock bool) (*Handle, *Mutex, error) {
	if name == "" {
		return nil, nil, errors.New("segment name must be a non-empty string")
	}
	if size <= 0 {
		return nil, nil, fmt.Errorf("segment size must be positive, got %d", size)
	}
	path := internalshm.SegmentPath(m.dir, name)
	region, err := internalshm.MapRegion(internalshm.MapOptions{Name: path, Size: size, Create: true})
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, nil, fmt.Errorf("segment %q: %w", name, result.ErrAlreadyExists)
		}
		return nil, nil, fmt.Errorf("create segment %q: %w", name, err)
	}
	h := &Handle{name: name, format: format, region: region}

	var mtx *Mutex
	if createLock {
		mtx, err = NewMutex()
		if err != nil {
			_ = m.Close(h, false)
			return nil, nil, fmt.Errorf("create segment lock: %w", err)
		}
	}
	m.logger.Info("segment created",
		zap.String("name", name), zap.Int("size", size), zap.Bool("lock", createLock))
	return h, mtx, nil
}

// Open attaches to an existing segment. A missing name reports
// ErrNotFound. No mutex is ever created here; attaching processes receive
// the creator's mutex out of band or go without.
func (m *Manager) Open(name string) (*Handle, error) {
	if name == "" {
		return nil, errors.New("segment name must be a non-empty string")
	}
	path := internalshm.SegmentPath(m.dir, name)
	region, err := internalshm.MapRegion(internalshm.MapOptions{Name: path})
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("segment %q: %w", name, result.ErrNotFound)
		}
		return nil, fmt.Errorf("open segment %q: %w", name, err)
	}
	m.logger.Debug("segment opened", zap.String("name", name), zap.Int("size", region.Size))
	return &Handle{name: name, format: serializer.FormatUnknown, region: region}, nil
}

// Write encodes v with format (or the handle's default when format is
// FormatUnknown) and overwrites the segment from offset 0 with
// header+payload, returning the payload byte count. If the frame doesn't
// fit, ErrPayloadTooLarge is reported and the prior segment content is
// left byte-for-byte unchanged.
func (m *Manager) Write(ctx context.Context, h *Handle, v any, format serializer.Format) (int, error) {
	_, span := m.tracer.Start(ctx, "segment.write")
	defer span.End()

	if format == serializer.FormatUnknown {
		format = h.format
	}
	codec, ok := m.registry.ByFormat(format)
	if !ok {
		return 0, fmt.Errorf("format %d: %w", format, result.ErrUnsupportedFormat)
	}
	payload, err := codec.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode with %s: %w", codec.Name(), err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.region == nil {
		return 0, fmt.Errorf("segment %q is closed: %w", h.name, result.ErrNotFound)
	}
	if HeaderSize+len(payload) > h.region.Size {
		return 0, fmt.Errorf("header+payload %d bytes exceeds segment size %d: %w",
			HeaderSize+len(payload), h.region.Size, result.ErrPayloadTooLarge)
	}
	putHeader(h.region.Addr, format, uint64(len(payload)))
	copy(h.region.Addr[HeaderSize:], payload)
	m.writeBytes.Add(ctx, int64(len(payload)))
	m.logger.Debug("segment written",
		zap.String("name", h.name), zap.Stringer("format", format), zap.Int("bytes", len(payload)))
	return len(payload), nil
}

// Read validates the header, decodes the payload with the declared format
// and stores it into v, returning the declared format and payload byte
// count. An unreadable or inconsistent header reports ErrCorruptHeader;
// an unknown declared format reports ErrUnsupportedFormat. A valid header
// declaring zero payload bytes leaves v untouched.
func (m *Manager) Read(ctx context.Context, h *Handle, v any) (serializer.Format, int, error) {
	_, span := m.tracer.Start(ctx, "segment.read")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.region == nil {
		return serializer.FormatUnknown, 0, fmt.Errorf("segment %q is closed: %w", h.name, result.ErrNotFound)
	}
	format, payloadLen, err := parseHeader(h.region.Addr, h.region.Size)
	if err != nil {
		return serializer.FormatUnknown, 0, fmt.Errorf("segment %q: %w", h.name, err)
	}
	codec, ok := m.registry.ByFormat(format)
	if !ok {
		return format, 0, fmt.Errorf("segment %q declares format %d: %w", h.name, format, result.ErrUnsupportedFormat)
	}
	if payloadLen == 0 {
		return format, 0, nil
	}
	// copy out before decoding so a concurrent writer can't shear the
	// payload under the decoder
	payload := make([]byte, payloadLen)
	copy(payload, h.region.Addr[HeaderSize:HeaderSize+payloadLen])
	if err := codec.Unmarshal(payload, v); err != nil {
		return format, payloadLen, fmt.Errorf("decode %d bytes with %s: %w", payloadLen, codec.Name(), err)
	}
	m.readBytes.Add(ctx, int64(payloadLen))
	return format, payloadLen, nil
}

// Close always detaches the local mapping. With closeOnly the backing
// segment survives for other holders; without it the segment is destroyed
// and any subsequent Open of the name reports ErrNotFound, in every
// process. Closing an already-closed handle is a no-op.
func (m *Manager) Close(h *Handle, closeOnly bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	path := h.region.Path
	err := internalshm.UnmapRegion(h.region)
	h.region = nil
	if !closeOnly {
		if uerr := internalshm.UnlinkRegion(path); uerr != nil && err == nil {
			err = uerr
		}
		m.logger.Info("segment destroyed", zap.String("name", h.name))
	} else {
		m.logger.Debug("segment detached", zap.String("name", h.name))
	}
	return err
}
