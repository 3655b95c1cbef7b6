package eager

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/eagerctx/backend"
	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/device"
	"github.com/hupe1980/eagerctx/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"
)

const tracerName = "github.com/hupe1980/eagerctx/eager"

var (
	defaultMu  sync.Mutex
	defaultCtx atomic.Pointer[Context]
)

// Default returns the process-wide Context, creating it on first call.
// Later calls are lock-free.
func Default() *Context {
	if c := defaultCtx.Load(); c != nil {
		return c
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if c := defaultCtx.Load(); c != nil {
		return c
	}
	c := New()
	defaultCtx.Store(c)
	return c
}

// Safe returns the process-wide Context or nil if none was created yet.
func Safe() *Context {
	return defaultCtx.Load()
}

// SetDefault installs c as the process-wide Context. It reports false and
// leaves the existing instance in place if one was already created.
func SetDefault(c *Context) bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCtx.Load() != nil {
		return false
	}
	defaultCtx.Store(c)
	return true
}

// handleState is published atomically once the engine handle and its device
// list are complete.
type handleState struct {
	handle  core.Handle
	devices []string
	numGPUs int
	// generation identifies the opened handle. Re-enumeration keeps it.
	generation uint64
}

// Context is the runtime context: it owns the engine handle, the overlay
// deltas and the process-wide caches.
//
// Concurrency: the handle is realized exactly once under initMu and
// published through an atomic pointer, so readers never observe a partially
// initialized handle. initMu is always taken before mu.
type Context struct {
	backend     core.Backend
	logger      logging.Logger
	tracer      trace.Tracer
	defaultMode core.Mode

	initMu sync.Mutex
	state  atomic.Pointer[handleState]

	mu                     sync.RWMutex
	baseConfig             *config.Config
	overlay                config.Overlay
	devicePolicy           core.DevicePlacementPolicy
	executionMode          core.ExecutionMode
	seed                   *int64
	rng                    *rand.Rand
	serverDef              proto.Message
	keepAlive              time.Duration
	collectiveOpsServerDef proto.Message

	placements *device.Cache
	callbacks  *CallbackManager

	// cacheEpoch flushes per-thread value caches lazily.
	cacheEpoch atomic.Uint64
	// optionsGeneration invalidates per-thread function call options.
	optionsGeneration atomic.Uint64
	// handleGeneration counts opened handles; per-thread engine settings
	// are only valid for the handle they were made on.
	handleGeneration atomic.Uint64
}

// New creates a Context. Invalid policy or execution mode values fall back
// to their defaults.
func New(optFns ...func(o *Options)) *Context {
	opts := Options{
		DevicePolicy:    core.PlacementSilent,
		ExecutionMode:   core.Sync,
		DefaultMode:     core.ModeEager,
		ServerKeepAlive: DefaultKeepAlive,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Backend == nil {
		opts.Backend = backend.NewInMemory(func(o *backend.Options) { o.Logger = opts.Logger })
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.DevicePolicy.Validate() != nil {
		opts.DevicePolicy = core.PlacementSilent
	}
	if opts.ExecutionMode.Validate() != nil {
		opts.ExecutionMode = core.Sync
	}
	if !opts.DefaultMode.Valid() {
		opts.DefaultMode = core.ModeEager
	}
	if opts.ServerKeepAlive <= 0 {
		opts.ServerKeepAlive = DefaultKeepAlive
	}

	c := &Context{
		backend:       opts.Backend,
		logger:        opts.Logger,
		tracer:        opts.TracerProvider.Tracer(tracerName),
		defaultMode:   opts.DefaultMode,
		baseConfig:    opts.Config.Clone(),
		devicePolicy:  opts.DevicePolicy,
		executionMode: opts.ExecutionMode,
		serverDef:     opts.ServerDef,
		keepAlive:     opts.ServerKeepAlive,
		placements:    device.NewCache(),
		callbacks:     NewCallbackManager(),
	}
	if opts.Seed != nil {
		c.setSeedLocked(*opts.Seed)
	}
	return c
}

// Handle returns the engine handle, realizing it on first call.
func (c *Context) Handle() (core.Handle, error) {
	if s := c.state.Load(); s != nil {
		return s.handle, nil
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if s := c.state.Load(); s != nil {
		return s.handle, nil
	}
	return c.initialize()
}

// Initialized reports whether the engine handle has been realized.
func (c *Context) Initialized() bool {
	return c.state.Load() != nil
}

// initialize opens and publishes the handle. The caller holds initMu.
func (c *Context) initialize() (core.Handle, error) {
	_, span := c.tracer.Start(context.Background(), "eager.initialize")
	defer span.End()

	start := time.Now()
	st, err := c.open()
	c.logInitialization(st, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("eager.device_count", len(st.devices)),
		attribute.Int("eager.gpu_count", st.numGPUs),
	)
	st.generation = c.handleGeneration.Add(1)
	c.state.Store(st)
	return st.handle, nil
}

func (c *Context) open() (*handleState, error) {
	c.mu.RLock()
	cfg := c.overlay.Apply(c.baseConfig, c.defaultMode == core.ModeEager)
	policy := c.devicePolicy
	async := c.executionMode == core.Async
	serverDef, keepAlive, collective := c.serverDef, c.keepAlive, c.collectiveOpsServerDef
	c.mu.RUnlock()

	if serverDef != nil && collective != nil {
		return nil, core.ErrConflictingServerConfig
	}

	serialized, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}
	h, err := c.backend.Open(serialized, policy, async)
	if err != nil {
		return nil, fmt.Errorf("open engine handle: %w", err)
	}

	st, err := c.configure(h, serverDef, keepAlive, collective)
	if err != nil {
		if closeErr := h.Close(); closeErr != nil {
			c.logger.Warn("Failed to close engine handle", "error", closeErr)
		}
		return nil, err
	}
	return st, nil
}

func (c *Context) configure(h core.Handle, serverDef proto.Message, keepAlive time.Duration, collective proto.Message) (*handleState, error) {
	switch {
	case serverDef != nil:
		b, err := proto.Marshal(serverDef)
		if err != nil {
			return nil, fmt.Errorf("marshal server def: %w", err)
		}
		if err := h.SetServerDef(keepAlive, b); err != nil {
			return nil, fmt.Errorf("set server def: %w", err)
		}
	case collective != nil:
		b, err := proto.Marshal(collective)
		if err != nil {
			return nil, fmt.Errorf("marshal collective ops server def: %w", err)
		}
		if err := h.EnableCollectiveOps(b); err != nil {
			return nil, fmt.Errorf("enable collective ops: %w", err)
		}
	}
	return enumerate(h)
}

func enumerate(h core.Handle) (*handleState, error) {
	infos, err := h.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	st := &handleState{handle: h, devices: make([]string, 0, len(infos))}
	for _, info := range infos {
		name, err := device.Canonical(info.Name)
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		st.devices = append(st.devices, name)
		if info.Type == "GPU" {
			st.numGPUs++
		}
	}
	return st, nil
}

type initLogger interface {
	LogInitialization(devices int, dur time.Duration, err error)
}

func (c *Context) logInitialization(st *handleState, dur time.Duration, err error) {
	n := 0
	if st != nil {
		n = len(st.devices)
	}
	if l, ok := c.logger.(initLogger); ok {
		l.LogInitialization(n, dur, err)
		return
	}
	if err != nil {
		c.logger.Error("Engine handle initialization failed", "error", err)
		return
	}
	c.logger.Info("Engine handle initialized", "device_count", n, "duration", dur)
}

// Devices returns the canonical names of the enumerated devices, realizing
// the handle if needed.
func (c *Context) Devices() ([]string, error) {
	if _, err := c.Handle(); err != nil {
		return nil, err
	}
	st := c.state.Load()
	out := make([]string, len(st.devices))
	copy(out, st.devices)
	return out, nil
}

// NumGPUs returns the number of enumerated GPU devices, realizing the handle
// if needed.
func (c *Context) NumGPUs() (int, error) {
	if _, err := c.Handle(); err != nil {
		return 0, err
	}
	return c.state.Load().numGPUs, nil
}

// String implements fmt.Stringer.
func (c *Context) String() string {
	c.mu.RLock()
	policy, mode := c.devicePolicy, c.executionMode
	c.mu.RUnlock()
	if st := c.state.Load(); st != nil {
		return fmt.Sprintf("eager.Context{initialized: true, devices: %d, gpus: %d, policy: %s, execution_mode: %s}",
			len(st.devices), st.numGPUs, policy, mode)
	}
	return fmt.Sprintf("eager.Context{initialized: false, policy: %s, execution_mode: %s}", policy, mode)
}

// ResolveDevice merges requested onto the placement named by old. The result
// is memoized process-wide. An empty request resets placement. When old is
// empty the first enumerated device is the base, which realizes the handle.
func (c *Context) ResolveDevice(old, requested string) (device.Placement, error) {
	return c.placements.Resolve(old, requested, c.firstDevice)
}

func (c *Context) firstDevice() (string, error) {
	devices, err := c.Devices()
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w: no devices available", core.ErrInvalidArgument)
	}
	return devices[0], nil
}

// PlacementCacheLen returns the number of memoized device placements.
func (c *Context) PlacementCacheLen() int {
	return c.placements.Len()
}

// Close releases the engine handle if it was realized. A closed Context
// realizes a fresh handle on next use.
func (c *Context) Close() error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	st := c.state.Swap(nil)
	if st == nil {
		return nil
	}
	c.placements.Reset()
	c.cacheEpoch.Add(1)
	return st.handle.Close()
}
