package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/logging"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("engine handle closed")

// Compile-time interface checks.
var (
	_ core.Backend = (*InMemory)(nil)
	_ core.Handle  = (*Handle)(nil)
)

// DefaultQueueSize is the default capacity of the async dispatch queue.
const DefaultQueueSize = 64

// Options configures an InMemory backend.
type Options struct {
	// Devices are enumerated by every opened handle, in order.
	// Defaults to a single local CPU.
	Devices []core.DeviceInfo

	// QueueSize bounds the async dispatch queue. Dispatch blocks while the
	// queue is full.
	QueueSize int

	// Logger receives placement logs when the effective config enables
	// device placement logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// DefaultDevices returns the device list used when none is configured.
func DefaultDevices() []core.DeviceInfo {
	return []core.DeviceInfo{
		{Name: "/job:localhost/replica:0/task:0/device:CPU:0", Type: "CPU"},
	}
}

// InMemory opens in-process engine handles.
type InMemory struct {
	opts Options
}

// NewInMemory creates a backend with defaults unless overridden.
//
// Example:
//
//	b := backend.NewInMemory(func(o *backend.Options) {
//	    o.Devices = append(backend.DefaultDevices(), core.DeviceInfo{
//	        Name: "/job:localhost/replica:0/task:0/device:GPU:0", Type: "GPU",
//	    })
//	})
func NewInMemory(optFns ...func(o *Options)) *InMemory {
	opts := Options{
		Devices:   DefaultDevices(),
		QueueSize: DefaultQueueSize,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &InMemory{opts: opts}
}

// Open decodes the serialized config and starts a handle with its async
// worker.
func (b *InMemory) Open(serialized []byte, policy core.DevicePlacementPolicy, async bool) (core.Handle, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	cfg, err := config.Unmarshal(serialized)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	devices := make([]core.DeviceInfo, len(b.opts.Devices))
	copy(devices, b.opts.Devices)

	h := &Handle{
		cfg:            cfg,
		logger:         b.opts.Logger,
		devices:        devices,
		policy:         policy,
		threadPolicies: make(map[string]core.DevicePlacementPolicy),
		asyncDefault:   async,
		threadAsync:    make(map[string]bool),
		functions:      make(map[string]any),
		queue:          make(chan task, b.opts.QueueSize),
		done:           make(chan struct{}),
	}
	h.idle = sync.NewCond(&h.mu)
	go h.worker()
	return h, nil
}

type task struct {
	ctx      context.Context
	threadID string
	op       core.Operation
}

// Handle is an in-memory engine handle.
type Handle struct {
	cfg    *config.Config
	logger logging.Logger

	mu             sync.Mutex
	closed         bool
	devices        []core.DeviceInfo
	policy         core.DevicePlacementPolicy
	threadPolicies map[string]core.DevicePlacementPolicy
	asyncDefault   bool
	threadAsync    map[string]bool
	serverDef      []byte
	keepAlive      time.Duration
	collectiveOps  []byte
	cacheClears    int
	functions      map[string]any
	runMetadata    bool
	graphs         bool
	stepStats      []*structpb.Value
	functionGraphs []*structpb.Value
	activeSteps    int

	queue    chan task
	done     chan struct{}
	// pending counts queued async operations; idle is signalled on h.mu
	// whenever it drops to zero.
	pending  int
	idle     *sync.Cond
	asyncErr error
}

// Config returns the decoded config the handle was opened with.
func (h *Handle) Config() *config.Config { return h.cfg.Clone() }

// ListDevices returns the configured devices in order.
func (h *Handle) ListDevices() ([]core.DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	out := make([]core.DeviceInfo, len(h.devices))
	copy(out, h.devices)
	return out, nil
}

// SetServerDef stores the serialized server definition.
func (h *Handle) SetServerDef(keepAlive time.Duration, serverDef []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.serverDef = append([]byte(nil), serverDef...)
	h.keepAlive = keepAlive
	return nil
}

// ServerDef returns the stored server definition and keep-alive.
func (h *Handle) ServerDef() ([]byte, time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.serverDef...), h.keepAlive
}

// EnableCollectiveOps stores the serialized collective-ops server definition.
func (h *Handle) EnableCollectiveOps(serverDef []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.collectiveOps = append([]byte(nil), serverDef...)
	return nil
}

// CollectiveOps returns the stored collective-ops server definition.
func (h *Handle) CollectiveOps() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.collectiveOps...)
}

// SetAsyncForThread switches one thread between sync and async dispatch.
func (h *Handle) SetAsyncForThread(threadID string, async bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.threadAsync[threadID] = async
	return nil
}

// IsAsync reports whether operations of a thread are dispatched asynchronously.
func (h *Handle) IsAsync(threadID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isAsyncLocked(threadID)
}

func (h *Handle) isAsyncLocked(threadID string) bool {
	if async, ok := h.threadAsync[threadID]; ok {
		return async
	}
	return h.asyncDefault
}

// SetDevicePlacementPolicy sets the process-wide policy.
func (h *Handle) SetDevicePlacementPolicy(policy core.DevicePlacementPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policy = policy
	return nil
}

// SetThreadLocalDevicePlacementPolicy overrides the policy for one thread.
func (h *Handle) SetThreadLocalDevicePlacementPolicy(threadID string, policy core.DevicePlacementPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threadPolicies[threadID] = policy
	return nil
}

// DevicePlacementPolicy returns the thread override or the process policy.
func (h *Handle) DevicePlacementPolicy(threadID string) core.DevicePlacementPolicy {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.threadPolicies[threadID]; ok {
		return p
	}
	return h.policy
}

// ClearCaches counts cache clears; the in-memory engine keeps no kernels.
func (h *Handle) ClearCaches() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheClears++
	return nil
}

// CacheClears returns how often ClearCaches was called.
func (h *Handle) CacheClears() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cacheClears
}

func (h *Handle) EnableRunMetadata() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runMetadata = true
	return nil
}

func (h *Handle) DisableRunMetadata() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runMetadata = false
	h.stepStats = nil
	return nil
}

// ExportRunMetadata serializes the step stats and function graphs gathered
// since the last export and resets them. It returns nil when run metadata is
// disabled.
func (h *Handle) ExportRunMetadata() ([]byte, error) {
	h.mu.Lock()
	if !h.runMetadata {
		h.mu.Unlock()
		return nil, nil
	}
	md := &structpb.Struct{Fields: map[string]*structpb.Value{
		"step_stats":      structpb.NewListValue(&structpb.ListValue{Values: h.stepStats}),
		"function_graphs": structpb.NewListValue(&structpb.ListValue{Values: h.functionGraphs}),
	}}
	h.stepStats = nil
	h.functionGraphs = nil
	h.mu.Unlock()

	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal run metadata: %w", err)
	}
	return b, nil
}

func (h *Handle) EnableGraphCollection() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graphs = true
	return nil
}

func (h *Handle) DisableGraphCollection() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graphs = false
	return nil
}

// AddFunction registers fn under name.
func (h *Handle) AddFunction(name string, fn any) error {
	if name == "" {
		return fmt.Errorf("%w: function name is empty", core.ErrInvalidArgument)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.functions[name] = fn
	return nil
}

// AddFunctionDef registers a serialized function definition under name.
func (h *Handle) AddFunctionDef(name string, def []byte) error {
	if len(def) == 0 {
		return fmt.Errorf("%w: function definition %q is empty", core.ErrInvalidArgument, name)
	}
	return h.AddFunction(name, append([]byte(nil), def...))
}

// HasFunction reports whether name is registered.
func (h *Handle) HasFunction(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.functions[name]
	return ok
}

func (h *Handle) StartStep() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeSteps++
	return nil
}

func (h *Handle) EndStep() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.activeSteps > 0 {
		h.activeSteps--
	}
	return nil
}

// ActiveSteps returns the number of started and not yet ended steps.
func (h *Handle) ActiveSteps() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeSteps
}

// Execute runs op inline for sync threads and enqueues it on the ordered
// worker for async threads.
func (h *Handle) Execute(ctx context.Context, threadID string, op core.Operation) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	async := h.isAsyncLocked(threadID)
	if async {
		h.pending++
	}
	h.mu.Unlock()

	if h.cfg.LogDevicePlacement {
		h.logger.Info("Executing op", "op", op.Type, "name", op.Name, "device", op.Device, "thread_id", threadID)
	}

	if async {
		h.queue <- task{ctx: context.WithoutCancel(ctx), threadID: threadID, op: op}
		return nil
	}
	return h.run(ctx, threadID, op)
}

func (h *Handle) run(ctx context.Context, threadID string, op core.Operation) error {
	var err error
	if op.Run != nil {
		err = op.Run(ctx)
	}
	h.record(threadID, op)
	return err
}

func (h *Handle) record(threadID string, op core.Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runMetadata {
		v, err := structpb.NewStruct(map[string]any{
			"op":        op.Type,
			"name":      op.Name,
			"device":    op.Device,
			"thread_id": threadID,
		})
		if err == nil {
			h.stepStats = append(h.stepStats, structpb.NewStructValue(v))
		}
	}
	if h.graphs {
		if _, ok := h.functions[op.Type]; ok {
			h.functionGraphs = append(h.functionGraphs, structpb.NewStringValue(op.Type))
		}
	}
}

// worker runs queued operations in dispatch order. Once an operation failed,
// later ones are skipped until the error is cleared.
func (h *Handle) worker() {
	defer close(h.done)
	for t := range h.queue {
		h.mu.Lock()
		failed := h.asyncErr != nil
		h.mu.Unlock()

		if !failed {
			if err := h.run(t.ctx, t.threadID, t.op); err != nil {
				h.mu.Lock()
				if h.asyncErr == nil {
					h.asyncErr = fmt.Errorf("async %s: %w", t.op.Type, err)
				}
				h.mu.Unlock()
			}
		}
		h.mu.Lock()
		h.pending--
		if h.pending == 0 {
			h.idle.Broadcast()
		}
		h.mu.Unlock()
	}
}

// AsyncWait blocks until every queued operation finished and returns the
// first async error. The error stays pending until AsyncClearError.
func (h *Handle) AsyncWait() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waitIdleLocked()
	return h.asyncErr
}

func (h *Handle) waitIdleLocked() {
	for h.pending > 0 {
		h.idle.Wait()
	}
}

// AsyncClearError discards the pending async error without waiting.
func (h *Handle) AsyncClearError() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.asyncErr = nil
}

// Close drains the async queue and stops the worker.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.waitIdleLocked()
	h.mu.Unlock()

	close(h.queue)
	<-h.done
	return nil
}
