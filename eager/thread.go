package eager

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/eagerctx/cache"
	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/device"
)

// ValueKey keys the per-thread value caches. Value must be comparable.
type ValueKey struct {
	Value  any
	DType  string
	Device string
}

// ValueCache is a bounded per-thread cache of small recurring values.
type ValueCache = cache.FIFO[ValueKey, cache.Sized]

// Thread is the state of one logical thread of execution. It must only be
// used by the goroutine that owns it.
type Thread struct {
	ctx *Context
	id  string

	mode       core.Mode
	deviceName string
	deviceSpec *device.Spec
	scopeName  string

	// executionMode is the thread override made on the handle identified by
	// executionModeGeneration; nil means the process default.
	executionMode           *core.ExecutionMode
	executionModeGeneration uint64

	functionCallOptions *config.FunctionCallOptions
	optionsGeneration   uint64

	cacheEpoch    uint64
	scalarCache   map[ValueKey]any
	onesRankCache *ValueCache
	zerosCache    *ValueCache

	switches *SwitchStack

	summary summaryState
}

// NewThread creates the state for a new thread. It starts in the process
// default mode with an empty device spec.
func (c *Context) NewThread() *Thread {
	th := &Thread{
		ctx:         c,
		id:          uuid.NewString(),
		mode:        c.defaultMode,
		deviceSpec:  device.Empty,
		scalarCache: make(map[ValueKey]any),
		cacheEpoch:  c.cacheEpoch.Load(),
		summary:     summaryState{distributionStrategy: Always},
	}
	th.switches = NewSwitchStack(c.defaultMode == core.ModeEager, th.enterEager)
	return th
}

func (th *Thread) enterEager() func() error {
	return th.EnterMode(core.ModeEager).Exit
}

type threadKey struct{}

// Attach returns a copy of ctx carrying th.
func (th *Thread) Attach(ctx context.Context) context.Context {
	return context.WithValue(ctx, threadKey{}, th)
}

// ThreadFromContext returns the Thread attached to ctx.
func ThreadFromContext(ctx context.Context) (*Thread, bool) {
	th, ok := ctx.Value(threadKey{}).(*Thread)
	return th, ok
}

// ID returns the thread identifier used at the engine boundary.
func (th *Thread) ID() string { return th.id }

// Context returns the runtime context the thread belongs to.
func (th *Thread) Context() *Context { return th.ctx }

// Mode returns the active mode.
func (th *Thread) Mode() core.Mode { return th.mode }

// ExecutingEagerly reports whether the thread is in eager mode.
func (th *Thread) ExecutingEagerly() bool { return th.mode == core.ModeEager }

// DeviceName returns the active device name; empty means unset.
func (th *Thread) DeviceName() string { return th.deviceName }

// DeviceSpec returns the active device spec.
func (th *Thread) DeviceSpec() *device.Spec { return th.deviceSpec }

// ScopeName returns the active name scope.
func (th *Thread) ScopeName() string { return th.scopeName }

// SetScopeName replaces the active name scope.
func (th *Thread) SetScopeName(name string) { th.scopeName = name }

// ContextSwitches returns the thread's scope switch stack.
func (th *Thread) ContextSwitches() *SwitchStack { return th.switches }

// ExecutionMode returns the thread's execution mode. Before the handle is
// realized, and after it was replaced by Close and a new initialization,
// this is the process default.
func (th *Thread) ExecutionMode() core.ExecutionMode {
	st := th.ctx.state.Load()
	if st == nil || th.executionMode == nil || th.executionModeGeneration != st.generation {
		return th.ctx.ExecutionMode()
	}
	return *th.executionMode
}

// SetExecutionMode switches the thread between Sync and Async dispatch.
// Once the handle exists the change is forwarded to the engine for this
// thread only; before that it is buffered as the process default.
func (th *Thread) SetExecutionMode(mode core.ExecutionMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	if th.ExecutionMode() == mode {
		return nil
	}

	c := th.ctx
	c.initMu.Lock()
	st := c.state.Load()
	if st == nil {
		c.mu.Lock()
		c.executionMode = mode
		c.mu.Unlock()
		c.initMu.Unlock()
		return nil
	}
	c.initMu.Unlock()

	if err := st.handle.SetAsyncForThread(th.id, mode == core.Async); err != nil {
		return fmt.Errorf("set execution mode: %w", err)
	}
	th.executionMode = &mode
	th.executionModeGeneration = st.generation
	return nil
}

// DevicePolicy returns the placement policy in effect for the thread.
func (th *Thread) DevicePolicy() core.DevicePlacementPolicy {
	if st := th.ctx.state.Load(); st != nil {
		return st.handle.DevicePlacementPolicy(th.id)
	}
	return th.ctx.DevicePolicy()
}

// SetDevicePolicy overrides the placement policy for the thread once the
// handle exists; before that it sets the process default.
func (th *Thread) SetDevicePolicy(policy core.DevicePlacementPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	st := th.ctx.state.Load()
	if st == nil {
		return th.ctx.SetDevicePolicy(policy)
	}
	if err := st.handle.SetThreadLocalDevicePlacementPolicy(th.id, policy); err != nil {
		return fmt.Errorf("set device placement policy: %w", err)
	}
	return nil
}

// FunctionCallOptions returns the thread's function call options, building
// them from the effective config on first use and after any knob that
// affects them changed. Soft placement is forced on unless set explicitly.
//
// The returned value is the thread's live options.
func (th *Thread) FunctionCallOptions() (*config.FunctionCallOptions, error) {
	gen := th.ctx.optionsGeneration.Load()
	if th.functionCallOptions != nil && th.optionsGeneration == gen {
		return th.functionCallOptions, nil
	}
	cfg := th.ctx.EffectiveConfig(th)
	if !th.ctx.softPlacementSet() {
		cfg.AllowSoftPlacement = true
	}
	opts, err := config.NewFunctionCallOptions("", cfg)
	if err != nil {
		return nil, err
	}
	th.functionCallOptions = opts
	th.optionsGeneration = gen
	return opts, nil
}

// SetFunctionCallOptions replaces the thread's function call options.
func (th *Thread) SetFunctionCallOptions(opts *config.FunctionCallOptions) {
	th.functionCallOptions = opts
	th.optionsGeneration = th.ctx.optionsGeneration.Load()
}

func (th *Thread) syncCaches() {
	epoch := th.ctx.cacheEpoch.Load()
	if epoch == th.cacheEpoch {
		return
	}
	clear(th.scalarCache)
	if th.onesRankCache != nil {
		th.onesRankCache.Flush()
	}
	if th.zerosCache != nil {
		th.zerosCache.Flush()
	}
	th.cacheEpoch = epoch
}

// ScalarCache returns the per-thread scalar cache.
func (th *Thread) ScalarCache() map[ValueKey]any {
	th.syncCaches()
	return th.scalarCache
}

// OnesRankCache returns the per-thread cache of ones tensors keyed by rank.
func (th *Thread) OnesRankCache() *ValueCache {
	th.syncCaches()
	if th.onesRankCache == nil {
		th.onesRankCache = cache.NewFIFO[ValueKey, cache.Sized]()
	}
	return th.onesRankCache
}

// ZerosCache returns the per-thread cache of zeros tensors.
func (th *Thread) ZerosCache() *ValueCache {
	th.syncCaches()
	if th.zerosCache == nil {
		th.zerosCache = cache.NewFIFO[ValueKey, cache.Sized]()
	}
	return th.zerosCache
}

// Execute dispatches op on the engine, placing it on the active device when
// op.Device is empty, and then runs the post-execution callbacks.
func (th *Thread) Execute(ctx context.Context, op core.Operation) error {
	h, err := th.ctx.Handle()
	if err != nil {
		return err
	}
	if op.Device == "" {
		op.Device = th.deviceName
	}
	if err := h.Execute(ctx, th.id, op); err != nil {
		return fmt.Errorf("execute %s: %w", op.Type, err)
	}
	return th.ctx.callbacks.ExecuteCallbacks(ctx, &ExecutionInfo{
		ThreadID:      th.id,
		Operation:     op,
		ExecutionMode: th.ExecutionMode(),
	})
}
