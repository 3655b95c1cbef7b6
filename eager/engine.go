package eager

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/eagerctx/core"
	"google.golang.org/protobuf/proto"
)

// AnonymousSharedName is used as the shared name of resources created while
// executing eagerly, so that they are never spuriously shared.
var AnonymousSharedName = uuid.MustParse("cd2c89b7-88b7-44c8-ad83-06c2a9158347")

// SharedName returns name, or the anonymous shared name when name is empty
// and th executes eagerly.
func SharedName(th *Thread, name string) string {
	if name == "" && th.ExecutingEagerly() {
		return AnonymousSharedName.String()
	}
	return name
}

// SetGlobalSeed sets the global seed and reseeds the operation seed
// generator. Engine kernel caches are cleared so stateful kernels pick up
// the new seed.
func (c *Context) SetGlobalSeed(seed int64) error {
	c.mu.Lock()
	c.setSeedLocked(seed)
	c.mu.Unlock()
	if st := c.state.Load(); st != nil {
		if err := st.handle.ClearCaches(); err != nil {
			return fmt.Errorf("clear caches: %w", err)
		}
	}
	return nil
}

func (c *Context) setSeedLocked(seed int64) {
	c.seed = &seed
	c.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// GlobalSeed returns the global seed and whether one is set.
func (c *Context) GlobalSeed() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.seed == nil {
		return 0, false
	}
	return *c.seed, true
}

// InternalOperationSeed derives an operation seed in [0, MaxInt32] from the
// global seed generator. It reports false when no global seed is set.
func (c *Context) InternalOperationSeed() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rng == nil {
		return 0, false
	}
	return c.rng.Int64N(math.MaxInt32 + 1), true
}

// SetServerDef stages a remote server definition. When the handle already
// exists the definition is forwarded, devices are re-enumerated and every
// placement and value cache is flushed.
func (c *Context) SetServerDef(def proto.Message, keepAlive time.Duration) error {
	if def == nil {
		return fmt.Errorf("%w: server def is nil", core.ErrInvalidArgument)
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	c.serverDef = def
	c.keepAlive = keepAlive
	c.mu.Unlock()

	defer c.clearCaches()
	st := c.state.Load()
	if st == nil {
		return nil
	}
	b, err := proto.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal server def: %w", err)
	}
	if err := st.handle.SetServerDef(keepAlive, b); err != nil {
		return fmt.Errorf("set server def: %w", err)
	}
	return c.reenumerate(st.handle)
}

// EnableCollectiveOps stages a collective-ops server definition. Staging it
// together with a remote server definition fails at initialization.
func (c *Context) EnableCollectiveOps(def proto.Message) error {
	if def == nil {
		return fmt.Errorf("%w: collective ops server def is nil", core.ErrInvalidArgument)
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	c.collectiveOpsServerDef = def
	c.mu.Unlock()

	st := c.state.Load()
	if st == nil {
		return nil
	}
	c.logger.Warn("Enabling collective ops after program startup may cause errors when accessing previously created tensors")
	defer c.clearCaches()
	b, err := proto.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal collective ops server def: %w", err)
	}
	if err := st.handle.EnableCollectiveOps(b); err != nil {
		return fmt.Errorf("enable collective ops: %w", err)
	}
	return c.reenumerate(st.handle)
}

// reenumerate republishes the device list of h. The caller holds initMu.
func (c *Context) reenumerate(h core.Handle) error {
	st, err := enumerate(h)
	if err != nil {
		return err
	}
	st.generation = c.state.Load().generation
	c.state.Store(st)
	c.placements.Reset()
	return nil
}

// clearCaches flushes every thread's value caches on their next access.
func (c *Context) clearCaches() {
	c.cacheEpoch.Add(1)
}

// ClearKernelCache clears the engine caches and every thread's value caches.
func (c *Context) ClearKernelCache() error {
	c.clearCaches()
	if st := c.state.Load(); st != nil {
		return st.handle.ClearCaches()
	}
	return nil
}

// EnableRunMetadata starts collecting run metadata. Realizes the handle.
func (c *Context) EnableRunMetadata() error {
	h, err := c.Handle()
	if err != nil {
		return err
	}
	return h.EnableRunMetadata()
}

// DisableRunMetadata stops collecting run metadata. No-op before
// initialization.
func (c *Context) DisableRunMetadata() error {
	if st := c.state.Load(); st != nil {
		return st.handle.DisableRunMetadata()
	}
	return nil
}

// EnableGraphCollection starts collecting graphs of executed functions.
// Realizes the handle.
func (c *Context) EnableGraphCollection() error {
	h, err := c.Handle()
	if err != nil {
		return err
	}
	return h.EnableGraphCollection()
}

// DisableGraphCollection stops collecting graphs. No-op before
// initialization.
func (c *Context) DisableGraphCollection() error {
	if st := c.state.Load(); st != nil {
		return st.handle.DisableGraphCollection()
	}
	return nil
}

// ExportRunMetadata decodes the metadata accumulated since the last export
// into msg. It reports false when the handle is not realized or run metadata
// is not enabled.
func (c *Context) ExportRunMetadata(msg proto.Message) (bool, error) {
	st := c.state.Load()
	if st == nil {
		return false, nil
	}
	b, err := st.handle.ExportRunMetadata()
	if err != nil {
		return false, fmt.Errorf("export run metadata: %w", err)
	}
	if b == nil {
		return false, nil
	}
	if err := proto.Unmarshal(b, msg); err != nil {
		return false, fmt.Errorf("decode run metadata: %w", err)
	}
	return true, nil
}

// AddFunction registers an engine function under name.
func (c *Context) AddFunction(name string, fn any) error {
	h, err := c.Handle()
	if err != nil {
		return err
	}
	return h.AddFunction(name, fn)
}

// AddFunctionDef serializes def and registers it under name.
func (c *Context) AddFunctionDef(name string, def proto.Message) error {
	if def == nil {
		return fmt.Errorf("%w: function def %q is nil", core.ErrInvalidArgument, name)
	}
	b, err := proto.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal function def: %w", err)
	}
	h, err := c.Handle()
	if err != nil {
		return err
	}
	return h.AddFunctionDef(name, b)
}

// HasFunction reports whether a function named name is registered.
func (c *Context) HasFunction(name string) (bool, error) {
	h, err := c.Handle()
	if err != nil {
		return false, err
	}
	return h.HasFunction(name), nil
}

// StartStep marks the beginning of a step.
func (c *Context) StartStep() error {
	h, err := c.Handle()
	if err != nil {
		return err
	}
	return h.StartStep()
}

// EndStep marks the end of a step.
func (c *Context) EndStep() error {
	h, err := c.Handle()
	if err != nil {
		return err
	}
	return h.EndStep()
}

// AsyncWait blocks until every asynchronously dispatched operation finished
// and returns the pending async error. Nothing can be pending before the
// handle is realized, so it returns nil without realizing it.
func (c *Context) AsyncWait() error {
	if st := c.state.Load(); st != nil {
		return st.handle.AsyncWait()
	}
	return nil
}

// AsyncClearError discards any pending async error without waiting.
func (c *Context) AsyncClearError() {
	if st := c.state.Load(); st != nil {
		st.handle.AsyncClearError()
	}
}
