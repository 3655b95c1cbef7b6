package testutil

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/eagerctx/backend"
	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
)

// RecordingBackend wraps the in-memory backend, counting opens and
// recording their arguments. Failures can be injected per stage.
//
// Example:
//
//	b := NewRecordingBackend().WithDevices(NewDeviceListBuilder().CPU(1).GPU(1).Build())
//	ctx := eager.New(eager.WithBackend(b))
type RecordingBackend struct {
	devices        []core.DeviceInfo
	openDelay      time.Duration
	openErr        error
	listDevicesErr error

	opens atomic.Int32

	mu      sync.Mutex
	configs []*config.Config
	policy  core.DevicePlacementPolicy
	async   bool
	handles []*RecordingHandle
}

// NewRecordingBackend creates a backend with the default device list.
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{devices: backend.DefaultDevices()}
}

// WithDevices sets the enumerated devices (chainable).
func (b *RecordingBackend) WithDevices(d []core.DeviceInfo) *RecordingBackend {
	b.devices = d
	return b
}

// WithOpenDelay makes Open sleep, widening races between first callers (chainable).
func (b *RecordingBackend) WithOpenDelay(d time.Duration) *RecordingBackend {
	b.openDelay = d
	return b
}

// WithOpenError makes Open fail with err (chainable).
func (b *RecordingBackend) WithOpenError(err error) *RecordingBackend {
	b.openErr = err
	return b
}

// WithListDevicesError makes ListDevices of opened handles fail (chainable).
func (b *RecordingBackend) WithListDevicesError(err error) *RecordingBackend {
	b.listDevicesErr = err
	return b
}

// Open records its arguments and delegates to the in-memory backend.
func (b *RecordingBackend) Open(serialized []byte, policy core.DevicePlacementPolicy, async bool) (core.Handle, error) {
	b.opens.Add(1)
	if b.openDelay > 0 {
		time.Sleep(b.openDelay)
	}
	if b.openErr != nil {
		return nil, b.openErr
	}
	cfg, err := config.Unmarshal(serialized)
	if err != nil {
		return nil, err
	}
	inner, err := backend.NewInMemory(func(o *backend.Options) { o.Devices = b.devices }).Open(serialized, policy, async)
	if err != nil {
		return nil, err
	}
	h := &RecordingHandle{Handle: inner.(*backend.Handle), listDevicesErr: b.listDevicesErr}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, cfg)
	b.policy = policy
	b.async = async
	b.handles = append(b.handles, h)
	return h, nil
}

// Opens returns how often Open was called.
func (b *RecordingBackend) Opens() int { return int(b.opens.Load()) }

// LastConfig returns the config passed to the latest successful Open.
func (b *RecordingBackend) LastConfig() *config.Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.configs) == 0 {
		return nil
	}
	return b.configs[len(b.configs)-1]
}

// LastPolicy returns the policy and async flag of the latest successful Open.
func (b *RecordingBackend) LastPolicy() (core.DevicePlacementPolicy, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.policy, b.async
}

// Handles returns every handle opened so far.
func (b *RecordingBackend) Handles() []*RecordingHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*RecordingHandle, len(b.handles))
	copy(out, b.handles)
	return out
}

// RecordingHandle is an in-memory handle that remembers whether it was closed.
type RecordingHandle struct {
	*backend.Handle
	listDevicesErr error
	closed         atomic.Bool
}

// ListDevices fails when the backend was configured to.
func (h *RecordingHandle) ListDevices() ([]core.DeviceInfo, error) {
	if h.listDevicesErr != nil {
		return nil, h.listDevicesErr
	}
	return h.Handle.ListDevices()
}

// Close marks the handle closed.
func (h *RecordingHandle) Close() error {
	h.closed.Store(true)
	return h.Handle.Close()
}

// Closed reports whether Close was called.
func (h *RecordingHandle) Closed() bool { return h.closed.Load() }
