package core

import (
	"context"
	"time"
)

// DeviceInfo describes one device enumerated by an engine handle.
type DeviceInfo struct {
	// Name is the fully qualified device name, e.g.
	// "/job:localhost/replica:0/task:0/device:CPU:0".
	Name string
	// Type is the device type, e.g. "CPU" or "GPU".
	Type string
}

// Operation is a unit of work dispatched through a Handle. The runtime
// context never looks inside Run; it only decides where and how the
// operation is dispatched.
type Operation struct {
	// Type is the kind of operation, e.g. "MatMul".
	Type string
	// Name is an optional caller supplied name.
	Name string
	// Device is the resolved device name the operation is placed on.
	Device string
	// Run executes the operation.
	Run func(ctx context.Context) error
}

// Backend opens engine handles. It is the only way the runtime context
// creates engine state.
type Backend interface {
	// Open creates a handle configured with the serialized effective config,
	// the device placement policy and the initial async flag.
	Open(config []byte, policy DevicePlacementPolicy, async bool) (Handle, error)
}

// Handle is the opaque Execution Engine boundary.
//
// Implementations SHOULD:
//   - Be safe for concurrent use from many threads
//   - Keep per-thread settings keyed by the thread id passed in
//   - Defer asynchronous dispatch errors until AsyncWait
type Handle interface {
	// ListDevices enumerates available devices in a stable order.
	ListDevices() ([]DeviceInfo, error)

	// SetServerDef enables execution on remote devices. The serialized server
	// definition is forwarded unchanged.
	SetServerDef(keepAlive time.Duration, serverDef []byte) error
	// EnableCollectiveOps enables collective operations for the serialized
	// server definition.
	EnableCollectiveOps(serverDef []byte) error

	// SetAsyncForThread switches the execution concurrency mode of one thread.
	SetAsyncForThread(threadID string, async bool) error
	// SetDevicePlacementPolicy sets the process-wide placement policy.
	SetDevicePlacementPolicy(policy DevicePlacementPolicy) error
	// SetThreadLocalDevicePlacementPolicy overrides the policy for one thread.
	SetThreadLocalDevicePlacementPolicy(threadID string, policy DevicePlacementPolicy) error
	// DevicePlacementPolicy returns the policy in effect for a thread.
	DevicePlacementPolicy(threadID string) DevicePlacementPolicy

	// ClearCaches drops kernel and tensor caches held by the engine.
	ClearCaches() error

	EnableRunMetadata() error
	DisableRunMetadata() error
	// ExportRunMetadata returns the serialized metadata accumulated since the
	// last export, or nil when run metadata is not enabled.
	ExportRunMetadata() ([]byte, error)
	EnableGraphCollection() error
	DisableGraphCollection() error

	// AddFunction registers an already built engine function under name.
	AddFunction(name string, fn any) error
	// AddFunctionDef registers a serialized function definition.
	AddFunctionDef(name string, def []byte) error
	// HasFunction reports whether a function is registered.
	HasFunction(name string) bool

	StartStep() error
	EndStep() error

	// Execute dispatches op on behalf of a thread. In ASYNC mode it may return
	// before op completes.
	Execute(ctx context.Context, threadID string, op Operation) error
	// AsyncWait blocks until all dispatched asynchronous operations completed
	// or failed and returns the pending asynchronous error, if any.
	AsyncWait() error
	// AsyncClearError discards pending asynchronous error state without
	// waiting.
	AsyncClearError()

	// Close releases the handle.
	Close() error
}
