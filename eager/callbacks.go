package eager

import (
	"context"
	"sync"

	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/logging"
)

// ExecutionInfo describes an operation that just finished dispatching.
//
// In async mode the callback runs once the operation was dispatched, which
// may be before it completed.
type ExecutionInfo struct {
	// ThreadID identifies the dispatching thread.
	ThreadID string

	// Operation is the dispatched operation with its resolved device.
	Operation core.Operation

	// ExecutionMode is the mode the operation was dispatched in.
	ExecutionMode core.ExecutionMode
}

// Callback is invoked after every operation dispatched through Thread.Execute.
//
// Callbacks run synchronously in registration order. A callback returning
// an error stops the remaining callbacks and the error is returned from
// Execute.
type Callback interface {
	Execute(ctx context.Context, info *ExecutionInfo) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	ctx.AddPostExecutionCallback(eager.NewFunctionCallback(
//	    func(_ context.Context, info *eager.ExecutionInfo) error {
//	        log.Printf("ran %s on %s", info.Operation.Type, info.Operation.Device)
//	        return nil
//	    },
//	))
type FunctionCallback struct {
	fn func(ctx context.Context, info *ExecutionInfo) error
}

// NewFunctionCallback creates a function-based callback.
func NewFunctionCallback(fn func(ctx context.Context, info *ExecutionInfo) error) *FunctionCallback {
	return &FunctionCallback{fn: fn}
}

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, info *ExecutionInfo) error {
	return c.fn(ctx, info)
}

// LoggingCallback logs every executed operation at debug level.
type LoggingCallback struct {
	logger logging.Logger
}

// NewLoggingCallback creates a logging callback.
func NewLoggingCallback(logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{logger: logger}
}

// Execute logs the operation. It never fails.
func (c *LoggingCallback) Execute(_ context.Context, info *ExecutionInfo) error {
	if c.logger != nil {
		c.logger.Debug("Operation executed",
			"op", info.Operation.Type,
			"name", info.Operation.Name,
			"device", info.Operation.Device,
			"thread_id", info.ThreadID,
			"execution_mode", info.ExecutionMode.String(),
		)
	}
	return nil
}

// CallbackManager is the registry of post-execution callbacks. It is safe
// for concurrent use: registration may race with execution on other threads.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks []Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{}
}

// RegisterCallback appends a callback.
func (cm *CallbackManager) RegisterCallback(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, cb)
}

// Clear removes every callback.
func (cm *CallbackManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = nil
}

// Callbacks returns a snapshot of the registered callbacks.
func (cm *CallbackManager) Callbacks() []Callback {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]Callback, len(cm.callbacks))
	copy(out, cm.callbacks)
	return out
}

// ExecuteCallbacks runs every callback in registration order and returns the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, info *ExecutionInfo) error {
	for _, cb := range cm.Callbacks() {
		if err := cb.Execute(ctx, info); err != nil {
			return err
		}
	}
	return nil
}

// AddPostExecutionCallback registers a callback invoked after every
// operation dispatched through a Thread of this Context.
func (c *Context) AddPostExecutionCallback(cb Callback) {
	c.callbacks.RegisterCallback(cb)
}

// ClearPostExecutionCallbacks removes every post-execution callback.
func (c *Context) ClearPostExecutionCallbacks() {
	c.callbacks.Clear()
}

// PostExecutionCallbacks returns the registered callbacks in order.
func (c *Context) PostExecutionCallbacks() []Callback {
	return c.callbacks.Callbacks()
}
