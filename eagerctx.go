// Package eagerctx provides process-level helpers over the runtime context
// returned by eager.Default. Most applications interact with this package by:
//  1. Optionally configuring the process context at startup (NewFromEnv, SetDefault)
//  2. Obtaining a Thread for the current goroutine (ThreadFor)
//  3. Running work inside device and execution-mode scopes (WithDevice, WithExecutionMode)
//
// Helpers that need per-thread state take a context.Context carrying an
// eager.Thread; when none is attached, a fresh Thread of the process context
// is attached and returned.
package eagerctx

import (
	"context"
	"fmt"

	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/eager"
	"google.golang.org/protobuf/proto"
)

// NewFromEnv creates a runtime context and applies the EAGERCTX_* environment
// overrides to it, including the base config file.
func NewFromEnv(optFns ...func(o *eager.Options)) (*eager.Context, error) {
	overrides, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	c := eager.New(optFns...)
	if err := c.ApplyEnv(overrides); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	return c, nil
}

// SetDefault installs c as the process context. It reports false if the
// process context already exists.
func SetDefault(c *eager.Context) bool {
	return eager.SetDefault(c)
}

// ThreadFor returns the Thread attached to ctx, attaching a new Thread of
// the process context if there is none.
func ThreadFor(ctx context.Context) (*eager.Thread, context.Context) {
	if th, ok := eager.ThreadFromContext(ctx); ok {
		return th, ctx
	}
	th := eager.Default().NewThread()
	return th, th.Attach(ctx)
}

// ExecutingEagerly reports whether the thread attached to ctx executes
// eagerly. Without a thread it reports the process default mode.
func ExecutingEagerly(ctx context.Context) bool {
	if th, ok := eager.ThreadFromContext(ctx); ok {
		return th.ExecutingEagerly()
	}
	if c := eager.Safe(); c != nil {
		return c.DefaultMode() == core.ModeEager
	}
	return true
}

// WithDevice runs fn with name as the active device of the thread attached
// to ctx.
func WithDevice(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	th, ctx := ThreadFor(ctx)
	return th.WithDevice(name, func() error { return fn(ctx) })
}

// WithExecutionMode runs fn in mode on the thread attached to ctx.
func WithExecutionMode(ctx context.Context, mode core.ExecutionMode, fn func(ctx context.Context) error) error {
	th, ctx := ThreadFor(ctx)
	return th.WithExecutionMode(mode, func() error { return fn(ctx) })
}

// SetExecutionMode sets the execution mode of the thread attached to ctx.
func SetExecutionMode(ctx context.Context, mode core.ExecutionMode) (context.Context, error) {
	th, ctx := ThreadFor(ctx)
	return ctx, th.SetExecutionMode(mode)
}

// Execute dispatches op on the thread attached to ctx.
func Execute(ctx context.Context, op core.Operation) error {
	th, ctx := ThreadFor(ctx)
	return th.Execute(ctx, op)
}

// ListDevices returns the names of the available devices.
func ListDevices() ([]string, error) {
	return eager.Default().Devices()
}

// NumGPUs returns the number of available GPU devices.
func NumGPUs() (int, error) {
	return eager.Default().NumGPUs()
}

// AsyncWait waits for operations dispatched in ASYNC mode to finish.
func AsyncWait() error {
	return eager.Default().AsyncWait()
}

// AsyncClearError clears errors raised during ASYNC execution.
func AsyncClearError() {
	eager.Default().AsyncClearError()
}

// SetGlobalSeed sets the process seed.
func SetGlobalSeed(seed int64) error {
	return eager.Default().SetGlobalSeed(seed)
}

// GlobalSeed returns the process seed and whether one is set.
func GlobalSeed() (int64, bool) {
	return eager.Default().GlobalSeed()
}

// InternalOperationSeed returns an operation seed derived from the global seed.
func InternalOperationSeed() (int64, bool) {
	return eager.Default().InternalOperationSeed()
}

// SetServerDef sets a remote server definition with the default keep-alive.
func SetServerDef(def proto.Message) error {
	return eager.Default().SetServerDef(def, eager.DefaultKeepAlive)
}

// AddFunction registers an engine function.
func AddFunction(name string, fn any) error {
	return eager.Default().AddFunction(name, fn)
}

// EnableRunMetadata enables tracing of op execution.
func EnableRunMetadata() error {
	return eager.Default().EnableRunMetadata()
}

// DisableRunMetadata disables tracing of op execution.
func DisableRunMetadata() error {
	return eager.Default().DisableRunMetadata()
}

// EnableGraphCollection enables collection of executed function graphs.
func EnableGraphCollection() error {
	return eager.Default().EnableGraphCollection()
}

// DisableGraphCollection disables collection of function graphs.
func DisableGraphCollection() error {
	return eager.Default().DisableGraphCollection()
}

// ExportRunMetadata decodes the accumulated run metadata into msg.
func ExportRunMetadata(msg proto.Message) (bool, error) {
	return eager.Default().ExportRunMetadata(msg)
}

// SetLogDevicePlacement sets whether device placements are logged. Startup only.
func SetLogDevicePlacement(enabled bool) error {
	return eager.Default().SetLogDevicePlacement(enabled)
}

// LogDevicePlacement reports whether device placements are logged.
func LogDevicePlacement() bool {
	return eager.Default().LogDevicePlacement()
}
