package eager

import (
	"time"

	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/logging"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/proto"
)

// DefaultKeepAlive is the keep-alive used for remote server definitions.
const DefaultKeepAlive = 600 * time.Second

// Options configures a Context using the functional options pattern.
//
// Example:
//
//	ctx := eager.New(
//	    eager.WithBackend(myBackend),
//	    eager.WithExecutionMode(core.Async),
//	    eager.WithLogger(logger),
//	)
type Options struct {
	// Backend opens the engine handle. Defaults to the in-memory backend.
	Backend core.Backend

	// Config is the base config snapshot the overlay is applied to.
	// Nil means an empty config.
	Config *config.Config

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// TracerProvider defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider

	// DevicePolicy defaults to PlacementSilent.
	DevicePolicy core.DevicePlacementPolicy

	// ExecutionMode is the process default. Defaults to Sync.
	ExecutionMode core.ExecutionMode

	// DefaultMode is the mode new threads start in. Defaults to ModeEager.
	DefaultMode core.Mode

	// Seed sets the global seed when non-nil.
	Seed *int64

	// ServerDef is staged and applied when the handle is realized.
	ServerDef proto.Message

	// ServerKeepAlive defaults to DefaultKeepAlive.
	ServerKeepAlive time.Duration
}

// WithBackend sets the engine backend.
func WithBackend(b core.Backend) func(o *Options) {
	return func(o *Options) { o.Backend = b }
}

// WithConfig sets the base config snapshot.
func WithConfig(cfg *config.Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) func(o *Options) {
	return func(o *Options) { o.TracerProvider = tp }
}

// WithDevicePolicy sets the initial device placement policy.
func WithDevicePolicy(p core.DevicePlacementPolicy) func(o *Options) {
	return func(o *Options) { o.DevicePolicy = p }
}

// WithExecutionMode sets the default execution mode.
func WithExecutionMode(m core.ExecutionMode) func(o *Options) {
	return func(o *Options) { o.ExecutionMode = m }
}

// WithDefaultMode sets the mode new threads start in.
func WithDefaultMode(m core.Mode) func(o *Options) {
	return func(o *Options) { o.DefaultMode = m }
}

// WithSeed sets the global seed.
func WithSeed(seed int64) func(o *Options) {
	return func(o *Options) { o.Seed = &seed }
}

// WithServerDef stages a remote server definition.
func WithServerDef(def proto.Message, keepAlive time.Duration) func(o *Options) {
	return func(o *Options) {
		o.ServerDef = def
		o.ServerKeepAlive = keepAlive
	}
}
