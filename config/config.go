package config

import "fmt"

// JITLevel is the global JIT compilation level.
type JITLevel int32

const (
	JITDefault JITLevel = 0
	JITOff     JITLevel = -1
	JITOn1     JITLevel = 1
	JITOn2     JITLevel = 2
)

// Enabled reports whether the level turns JIT compilation on.
func (l JITLevel) Enabled() bool { return l == JITOn1 || l == JITOn2 }

// RewriterToggle is the state of one graph rewriter in a RewriterConfig.
type RewriterToggle int32

const (
	RewriterDefault RewriterToggle = 0
	RewriterOn      RewriterToggle = 1
	RewriterOff     RewriterToggle = 2
)

// String returns the lower-case toggle name.
func (t RewriterToggle) String() string {
	switch t {
	case RewriterDefault:
		return "default"
	case RewriterOn:
		return "on"
	case RewriterOff:
		return "off"
	default:
		return fmt.Sprintf("RewriterToggle(%d)", int32(t))
	}
}

// ParseRewriterToggle parses "default", "on" or "off".
func ParseRewriterToggle(s string) (RewriterToggle, error) {
	switch s {
	case "", "default":
		return RewriterDefault, nil
	case "on":
		return RewriterOn, nil
	case "off":
		return RewriterOff, nil
	}
	return RewriterDefault, fmt.Errorf("unknown rewriter toggle %q", s)
}

// GPUOptions holds per-process GPU memory settings.
type GPUOptions struct {
	PerProcessGPUMemoryFraction float64
	AllowGrowth                 bool
}

// OptimizerOptions holds graph optimizer settings.
type OptimizerOptions struct {
	GlobalJITLevel JITLevel
}

// RewriterConfig holds the graph rewriter settings.
type RewriterConfig struct {
	LayoutOptimizer             RewriterToggle
	ConstantFolding             RewriterToggle
	ShapeOptimization           RewriterToggle
	Remapping                   RewriterToggle
	ArithmeticOptimization      RewriterToggle
	DependencyOptimization      RewriterToggle
	LoopOptimization            RewriterToggle
	FunctionOptimization        RewriterToggle
	DebugStripper               RewriterToggle
	DisableModelPruning         bool
	ScopedAllocatorOptimization RewriterToggle
	PinToHostOptimization       RewriterToggle
	ImplementationSelector      RewriterToggle
	DisableMetaOptimizer        bool
	MinGraphNodes               int32
}

// GraphOptions groups optimizer and rewriter settings.
type GraphOptions struct {
	OptimizerOptions OptimizerOptions
	RewriteOptions   RewriterConfig
}

// Config is the configuration message handed to the engine at
// initialization. All fields are values, so a plain copy is a deep copy.
type Config struct {
	GPUOptions                GPUOptions
	GraphOptions              GraphOptions
	IntraOpParallelismThreads int32
	InterOpParallelismThreads int32
	AllowSoftPlacement        bool
	LogDevicePlacement        bool
}

// Clone returns an independent copy. Cloning nil yields an empty Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	cp := *c
	return &cp
}
