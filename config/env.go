package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/hupe1980/eagerctx/core"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "EAGERCTX_"

// EnvOverrides are runtime knobs read from the environment. Unset variables
// leave the corresponding field nil or empty.
type EnvOverrides struct {
	ConfigFile string `env:"CONFIG_FILE"`

	GPUMemoryFraction         *float64 `env:"GPU_MEMORY_FRACTION"`
	GPUMemoryGrowth           *bool    `env:"GPU_MEMORY_GROWTH"`
	OptimizerJIT              *bool    `env:"OPTIMIZER_JIT"`
	IntraOpParallelismThreads *int32   `env:"INTRA_OP_PARALLELISM_THREADS"`
	InterOpParallelismThreads *int32   `env:"INTER_OP_PARALLELISM_THREADS"`
	SoftDevicePlacement       *bool    `env:"SOFT_DEVICE_PLACEMENT"`
	LogDevicePlacement        *bool    `env:"LOG_DEVICE_PLACEMENT"`

	// DevicePolicy and ExecutionMode are parsed by the runtime context.
	DevicePolicy  string `env:"DEVICE_POLICY"`
	ExecutionMode string `env:"EXECUTION_MODE"`
}

// FromEnv loads overrides from the process environment.
func FromEnv() (*EnvOverrides, error) {
	return parseEnv(env.Options{Prefix: EnvPrefix})
}

// FromEnvironment loads overrides from the given variables instead of the
// process environment.
func FromEnvironment(vars map[string]string) (*EnvOverrides, error) {
	return parseEnv(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parseEnv(opts env.Options) (*EnvOverrides, error) {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Validate applies the same range checks as the corresponding setters.
func (e *EnvOverrides) Validate() error {
	if f := e.GPUMemoryFraction; f != nil && (*f < 0 || *f > 1) {
		return fmt.Errorf("%w: %sGPU_MEMORY_FRACTION must be within [0, 1], got %v", core.ErrInvalidArgument, EnvPrefix, *f)
	}
	return nil
}

// ApplyTo copies every set override into the overlay.
func (e *EnvOverrides) ApplyTo(o *Overlay) {
	if e.GPUMemoryFraction != nil {
		o.GPUMemoryFraction = clonePtr(e.GPUMemoryFraction)
	}
	if e.GPUMemoryGrowth != nil {
		o.GPUMemoryGrowth = clonePtr(e.GPUMemoryGrowth)
	}
	if e.OptimizerJIT != nil {
		o.OptimizerJIT = clonePtr(e.OptimizerJIT)
	}
	if e.IntraOpParallelismThreads != nil {
		o.IntraOpParallelismThreads = clonePtr(e.IntraOpParallelismThreads)
	}
	if e.InterOpParallelismThreads != nil {
		o.InterOpParallelismThreads = clonePtr(e.InterOpParallelismThreads)
	}
	if e.SoftDevicePlacement != nil {
		o.SoftDevicePlacement = clonePtr(e.SoftDevicePlacement)
	}
	if e.LogDevicePlacement != nil {
		o.LogDevicePlacement = clonePtr(e.LogDevicePlacement)
	}
}
