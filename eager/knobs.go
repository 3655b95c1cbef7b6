package eager

import (
	"fmt"

	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
)

// EffectiveConfig returns the base config with every set overlay delta
// applied. Soft placement follows th's mode when unset; a nil th uses the
// process default mode. It has no side effects.
func (c *Context) EffectiveConfig(th *Thread) *config.Config {
	eager := c.defaultMode == core.ModeEager
	if th != nil {
		eager = th.ExecutingEagerly()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overlay.Apply(c.baseConfig, eager)
}

// setStartupKnob applies fn to the overlay unless the handle is realized.
func (c *Context) setStartupKnob(name string, fn func(o *config.Overlay)) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.state.Load() != nil {
		return fmt.Errorf("%s must be set at program startup: %w", name, core.ErrAlreadyInitialized)
	}
	c.mu.Lock()
	fn(&c.overlay)
	c.mu.Unlock()
	return nil
}

// setLiveKnob applies fn to the overlay and invalidates every thread's
// function call options.
func (c *Context) setLiveKnob(fn func(o *config.Overlay)) {
	c.mu.Lock()
	fn(&c.overlay)
	c.mu.Unlock()
	c.optionsGeneration.Add(1)
}

// SetBaseConfig replaces the base config snapshot. Startup only.
func (c *Context) SetBaseConfig(cfg *config.Config) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.state.Load() != nil {
		return fmt.Errorf("base config must be set at program startup: %w", core.ErrAlreadyInitialized)
	}
	c.mu.Lock()
	c.baseConfig = cfg.Clone()
	c.mu.Unlock()
	c.optionsGeneration.Add(1)
	return nil
}

// SetGPUMemoryFraction sets the per-process GPU memory fraction. Startup only.
func (c *Context) SetGPUMemoryFraction(fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("%w: gpu memory fraction %v is outside [0, 1]", core.ErrInvalidArgument, fraction)
	}
	return c.setStartupKnob("GPU options", func(o *config.Overlay) { o.GPUMemoryFraction = &fraction })
}

// GPUMemoryFraction returns the effective per-process GPU memory fraction.
func (c *Context) GPUMemoryFraction() float64 {
	return c.EffectiveConfig(nil).GPUOptions.PerProcessGPUMemoryFraction
}

// SetGPUMemoryGrowth enables or disables GPU memory growth. Startup only.
func (c *Context) SetGPUMemoryGrowth(enabled bool) error {
	return c.setStartupKnob("GPU options", func(o *config.Overlay) { o.GPUMemoryGrowth = &enabled })
}

// GPUMemoryGrowth returns the effective GPU memory growth flag.
func (c *Context) GPUMemoryGrowth() bool {
	return c.EffectiveConfig(nil).GPUOptions.AllowGrowth
}

// SetIntraOpParallelismThreads sets the intra-op thread count. Startup only.
func (c *Context) SetIntraOpParallelismThreads(n int32) error {
	return c.setStartupKnob("intra op parallelism", func(o *config.Overlay) { o.IntraOpParallelismThreads = &n })
}

// IntraOpParallelismThreads returns the effective intra-op thread count.
func (c *Context) IntraOpParallelismThreads() int32 {
	return c.EffectiveConfig(nil).IntraOpParallelismThreads
}

// SetInterOpParallelismThreads sets the inter-op thread count. Startup only.
func (c *Context) SetInterOpParallelismThreads(n int32) error {
	return c.setStartupKnob("inter op parallelism", func(o *config.Overlay) { o.InterOpParallelismThreads = &n })
}

// InterOpParallelismThreads returns the effective inter-op thread count.
func (c *Context) InterOpParallelismThreads() int32 {
	return c.EffectiveConfig(nil).InterOpParallelismThreads
}

// SetLogDevicePlacement enables or disables device placement logging.
// Startup only. Invalidates function call options.
func (c *Context) SetLogDevicePlacement(enabled bool) error {
	err := c.setStartupKnob("device placement logging", func(o *config.Overlay) { o.LogDevicePlacement = &enabled })
	if err == nil {
		c.optionsGeneration.Add(1)
	}
	return err
}

// LogDevicePlacement returns the effective device placement logging flag.
func (c *Context) LogDevicePlacement() bool {
	return c.EffectiveConfig(nil).LogDevicePlacement
}

// SetOptimizerJIT turns global JIT compilation on (ON_1) or off.
func (c *Context) SetOptimizerJIT(enabled bool) {
	c.setLiveKnob(func(o *config.Overlay) { o.OptimizerJIT = &enabled })
}

// OptimizerJIT reports whether the effective JIT level is ON_1 or ON_2.
func (c *Context) OptimizerJIT() bool {
	return c.EffectiveConfig(nil).GraphOptions.OptimizerOptions.GlobalJITLevel.Enabled()
}

// SetOptimizerExperimentalOptions merges the set toggles of opts into the
// overlay. Unset toggles keep their previous value.
func (c *Context) SetOptimizerExperimentalOptions(opts config.ExperimentalOptions) {
	c.setLiveKnob(func(o *config.Overlay) { o.Experimental.Update(opts) })
}

// OptimizerExperimentalOptions reads the rewriter toggles back out of the
// effective config for th.
func (c *Context) OptimizerExperimentalOptions(th *Thread) config.ExperimentalOptions {
	return config.ExperimentalOptionsFrom(c.EffectiveConfig(th).GraphOptions.RewriteOptions)
}

// SetSoftDevicePlacement sets soft device placement explicitly.
func (c *Context) SetSoftDevicePlacement(enabled bool) {
	c.setLiveKnob(func(o *config.Overlay) { o.SoftDevicePlacement = &enabled })
}

// SoftDevicePlacement returns the effective soft placement flag for th.
func (c *Context) SoftDevicePlacement(th *Thread) bool {
	return c.EffectiveConfig(th).AllowSoftPlacement
}

func (c *Context) softPlacementSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overlay.SoftDevicePlacement != nil
}

// SetDevicePolicy sets the process-wide device placement policy. It is
// forwarded to the engine when the handle exists and buffered otherwise.
func (c *Context) SetDevicePolicy(policy core.DevicePlacementPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if st := c.state.Load(); st != nil {
		if err := st.handle.SetDevicePlacementPolicy(policy); err != nil {
			return fmt.Errorf("set device placement policy: %w", err)
		}
	}
	c.mu.Lock()
	c.devicePolicy = policy
	c.mu.Unlock()
	return nil
}

// DevicePolicy returns the process-wide device placement policy.
func (c *Context) DevicePolicy() core.DevicePlacementPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devicePolicy
}

// ExecutionMode returns the process default execution mode.
func (c *Context) ExecutionMode() core.ExecutionMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.executionMode
}

// DefaultMode returns the mode new threads start in.
func (c *Context) DefaultMode() core.Mode {
	return c.defaultMode
}

// ApplyEnv applies environment overrides: the base config file, overlay
// deltas, device policy and default execution mode. Startup only.
func (c *Context) ApplyEnv(e *config.EnvOverrides) error {
	if err := e.Validate(); err != nil {
		return err
	}
	var (
		policy *core.DevicePlacementPolicy
		mode   *core.ExecutionMode
		base   *config.Config
	)
	if e.DevicePolicy != "" {
		p, err := core.ParseDevicePlacementPolicy(e.DevicePolicy)
		if err != nil {
			return err
		}
		policy = &p
	}
	if e.ExecutionMode != "" {
		m, err := core.ParseExecutionMode(e.ExecutionMode)
		if err != nil {
			return err
		}
		mode = &m
	}
	if e.ConfigFile != "" {
		cfg, err := config.LoadFile(e.ConfigFile)
		if err != nil {
			return err
		}
		base = cfg
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.state.Load() != nil {
		return fmt.Errorf("environment overrides must be applied at program startup: %w", core.ErrAlreadyInitialized)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if base != nil {
		c.baseConfig = base
	}
	e.ApplyTo(&c.overlay)
	if policy != nil {
		c.devicePolicy = *policy
	}
	if mode != nil {
		c.executionMode = *mode
	}
	c.optionsGeneration.Add(1)
	return nil
}
