package config

// Toggle is a tri-state runtime knob: unset leaves the base value untouched.
type Toggle int8

const (
	Unset Toggle = iota
	On
	Off
)

// ToggleOf converts a bool into an explicit toggle.
func ToggleOf(enabled bool) Toggle {
	if enabled {
		return On
	}
	return Off
}

// Bool returns the toggle value and whether it is set.
func (t Toggle) Bool() (value bool, set bool) {
	return t == On, t != Unset
}

// ExperimentalOptions are the optimizer toggles settable at runtime. Every
// field starts unset.
type ExperimentalOptions struct {
	LayoutOptimizer             Toggle
	ConstantFolding             Toggle
	ShapeOptimization           Toggle
	Remapping                   Toggle
	ArithmeticOptimization      Toggle
	DependencyOptimization      Toggle
	LoopOptimization            Toggle
	FunctionOptimization        Toggle
	DebugStripper               Toggle
	DisableModelPruning         Toggle
	ScopedAllocatorOptimization Toggle
	PinToHostOptimization       Toggle
	ImplementationSelector      Toggle
	DisableMetaOptimizer        Toggle
	MinGraphNodes               *int32
}

// Update overwrites the fields that are set in o and keeps the others.
func (e *ExperimentalOptions) Update(o ExperimentalOptions) {
	for _, opt := range rewriterOptions {
		if t := *opt.delta(&o); t != Unset {
			*opt.delta(e) = t
		}
	}
	if o.MinGraphNodes != nil {
		n := *o.MinGraphNodes
		e.MinGraphNodes = &n
	}
}

type rewriterOption struct {
	name   string
	delta  func(e *ExperimentalOptions) *Toggle
	toggle func(r *RewriterConfig) *RewriterToggle
	flag   func(r *RewriterConfig) *bool
}

// rewriterOptions lists the rewriter knobs in the order they are applied.
var rewriterOptions = []rewriterOption{
	{name: "layout_optimizer", delta: func(e *ExperimentalOptions) *Toggle { return &e.LayoutOptimizer }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.LayoutOptimizer }},
	{name: "constant_folding", delta: func(e *ExperimentalOptions) *Toggle { return &e.ConstantFolding }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.ConstantFolding }},
	{name: "shape_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.ShapeOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.ShapeOptimization }},
	{name: "remapping", delta: func(e *ExperimentalOptions) *Toggle { return &e.Remapping }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.Remapping }},
	{name: "arithmetic_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.ArithmeticOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.ArithmeticOptimization }},
	{name: "dependency_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.DependencyOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.DependencyOptimization }},
	{name: "loop_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.LoopOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.LoopOptimization }},
	{name: "function_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.FunctionOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.FunctionOptimization }},
	{name: "debug_stripper", delta: func(e *ExperimentalOptions) *Toggle { return &e.DebugStripper }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.DebugStripper }},
	{name: "disable_model_pruning", delta: func(e *ExperimentalOptions) *Toggle { return &e.DisableModelPruning }, flag: func(r *RewriterConfig) *bool { return &r.DisableModelPruning }},
	{name: "scoped_allocator_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.ScopedAllocatorOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.ScopedAllocatorOptimization }},
	{name: "pin_to_host_optimization", delta: func(e *ExperimentalOptions) *Toggle { return &e.PinToHostOptimization }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.PinToHostOptimization }},
	{name: "implementation_selector", delta: func(e *ExperimentalOptions) *Toggle { return &e.ImplementationSelector }, toggle: func(r *RewriterConfig) *RewriterToggle { return &r.ImplementationSelector }},
	{name: "disable_meta_optimizer", delta: func(e *ExperimentalOptions) *Toggle { return &e.DisableMetaOptimizer }, flag: func(r *RewriterConfig) *bool { return &r.DisableMetaOptimizer }},
}

// RewriterOptionNames returns the rewriter knob names in application order.
func RewriterOptionNames() []string {
	names := make([]string, len(rewriterOptions))
	for i, opt := range rewriterOptions {
		names[i] = opt.name
	}
	return names
}

// ExperimentalOptionsFrom reads the optimizer toggles back out of a
// rewriter config. Rewriters left at default are reported unset; the two
// boolean meta-toggles are always reported.
func ExperimentalOptionsFrom(r RewriterConfig) ExperimentalOptions {
	var e ExperimentalOptions
	for _, opt := range rewriterOptions {
		if opt.flag != nil {
			*opt.delta(&e) = ToggleOf(*opt.flag(&r))
			continue
		}
		if t := *opt.toggle(&r); t != RewriterDefault {
			*opt.delta(&e) = ToggleOf(t == RewriterOn)
		}
	}
	if r.MinGraphNodes != 0 {
		n := r.MinGraphNodes
		e.MinGraphNodes = &n
	}
	return e
}

// Overlay holds the runtime-settable deltas layered onto a base Config. A
// nil pointer or Unset toggle means "not set".
type Overlay struct {
	GPUMemoryFraction         *float64
	GPUMemoryGrowth           *bool
	OptimizerJIT              *bool
	IntraOpParallelismThreads *int32
	InterOpParallelismThreads *int32
	SoftDevicePlacement       *bool
	LogDevicePlacement        *bool
	Experimental              ExperimentalOptions
}

// Apply returns base with every set delta applied, in this order: GPU memory
// fraction, GPU memory growth, JIT level, intra-op threads, inter-op
// threads, soft placement, log placement, rewriter toggles, min graph nodes.
//
// When soft placement is unset it follows the eager flag. Apply is pure:
// neither base nor the overlay is modified.
func (o *Overlay) Apply(base *Config, eager bool) *Config {
	cfg := base.Clone()

	if o.GPUMemoryFraction != nil {
		cfg.GPUOptions.PerProcessGPUMemoryFraction = *o.GPUMemoryFraction
	}
	if o.GPUMemoryGrowth != nil {
		cfg.GPUOptions.AllowGrowth = *o.GPUMemoryGrowth
	}
	if o.OptimizerJIT != nil {
		if *o.OptimizerJIT {
			cfg.GraphOptions.OptimizerOptions.GlobalJITLevel = JITOn1
		} else {
			cfg.GraphOptions.OptimizerOptions.GlobalJITLevel = JITOff
		}
	}
	if o.IntraOpParallelismThreads != nil {
		cfg.IntraOpParallelismThreads = *o.IntraOpParallelismThreads
	}
	if o.InterOpParallelismThreads != nil {
		cfg.InterOpParallelismThreads = *o.InterOpParallelismThreads
	}

	if o.SoftDevicePlacement != nil {
		cfg.AllowSoftPlacement = *o.SoftDevicePlacement
	} else {
		cfg.AllowSoftPlacement = eager
	}

	if o.LogDevicePlacement != nil {
		cfg.LogDevicePlacement = *o.LogDevicePlacement
	}

	rw := &cfg.GraphOptions.RewriteOptions
	for _, opt := range rewriterOptions {
		value, set := opt.delta(&o.Experimental).Bool()
		if !set {
			continue
		}
		if opt.flag != nil {
			*opt.flag(rw) = value
			continue
		}
		if value {
			*opt.toggle(rw) = RewriterOn
		} else {
			*opt.toggle(rw) = RewriterOff
		}
	}
	if o.Experimental.MinGraphNodes != nil {
		rw.MinGraphNodes = *o.Experimental.MinGraphNodes
	}

	return cfg
}

// Clone returns a copy whose pointer fields do not alias o's.
func (o *Overlay) Clone() Overlay {
	cp := *o
	cp.GPUMemoryFraction = clonePtr(o.GPUMemoryFraction)
	cp.GPUMemoryGrowth = clonePtr(o.GPUMemoryGrowth)
	cp.OptimizerJIT = clonePtr(o.OptimizerJIT)
	cp.IntraOpParallelismThreads = clonePtr(o.IntraOpParallelismThreads)
	cp.InterOpParallelismThreads = clonePtr(o.InterOpParallelismThreads)
	cp.SoftDevicePlacement = clonePtr(o.SoftDevicePlacement)
	cp.LogDevicePlacement = clonePtr(o.LogDevicePlacement)
	cp.Experimental.MinGraphNodes = clonePtr(o.Experimental.MinGraphNodes)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
