package config

import (
	"fmt"
	"math"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hupe1980/eagerctx/core"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot is the HCL schema of a base config file.
type fileRoot struct {
	IntraOpParallelismThreads *int64     `hcl:"intra_op_parallelism_threads,optional"`
	InterOpParallelismThreads *int64     `hcl:"inter_op_parallelism_threads,optional"`
	AllowSoftPlacement        *bool      `hcl:"allow_soft_placement,optional"`
	LogDevicePlacement        *bool      `hcl:"log_device_placement,optional"`
	GPU                       *fileGPU   `hcl:"gpu_options,block"`
	Graph                     *fileGraph `hcl:"graph_options,block"`
}

type fileGPU struct {
	PerProcessGPUMemoryFraction *float64 `hcl:"per_process_gpu_memory_fraction,optional"`
	AllowGrowth                 *bool    `hcl:"allow_growth,optional"`
}

type fileGraph struct {
	GlobalJITLevel *string      `hcl:"global_jit_level,optional"`
	Rewrite        *fileRewrite `hcl:"rewrite_options,block"`
}

type fileRewrite struct {
	LayoutOptimizer             *string `hcl:"layout_optimizer,optional"`
	ConstantFolding             *string `hcl:"constant_folding,optional"`
	ShapeOptimization           *string `hcl:"shape_optimization,optional"`
	Remapping                   *string `hcl:"remapping,optional"`
	ArithmeticOptimization      *string `hcl:"arithmetic_optimization,optional"`
	DependencyOptimization      *string `hcl:"dependency_optimization,optional"`
	LoopOptimization            *string `hcl:"loop_optimization,optional"`
	FunctionOptimization        *string `hcl:"function_optimization,optional"`
	DebugStripper               *string `hcl:"debug_stripper,optional"`
	DisableModelPruning         *bool   `hcl:"disable_model_pruning,optional"`
	ScopedAllocatorOptimization *string `hcl:"scoped_allocator_optimization,optional"`
	PinToHostOptimization       *string `hcl:"pin_to_host_optimization,optional"`
	ImplementationSelector      *string `hcl:"implementation_selector,optional"`
	DisableMetaOptimizer        *bool   `hcl:"disable_meta_optimizer,optional"`
	MinGraphNodes               *int64  `hcl:"min_graph_nodes,optional"`
}

// evalContext exposes host facts to config expressions, e.g.
// intra_op_parallelism_threads = num_cpus.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"num_cpus": cty.NumberIntVal(int64(runtime.NumCPU())),
		},
	}
}

// LoadFile reads a base config from an HCL file.
func LoadFile(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decode(path, file.Body)
}

// Parse reads a base config from HCL source; filename is used in
// diagnostics only.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(filename, file.Body)
}

func decode(filename string, body hcl.Body) (*Config, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, evalContext(), &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg, err := root.translate()
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return cfg, nil
}

func (r *fileRoot) translate() (*Config, error) {
	cfg := &Config{}
	var err error
	if cfg.IntraOpParallelismThreads, err = toInt32("intra_op_parallelism_threads", r.IntraOpParallelismThreads); err != nil {
		return nil, err
	}
	if cfg.InterOpParallelismThreads, err = toInt32("inter_op_parallelism_threads", r.InterOpParallelismThreads); err != nil {
		return nil, err
	}
	if r.AllowSoftPlacement != nil {
		cfg.AllowSoftPlacement = *r.AllowSoftPlacement
	}
	if r.LogDevicePlacement != nil {
		cfg.LogDevicePlacement = *r.LogDevicePlacement
	}

	if r.GPU != nil {
		if f := r.GPU.PerProcessGPUMemoryFraction; f != nil {
			if *f < 0 || *f > 1 {
				return nil, fmt.Errorf("%w: per_process_gpu_memory_fraction must be within [0, 1], got %v", core.ErrInvalidArgument, *f)
			}
			cfg.GPUOptions.PerProcessGPUMemoryFraction = *f
		}
		if r.GPU.AllowGrowth != nil {
			cfg.GPUOptions.AllowGrowth = *r.GPU.AllowGrowth
		}
	}

	if r.Graph == nil {
		return cfg, nil
	}
	if r.Graph.GlobalJITLevel != nil {
		level, err := parseJITLevel(*r.Graph.GlobalJITLevel)
		if err != nil {
			return nil, err
		}
		cfg.GraphOptions.OptimizerOptions.GlobalJITLevel = level
	}
	if r.Graph.Rewrite != nil {
		if err := r.Graph.Rewrite.translate(&cfg.GraphOptions.RewriteOptions); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (f *fileRewrite) translate(rw *RewriterConfig) error {
	toggles := []struct {
		name string
		src  *string
		dst  *RewriterToggle
	}{
		{"layout_optimizer", f.LayoutOptimizer, &rw.LayoutOptimizer},
		{"constant_folding", f.ConstantFolding, &rw.ConstantFolding},
		{"shape_optimization", f.ShapeOptimization, &rw.ShapeOptimization},
		{"remapping", f.Remapping, &rw.Remapping},
		{"arithmetic_optimization", f.ArithmeticOptimization, &rw.ArithmeticOptimization},
		{"dependency_optimization", f.DependencyOptimization, &rw.DependencyOptimization},
		{"loop_optimization", f.LoopOptimization, &rw.LoopOptimization},
		{"function_optimization", f.FunctionOptimization, &rw.FunctionOptimization},
		{"debug_stripper", f.DebugStripper, &rw.DebugStripper},
		{"scoped_allocator_optimization", f.ScopedAllocatorOptimization, &rw.ScopedAllocatorOptimization},
		{"pin_to_host_optimization", f.PinToHostOptimization, &rw.PinToHostOptimization},
		{"implementation_selector", f.ImplementationSelector, &rw.ImplementationSelector},
	}
	for _, t := range toggles {
		if t.src == nil {
			continue
		}
		v, err := ParseRewriterToggle(*t.src)
		if err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
		*t.dst = v
	}
	if f.DisableModelPruning != nil {
		rw.DisableModelPruning = *f.DisableModelPruning
	}
	if f.DisableMetaOptimizer != nil {
		rw.DisableMetaOptimizer = *f.DisableMetaOptimizer
	}
	n, err := toInt32("min_graph_nodes", f.MinGraphNodes)
	if err != nil {
		return err
	}
	if f.MinGraphNodes != nil {
		rw.MinGraphNodes = n
	}
	return nil
}

// toInt32 narrows an optional HCL number. A nil value yields zero.
func toInt32(name string, v *int64) (int32, error) {
	if v == nil {
		return 0, nil
	}
	if *v < math.MinInt32 || *v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s %d overflows int32", core.ErrInvalidArgument, name, *v)
	}
	return int32(*v), nil
}

func parseJITLevel(s string) (JITLevel, error) {
	switch s {
	case "", "default":
		return JITDefault, nil
	case "off":
		return JITOff, nil
	case "on_1":
		return JITOn1, nil
	case "on_2":
		return JITOn2, nil
	}
	return JITDefault, fmt.Errorf("unknown global_jit_level %q", s)
}
