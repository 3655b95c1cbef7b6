package config

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// ToProto converts the config into its wire message.
func (c *Config) ToProto() (*structpb.Struct, error) {
	rw := c.GraphOptions.RewriteOptions
	rewrite := map[string]any{
		"disable_model_pruning":  rw.DisableModelPruning,
		"disable_meta_optimizer": rw.DisableMetaOptimizer,
		"min_graph_nodes":        float64(rw.MinGraphNodes),
	}
	for _, opt := range rewriterOptions {
		if opt.toggle != nil {
			rewrite[opt.name] = float64(*opt.toggle(&rw))
		}
	}

	return structpb.NewStruct(map[string]any{
		"gpu_options": map[string]any{
			"per_process_gpu_memory_fraction": c.GPUOptions.PerProcessGPUMemoryFraction,
			"allow_growth":                    c.GPUOptions.AllowGrowth,
		},
		"graph_options": map[string]any{
			"optimizer_options": map[string]any{
				"global_jit_level": float64(c.GraphOptions.OptimizerOptions.GlobalJITLevel),
			},
			"rewrite_options": rewrite,
		},
		"intra_op_parallelism_threads": float64(c.IntraOpParallelismThreads),
		"inter_op_parallelism_threads": float64(c.InterOpParallelismThreads),
		"allow_soft_placement":         c.AllowSoftPlacement,
		"log_device_placement":         c.LogDevicePlacement,
	})
}

// Marshal serializes the config deterministically: equal configs always
// produce identical bytes.
func (c *Config) Marshal() ([]byte, error) {
	msg, err := c.ToProto()
	if err != nil {
		return nil, fmt.Errorf("convert config: %w", err)
	}
	b, err := marshalOptions.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return b, nil
}

// Unmarshal parses bytes produced by Marshal. Empty input yields an empty
// Config.
func Unmarshal(b []byte) (*Config, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(b, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return FromProto(&msg), nil
}

// FromProto converts a wire message back into a Config. Missing fields keep
// their zero value.
func FromProto(msg *structpb.Struct) *Config {
	m := msg.AsMap()
	cfg := &Config{}

	gpu := object(m, "gpu_options")
	cfg.GPUOptions.PerProcessGPUMemoryFraction = number(gpu, "per_process_gpu_memory_fraction")
	cfg.GPUOptions.AllowGrowth = boolean(gpu, "allow_growth")

	graph := object(m, "graph_options")
	cfg.GraphOptions.OptimizerOptions.GlobalJITLevel = JITLevel(number(object(graph, "optimizer_options"), "global_jit_level"))

	rewrite := object(graph, "rewrite_options")
	rw := &cfg.GraphOptions.RewriteOptions
	for _, opt := range rewriterOptions {
		if opt.toggle != nil {
			*opt.toggle(rw) = RewriterToggle(number(rewrite, opt.name))
		} else {
			*opt.flag(rw) = boolean(rewrite, opt.name)
		}
	}
	rw.MinGraphNodes = int32(number(rewrite, "min_graph_nodes"))

	cfg.IntraOpParallelismThreads = int32(number(m, "intra_op_parallelism_threads"))
	cfg.InterOpParallelismThreads = int32(number(m, "inter_op_parallelism_threads"))
	cfg.AllowSoftPlacement = boolean(m, "allow_soft_placement")
	cfg.LogDevicePlacement = boolean(m, "log_device_placement")
	return cfg
}

func object(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func number(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func boolean(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
