package config

import (
	"fmt"

	"github.com/hupe1980/eagerctx/core"
)

// FunctionCallOptions are applied at call sites of compiled functions: the
// executor to run them with and the serialized config used when the function
// graph is optimized on its first call.
type FunctionCallOptions struct {
	executorType     string
	configSerialized []byte
}

// NewFunctionCallOptions builds options from an executor name (empty means
// the default executor) and a config accepted in any form SetConfig accepts.
func NewFunctionCallOptions(executorType string, cfg any) (*FunctionCallOptions, error) {
	o := &FunctionCallOptions{executorType: executorType}
	if err := o.SetConfig(cfg); err != nil {
		return nil, err
	}
	return o, nil
}

// ExecutorType returns the executor name.
func (o *FunctionCallOptions) ExecutorType() string { return o.executorType }

// SetExecutorType replaces the executor name.
func (o *FunctionCallOptions) SetExecutorType(executorType string) { o.executorType = executorType }

// ConfigSerialized returns a copy of the serialized config.
func (o *FunctionCallOptions) ConfigSerialized() []byte {
	out := make([]byte, len(o.configSerialized))
	copy(out, o.configSerialized)
	return out
}

// Config decodes the serialized config.
func (o *FunctionCallOptions) Config() (*Config, error) {
	return Unmarshal(o.configSerialized)
}

// SetConfig replaces the serialized config wholesale. cfg may be a *Config,
// already serialized bytes, or nil for an empty config.
func (o *FunctionCallOptions) SetConfig(cfg any) error {
	switch c := cfg.(type) {
	case nil:
		b, err := (&Config{}).Marshal()
		if err != nil {
			return err
		}
		o.configSerialized = b
	case *Config:
		if c == nil {
			return o.SetConfig(nil)
		}
		b, err := c.Marshal()
		if err != nil {
			return err
		}
		o.configSerialized = b
	case []byte:
		b := make([]byte, len(c))
		copy(b, c)
		o.configSerialized = b
	default:
		return fmt.Errorf("%w: the rewriter config must be a *config.Config, serialized bytes or nil, got %T", core.ErrInvalidArgument, cfg)
	}
	return nil
}

// Clone returns an independent copy.
func (o *FunctionCallOptions) Clone() *FunctionCallOptions {
	return &FunctionCallOptions{
		executorType:     o.executorType,
		configSerialized: o.ConfigSerialized(),
	}
}
