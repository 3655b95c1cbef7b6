package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_MarshalDeterministic(t *testing.T) {
	cfg := &Config{IntraOpParallelismThreads: 3, LogDevicePlacement: true}
	cfg.GraphOptions.RewriteOptions.ArithmeticOptimization = RewriterOff

	a, err := cfg.Marshal()
	require.NoError(t, err)
	b, err := cfg.Clone().Marshal()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConfig_RoundTripPreservesFields(t *testing.T) {
	cfg := &Config{
		GPUOptions:                GPUOptions{PerProcessGPUMemoryFraction: 0.75, AllowGrowth: true},
		IntraOpParallelismThreads: 6,
		InterOpParallelismThreads: 2,
		AllowSoftPlacement:        true,
	}
	cfg.GraphOptions.OptimizerOptions.GlobalJITLevel = JITOff
	cfg.GraphOptions.RewriteOptions.PinToHostOptimization = RewriterOn
	cfg.GraphOptions.RewriteOptions.DisableMetaOptimizer = true
	cfg.GraphOptions.RewriteOptions.MinGraphNodes = 7

	b, err := cfg.Marshal()
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestUnmarshal_EmptyAndGarbage(t *testing.T) {
	got, err := Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, &Config{}, got)

	_, err = Unmarshal([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
