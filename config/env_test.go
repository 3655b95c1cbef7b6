package config

import (
	"strings"
	"testing"

	"github.com/hupe1980/eagerctx/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvironment(t *testing.T) {
	o, err := FromEnvironment(map[string]string{
		"EAGERCTX_INTRA_OP_PARALLELISM_THREADS": "4",
		"EAGERCTX_LOG_DEVICE_PLACEMENT":         "true",
		"EAGERCTX_DEVICE_POLICY":                "warn",
		"EAGERCTX_CONFIG_FILE":                  "/etc/eagerctx/runtime.hcl",
	})
	require.NoError(t, err)

	require.NotNil(t, o.IntraOpParallelismThreads)
	assert.Equal(t, int32(4), *o.IntraOpParallelismThreads)
	assert.Nil(t, o.InterOpParallelismThreads)
	assert.Nil(t, o.GPUMemoryFraction)
	assert.Equal(t, "warn", o.DevicePolicy)
	assert.Equal(t, "/etc/eagerctx/runtime.hcl", o.ConfigFile)

	var overlay Overlay
	o.ApplyTo(&overlay)
	require.NotNil(t, overlay.LogDevicePlacement)
	assert.True(t, *overlay.LogDevicePlacement)
	assert.Nil(t, overlay.SoftDevicePlacement)
}

func TestFromEnvironment_Error(t *testing.T) {
	_, err := FromEnvironment(map[string]string{
		"EAGERCTX_INTER_OP_PARALLELISM_THREADS": "lots",
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parse env:"))
}

func TestFromEnvironment_GPUMemoryFractionRange(t *testing.T) {
	_, err := FromEnvironment(map[string]string{"EAGERCTX_GPU_MEMORY_FRACTION": "1.5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	o, err := FromEnvironment(map[string]string{"EAGERCTX_GPU_MEMORY_FRACTION": "0.25"})
	require.NoError(t, err)
	assert.Equal(t, 0.25, *o.GPUMemoryFraction)

	bad := -0.1
	assert.ErrorIs(t, (&EnvOverrides{GPUMemoryFraction: &bad}).Validate(), core.ErrInvalidArgument)
}
