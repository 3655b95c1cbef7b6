package eagerctx

import (
	"context"
	"testing"

	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/eager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadFor_ReusesAttachedThread(t *testing.T) {
	th, ctx := ThreadFor(context.Background())
	again, ctx2 := ThreadFor(ctx)
	assert.Same(t, th, again)
	assert.Equal(t, ctx, ctx2)
	assert.Same(t, eager.Default(), th.Context())
}

func TestExecutingEagerly(t *testing.T) {
	assert.True(t, ExecutingEagerly(context.Background()))

	th, ctx := ThreadFor(context.Background())
	require.NoError(t, th.GraphMode(func() error {
		assert.False(t, ExecutingEagerly(ctx))
		return nil
	}))
}

func TestWithDevice(t *testing.T) {
	err := WithDevice(context.Background(), "cpu:0", func(ctx context.Context) error {
		th, ok := eager.ThreadFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "/job:localhost/replica:0/task:0/device:CPU:0", th.DeviceName())
		return Execute(ctx, core.Operation{Type: "NoOp"})
	})
	require.NoError(t, err)

	devices, err := ListDevices()
	require.NoError(t, err)
	assert.NotEmpty(t, devices)

	n, err := NumGPUs()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWithExecutionMode(t *testing.T) {
	err := WithExecutionMode(context.Background(), core.Async, func(ctx context.Context) error {
		th, _ := eager.ThreadFromContext(ctx)
		assert.Equal(t, core.Async, th.ExecutionMode())
		return Execute(ctx, core.Operation{Type: "NoOp"})
	})
	require.NoError(t, err)
	assert.NoError(t, AsyncWait())
	AsyncClearError()
}

func TestGlobalSeed(t *testing.T) {
	require.NoError(t, SetGlobalSeed(3))
	seed, ok := GlobalSeed()
	require.True(t, ok)
	assert.Equal(t, int64(3), seed)
	_, ok = InternalOperationSeed()
	assert.True(t, ok)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("EAGERCTX_INTRA_OP_PARALLELISM_THREADS", "5")
	t.Setenv("EAGERCTX_EXECUTION_MODE", "async")
	c, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int32(5), c.IntraOpParallelismThreads())
	assert.Equal(t, core.Async, c.ExecutionMode())

	t.Setenv("EAGERCTX_DEVICE_POLICY", "nope")
	_, err = NewFromEnv()
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
