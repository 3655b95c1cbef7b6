package eager

import (
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/eagerctx/backend"
	"github.com/hupe1980/eagerctx/core"
	"github.com/hupe1980/eagerctx/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestContext(t *testing.T, optFns ...func(o *Options)) (*Context, *testutil.RecordingBackend) {
	t.Helper()
	b := testutil.NewRecordingBackend().WithDevices(testutil.NewDeviceListBuilder().CPU(1).GPU(2).Build())
	c := New(append([]func(o *Options){WithBackend(b)}, optFns...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, b
}

func serverDef(t *testing.T, job string) *structpb.Struct {
	t.Helper()
	def, err := structpb.NewStruct(map[string]any{"job_name": job, "task_index": 0})
	require.NoError(t, err)
	return def
}

func TestDefault_Singleton(t *testing.T) {
	c := Default()
	require.NotNil(t, c)
	assert.Same(t, c, Default())
	assert.Same(t, c, Safe())
	assert.False(t, SetDefault(New()))
	assert.Same(t, c, Default())
}

func TestHandle_InitializesExactlyOnce(t *testing.T) {
	b := testutil.NewRecordingBackend().WithOpenDelay(20 * time.Millisecond)
	c := New(WithBackend(b))
	t.Cleanup(func() { _ = c.Close() })

	const callers = 64
	handles := make([]core.Handle, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			h, err := c.Handle()
			handles[i] = h
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, b.Opens())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.True(t, c.Initialized())
}

func TestHandle_OpenFailurePropagates(t *testing.T) {
	boom := errors.New("no engine")
	b := testutil.NewRecordingBackend().WithOpenError(boom)
	c := New(WithBackend(b))

	_, err := c.Handle()
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Initialized())

	_, err = c.Handle()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, b.Opens())
}

func TestHandle_DeviceEnumerationFailurePublishesNothing(t *testing.T) {
	boom := errors.New("enumeration failed")
	b := testutil.NewRecordingBackend().WithListDevicesError(boom)
	c := New(WithBackend(b))

	_, err := c.Handle()
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Initialized())

	handles := b.Handles()
	require.Len(t, handles, 1)
	assert.True(t, handles[0].Closed())

	// Startup knobs stay settable.
	assert.NoError(t, c.SetIntraOpParallelismThreads(2))
}

func TestHandle_ConflictingServerConfig(t *testing.T) {
	c, b := newTestContext(t, WithServerDef(serverDef(t, "worker"), time.Minute))
	require.NoError(t, c.EnableCollectiveOps(serverDef(t, "collective")))

	_, err := c.Handle()
	require.ErrorIs(t, err, core.ErrConflictingServerConfig)
	assert.Equal(t, 0, b.Opens())
	assert.False(t, c.Initialized())
}

func TestHandle_AppliesStagedServerDef(t *testing.T) {
	def := serverDef(t, "worker")
	c, b := newTestContext(t, WithServerDef(def, time.Minute))

	_, err := c.Handle()
	require.NoError(t, err)

	want, err := proto.Marshal(def)
	require.NoError(t, err)
	got, keepAlive := b.Handles()[0].ServerDef()
	assert.Equal(t, want, got)
	assert.Equal(t, time.Minute, keepAlive)
}

func TestHandle_AppliesStagedCollectiveOps(t *testing.T) {
	def := serverDef(t, "collective")
	c, b := newTestContext(t)
	require.NoError(t, c.EnableCollectiveOps(def))

	_, err := c.Handle()
	require.NoError(t, err)

	want, err := proto.Marshal(def)
	require.NoError(t, err)
	assert.Equal(t, want, b.Handles()[0].CollectiveOps())
}

func TestHandle_OpensWithEffectiveConfigPolicyAndMode(t *testing.T) {
	c, b := newTestContext(t, WithDevicePolicy(core.PlacementExplicit), WithExecutionMode(core.Async))
	require.NoError(t, c.SetIntraOpParallelismThreads(4))

	_, err := c.Handle()
	require.NoError(t, err)

	cfg := b.LastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, int32(4), cfg.IntraOpParallelismThreads)
	assert.True(t, cfg.AllowSoftPlacement)

	policy, async := b.LastPolicy()
	assert.Equal(t, core.PlacementExplicit, policy)
	assert.True(t, async)
}

func TestDevicesAndNumGPUs(t *testing.T) {
	c, _ := newTestContext(t)
	assert.False(t, c.Initialized())

	devices, err := c.Devices()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/job:localhost/replica:0/task:0/device:CPU:0",
		"/job:localhost/replica:0/task:0/device:GPU:0",
		"/job:localhost/replica:0/task:0/device:GPU:1",
	}, devices)

	n, err := c.NumGPUs()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, c.Initialized())
}

func TestNew_DefaultsToInMemoryBackend(t *testing.T) {
	c := New()
	t.Cleanup(func() { _ = c.Close() })

	devices, err := c.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, backend.DefaultDevices()[0].Name, devices[0])
}

func TestNew_InvalidOptionsFallBack(t *testing.T) {
	c := New(WithDevicePolicy(core.DevicePlacementPolicy(99)), WithExecutionMode(core.ExecutionMode(7)))
	assert.Equal(t, core.PlacementSilent, c.DevicePolicy())
	assert.Equal(t, core.Sync, c.ExecutionMode())
	assert.Equal(t, core.ModeEager, c.DefaultMode())
}

func TestString(t *testing.T) {
	c, _ := newTestContext(t)
	assert.Contains(t, c.String(), "initialized: false")
	_, err := c.Handle()
	require.NoError(t, err)
	assert.Contains(t, c.String(), "gpus: 2")
}

func TestClose_AllowsReinitialization(t *testing.T) {
	c, b := newTestContext(t)
	_, err := c.Handle()
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.False(t, c.Initialized())
	assert.True(t, b.Handles()[0].Closed())

	_, err = c.Handle()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Opens())
}
