package backend

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/eagerctx/config"
	"github.com/hupe1980/eagerctx/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func openHandle(t *testing.T, async bool, optFns ...func(o *Options)) *Handle {
	t.Helper()
	cfg, err := (&config.Config{IntraOpParallelismThreads: 3}).Marshal()
	require.NoError(t, err)
	h, err := NewInMemory(optFns...).Open(cfg, core.PlacementSilent, async)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h.(*Handle)
}

func TestOpen_DecodesConfig(t *testing.T) {
	h := openHandle(t, false)
	assert.Equal(t, int32(3), h.Config().IntraOpParallelismThreads)

	devices, err := h.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, DefaultDevices(), devices)
}

func TestOpen_RejectsInvalidInput(t *testing.T) {
	_, err := NewInMemory().Open(nil, core.DevicePlacementPolicy(99), false)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = NewInMemory().Open([]byte{0xff, 0xff}, core.PlacementSilent, false)
	assert.Error(t, err)
}

func TestExecute_Sync(t *testing.T) {
	h := openHandle(t, false)
	ran := false
	err := h.Execute(context.Background(), "t1", core.Operation{Type: "Add", Run: func(context.Context) error {
		ran = true
		return nil
	}})
	require.NoError(t, err)
	assert.True(t, ran)

	boom := errors.New("boom")
	err = h.Execute(context.Background(), "t1", core.Operation{Type: "Fail", Run: func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)
}

func TestExecute_AsyncOrderedAndDeferredError(t *testing.T) {
	h := openHandle(t, false)
	require.NoError(t, h.SetAsyncForThread("t1", true))
	assert.True(t, h.IsAsync("t1"))
	assert.False(t, h.IsAsync("t2"))

	release := make(chan struct{})
	var order []int
	var skipped atomic.Bool
	boom := errors.New("boom")

	ctx := context.Background()
	require.NoError(t, h.Execute(ctx, "t1", core.Operation{Type: "A", Run: func(context.Context) error {
		<-release
		order = append(order, 1)
		return nil
	}}))
	require.NoError(t, h.Execute(ctx, "t1", core.Operation{Type: "B", Run: func(context.Context) error {
		order = append(order, 2)
		return boom
	}}))
	require.NoError(t, h.Execute(ctx, "t1", core.Operation{Type: "C", Run: func(context.Context) error {
		skipped.Store(true)
		return nil
	}}))

	close(release)
	err := h.AsyncWait()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, order)
	assert.False(t, skipped.Load())

	// The error stays pending until cleared.
	assert.ErrorIs(t, h.AsyncWait(), boom)
	h.AsyncClearError()
	assert.NoError(t, h.AsyncWait())
}

func TestAsyncClearError_DoesNotBlock(t *testing.T) {
	h := openHandle(t, true)
	release := make(chan struct{})
	require.NoError(t, h.Execute(context.Background(), "t1", core.Operation{Type: "Slow", Run: func(context.Context) error {
		<-release
		return nil
	}}))

	done := make(chan struct{})
	go func() {
		h.AsyncClearError()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AsyncClearError blocked")
	}
	close(release)
	assert.NoError(t, h.AsyncWait())
}

func TestAsyncWait_ConcurrentWithDispatch(t *testing.T) {
	h := openHandle(t, true)

	var ran atomic.Int64
	var g errgroup.Group
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				if err := h.Execute(context.Background(), "t", core.Operation{Type: "Add", Run: func(context.Context) error {
					ran.Add(1)
					return nil
				}}); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if err := h.AsyncWait(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, h.AsyncWait())
	assert.Equal(t, int64(800), ran.Load())
}

func TestDevicePlacementPolicy_ThreadOverride(t *testing.T) {
	h := openHandle(t, false)
	require.NoError(t, h.SetThreadLocalDevicePlacementPolicy("t1", core.PlacementExplicit))
	assert.Equal(t, core.PlacementExplicit, h.DevicePlacementPolicy("t1"))
	assert.Equal(t, core.PlacementSilent, h.DevicePlacementPolicy("t2"))

	require.NoError(t, h.SetDevicePlacementPolicy(core.PlacementWarn))
	assert.Equal(t, core.PlacementWarn, h.DevicePlacementPolicy("t2"))
	assert.ErrorIs(t, h.SetDevicePlacementPolicy(core.DevicePlacementPolicy(42)), core.ErrInvalidArgument)
}

func TestFunctions(t *testing.T) {
	h := openHandle(t, false)
	assert.False(t, h.HasFunction("f"))
	require.NoError(t, h.AddFunction("f", struct{}{}))
	assert.True(t, h.HasFunction("f"))

	require.NoError(t, h.AddFunctionDef("g", []byte{1}))
	assert.True(t, h.HasFunction("g"))
	assert.ErrorIs(t, h.AddFunctionDef("h", nil), core.ErrInvalidArgument)
	assert.ErrorIs(t, h.AddFunction("", nil), core.ErrInvalidArgument)
}

func TestRunMetadata(t *testing.T) {
	h := openHandle(t, false)

	b, err := h.ExportRunMetadata()
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, h.EnableRunMetadata())
	require.NoError(t, h.EnableGraphCollection())
	require.NoError(t, h.AddFunction("MyFn", nil))
	require.NoError(t, h.Execute(context.Background(), "t1", core.Operation{Type: "MatMul", Device: "/device:CPU:0"}))
	require.NoError(t, h.Execute(context.Background(), "t1", core.Operation{Type: "MyFn"}))

	b, err = h.ExportRunMetadata()
	require.NoError(t, err)

	var md structpb.Struct
	require.NoError(t, proto.Unmarshal(b, &md))
	stats := md.GetFields()["step_stats"].GetListValue().GetValues()
	require.Len(t, stats, 2)
	assert.Equal(t, "MatMul", stats[0].GetStructValue().GetFields()["op"].GetStringValue())
	graphs := md.GetFields()["function_graphs"].GetListValue().GetValues()
	require.Len(t, graphs, 1)
	assert.Equal(t, "MyFn", graphs[0].GetStringValue())

	// Export resets the accumulated metadata.
	b, err = h.ExportRunMetadata()
	require.NoError(t, err)
	require.NoError(t, proto.Unmarshal(b, &md))
	assert.Empty(t, md.GetFields()["step_stats"].GetListValue().GetValues())
}

func TestServerDefAndCollectiveOps(t *testing.T) {
	h := openHandle(t, false)
	require.NoError(t, h.SetServerDef(time.Minute, []byte("def")))
	def, keepAlive := h.ServerDef()
	assert.Equal(t, []byte("def"), def)
	assert.Equal(t, time.Minute, keepAlive)

	require.NoError(t, h.EnableCollectiveOps([]byte("coll")))
	assert.Equal(t, []byte("coll"), h.CollectiveOps())
}

func TestSteps(t *testing.T) {
	h := openHandle(t, false)
	require.NoError(t, h.StartStep())
	require.NoError(t, h.StartStep())
	assert.Equal(t, 2, h.ActiveSteps())
	require.NoError(t, h.EndStep())
	require.NoError(t, h.EndStep())
	require.NoError(t, h.EndStep())
	assert.Equal(t, 0, h.ActiveSteps())
}

func TestClose(t *testing.T) {
	h := openHandle(t, true)
	var ran atomic.Bool
	require.NoError(t, h.Execute(context.Background(), "t1", core.Operation{Type: "A", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}}))
	require.NoError(t, h.Close())
	assert.True(t, ran.Load())
	assert.NoError(t, h.Close())

	_, err := h.ListDevices()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Execute(context.Background(), "t1", core.Operation{Type: "B"}), ErrClosed)
}

func TestClearCaches(t *testing.T) {
	h := openHandle(t, false)
	require.NoError(t, h.ClearCaches())
	assert.Equal(t, 1, h.CacheClears())
}
