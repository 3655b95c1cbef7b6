package eager

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct{ flushes int }

func (w *stubWriter) Flush() error { w.flushes++; return nil }
func (w *stubWriter) Close() error { return nil }

func TestSummaryState_Defaults(t *testing.T) {
	c, _ := newTestContext(t)
	th := c.NewThread()

	assert.Nil(t, th.SummaryWriter())
	assert.Nil(t, th.SummaryRecording())
	assert.Nil(t, th.SummaryStep())
	require.NotNil(t, th.SummaryRecordingDistributionStrategy())
	assert.True(t, th.SummaryRecordingDistributionStrategy()())
	assert.False(t, th.ShouldRecordSummaries())
}

func TestSummaryState_IndependentPerThread(t *testing.T) {
	c, _ := newTestContext(t)
	th := c.NewThread()
	other := c.NewThread()

	w := &stubWriter{}
	var step atomic.Int64
	th.SetSummaryWriter(w)
	th.SetSummaryRecording(Always)
	th.SetSummaryStep(&step)

	assert.True(t, th.ShouldRecordSummaries())
	assert.Same(t, w, th.SummaryWriter())
	assert.Same(t, &step, th.SummaryStep())

	assert.Nil(t, other.SummaryWriter())
	assert.Nil(t, other.SummaryRecording())
	assert.Nil(t, other.SummaryStep())
	assert.False(t, other.ShouldRecordSummaries())

	other.SetSummaryRecordingDistributionStrategy(Never)
	assert.True(t, th.ShouldRecordSummaries(), "strategy condition is per thread")
}

func TestSummaryState_Conditions(t *testing.T) {
	c, _ := newTestContext(t)
	th := c.NewThread()
	th.SetSummaryWriter(&stubWriter{})

	var step atomic.Int64
	th.SetSummaryStep(&step)
	th.SetSummaryRecording(func() bool { return step.Load()%10 == 0 })

	assert.True(t, th.ShouldRecordSummaries())
	step.Store(3)
	assert.False(t, th.ShouldRecordSummaries(), "condition is evaluated at write time")
	step.Store(20)
	assert.True(t, th.ShouldRecordSummaries())

	th.SetSummaryRecordingDistributionStrategy(Never)
	assert.False(t, th.ShouldRecordSummaries())
	th.SetSummaryRecordingDistributionStrategy(nil)
	assert.True(t, th.ShouldRecordSummaries(), "nil restores Always")
}
