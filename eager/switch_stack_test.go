package eager

import (
	"testing"

	"github.com/hupe1980/eagerctx/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchStack_Seeded(t *testing.T) {
	s := NewSwitchStack(true, nil)
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.InnermostIsBuildingFunction())
	assert.ErrorIs(t, s.Pop(), core.ErrUnbalancedScope)
	assert.Equal(t, 1, s.Len())
}

func TestSwitchStack_Unseeded(t *testing.T) {
	s := NewSwitchStack(false, nil)
	assert.Equal(t, 0, s.Len())
	_, ok := s.Top()
	assert.False(t, ok)
	assert.False(t, s.InnermostIsBuildingFunction())
	assert.ErrorIs(t, s.Pop(), core.ErrUnbalancedScope)
}

func TestSwitchStack_PushPop(t *testing.T) {
	s := NewSwitchStack(false, nil)
	s.Push(true, nil, "device-stack")
	s.Push(false, nil, nil)
	assert.False(t, s.InnermostIsBuildingFunction())

	records := s.Records()
	require.Len(t, records, 2)
	assert.True(t, records[0].IsBuildingFunction)
	assert.Equal(t, "device-stack", records[0].DeviceStack)

	require.NoError(t, s.Pop())
	assert.True(t, s.InnermostIsBuildingFunction())
	require.NoError(t, s.Pop())
	assert.ErrorIs(t, s.Pop(), core.ErrUnbalancedScope)
}

func TestSwitchStack_TruncateKeepsSeed(t *testing.T) {
	s := NewSwitchStack(true, nil)
	s.Push(false, nil, nil)
	s.Push(true, nil, nil)
	s.Push(true, nil, nil)

	s.Truncate(2)
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.InnermostIsBuildingFunction())

	s.Truncate(0)
	assert.Equal(t, 1, s.Len(), "seed survives")
	s.Truncate(5)
	assert.Equal(t, 1, s.Len())
}

func TestNewThread_GraphDefaultHasNoSeed(t *testing.T) {
	c, _ := newTestContext(t, WithDefaultMode(core.ModeGraph))
	th := c.NewThread()
	assert.False(t, th.ExecutingEagerly())
	assert.Equal(t, 0, th.ContextSwitches().Len())
	assert.Equal(t, "", SharedName(th, ""))
}
