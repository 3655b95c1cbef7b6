package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blob int

func (b blob) NumElements() int { return int(b) }

func TestFIFO_EvictsOldestInsertionOrder(t *testing.T) {
	c := NewFIFO[int, blob]()

	for i := 0; i < 300; i++ {
		c.Put(i, blob(1))
	}

	require.Equal(t, 256, c.Len())
	keys := c.Keys()
	for i, k := range keys {
		assert.Equal(t, 44+i, k)
	}
	for i := 0; i < 44; i++ {
		_, ok := c.Get(i)
		assert.False(t, ok, "key %d should be evicted", i)
	}
	_, ok := c.Get(299)
	assert.True(t, ok)
}

func TestFIFO_ReadsDoNotRefresh(t *testing.T) {
	c := NewFIFO[string, blob](func(o *Options) { o.MaxItems = 2 })

	c.Put("a", 1)
	c.Put("b", 1)
	_, _ = c.Get("a")
	c.Put("c", 1)

	_, ok := c.Get("a")
	assert.False(t, ok, "FIFO must evict the oldest insert even if recently read")
	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestFIFO_OverwriteKeepsPosition(t *testing.T) {
	c := NewFIFO[string, blob](func(o *Options) { o.MaxItems = 2 })

	c.Put("a", 1)
	c.Put("b", 1)
	c.Put("a", 2)
	c.Put("c", 1)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, blob(1), v)
}

func TestFIFO_AdmissionThreshold(t *testing.T) {
	c := NewFIFO[string, blob]()

	c.Put("big", 20000)
	_, ok := c.Get("big")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	c.Put("edge", 10000)
	_, ok = c.Get("edge")
	assert.True(t, ok)
}

func TestFIFO_Flush(t *testing.T) {
	c := NewFIFO[string, blob]()
	c.Put("a", 1)
	c.Flush()

	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestFIFO_NilInterfaceValueIgnored(t *testing.T) {
	c := NewFIFO[string, Sized]()

	assert.NotPanics(t, func() { c.Put("nil", nil) })
	_, ok := c.Get("nil")
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	c.Put("one", blob(1))
	assert.Equal(t, 1, c.Len())
}
