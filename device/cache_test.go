package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localCPU = "/job:localhost/replica:0/task:0/device:CPU:0"

func staticBase(name string) func() (string, error) {
	return func() (string, error) { return name, nil }
}

func TestCache_ResolveIdempotent(t *testing.T) {
	c := NewCache()

	first, err := c.Resolve(localCPU, "gpu:0", staticBase(localCPU))
	require.NoError(t, err)
	assert.Equal(t, "/job:localhost/replica:0/task:0/device:GPU:0", first.Name)

	second, err := c.Resolve(localCPU, "gpu:0", staticBase(localCPU))
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
	assert.True(t, first.Spec.Equal(second.Spec))
	assert.Same(t, first.Spec, second.Spec)

	// a fresh cache computes bit-identical results
	other, err := NewCache().Resolve(localCPU, "gpu:0", staticBase(localCPU))
	require.NoError(t, err)
	assert.True(t, first.Spec.Equal(other.Spec))
}

func TestCache_ResolveEmptyResets(t *testing.T) {
	c := NewCache()

	p, err := c.Resolve(localCPU, "", func() (string, error) {
		t.Fatal("default base must not be consulted for an empty request")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "", p.Name)
	assert.True(t, p.Spec.IsEmpty())
}

func TestCache_ResolveUsesDefaultBase(t *testing.T) {
	c := NewCache()
	var calls int
	base := func() (string, error) {
		calls++
		return localCPU, nil
	}

	p, err := c.Resolve("", "/task:1", base)
	require.NoError(t, err)
	assert.Equal(t, "/job:localhost/replica:0/task:1/device:CPU:0", p.Name)

	_, err = c.Resolve("", "/task:1", base)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second lookup must hit the cache")
}

func TestCache_ResolveErrors(t *testing.T) {
	c := NewCache()

	_, err := c.Resolve("", "/bogus:0", staticBase(localCPU))
	var nameErr *NameError
	require.ErrorAs(t, err, &nameErr)

	boom := errors.New("no devices")
	_, err = c.Resolve("", "cpu:0", func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, c.Len(), "failed resolutions are not cached")
}

func TestCache_ConcurrentWritersConverge(t *testing.T) {
	c := NewCache()
	var misses atomic.Int32
	base := func() (string, error) {
		misses.Add(1)
		return localCPU, nil
	}

	var wg sync.WaitGroup
	results := make([]Placement, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Resolve("", fmt.Sprintf("gpu:%d", i%4), base)
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	for i, p := range results {
		assert.Equal(t, fmt.Sprintf("/job:localhost/replica:0/task:0/device:GPU:%d", i%4), p.Name)
	}
	assert.Equal(t, 4, c.Len())
	assert.GreaterOrEqual(t, int(misses.Load()), 4)

	c.Reset()
	assert.Equal(t, 0, c.Len())
}
