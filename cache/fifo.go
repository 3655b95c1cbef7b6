// Package cache provides the small bounded caches kept per thread for
// lightweight recurring values such as small constant tensors.
package cache

const (
	// DefaultMaxItems is the default capacity of a FIFO cache.
	DefaultMaxItems = 256
	// DefaultMaxElements is the default admission threshold: values with more
	// elements are not cached.
	DefaultMaxElements = 10000
)

// Sized is implemented by values whose admission depends on their size.
type Sized interface {
	NumElements() int
}

// FIFO is a bounded cache that evicts the oldest inserted entry once its
// size exceeds capacity. Eviction is strict insertion order, not LRU: reads
// do not refresh an entry and overwriting a key keeps its original position.
//
// A FIFO is owned by a single thread and is not safe for concurrent use.
type FIFO[K comparable, V Sized] struct {
	maxItems    int
	maxElements int
	data        map[K]V
	order       []K
}

// Options configures a FIFO.
type Options struct {
	MaxItems    int
	MaxElements int
}

// NewFIFO returns an empty cache with default limits unless overridden.
func NewFIFO[K comparable, V Sized](optFns ...func(o *Options)) *FIFO[K, V] {
	opts := Options{
		MaxItems:    DefaultMaxItems,
		MaxElements: DefaultMaxElements,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &FIFO[K, V]{
		maxItems:    opts.MaxItems,
		maxElements: opts.MaxElements,
		data:        make(map[K]V),
	}
}

// Put stores value under key. Values larger than the admission threshold
// and nil interface values are dropped silently.
func (c *FIFO[K, V]) Put(key K, value V) {
	if any(value) == nil || value.NumElements() > c.maxElements {
		return
	}
	if _, exists := c.data[key]; !exists {
		c.order = append(c.order, key)
	}
	c.data[key] = value

	if len(c.data) > c.maxItems {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
}

// Get returns the cached value and whether it was present.
func (c *FIFO[K, V]) Get(key K) (V, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Flush drops every entry.
func (c *FIFO[K, V]) Flush() {
	c.data = make(map[K]V)
	c.order = nil
}

// Len returns the number of cached entries.
func (c *FIFO[K, V]) Len() int { return len(c.data) }

// Keys returns the cached keys from oldest to newest.
func (c *FIFO[K, V]) Keys() []K {
	keys := make([]K, len(c.order))
	copy(keys, c.order)
	return keys
}
