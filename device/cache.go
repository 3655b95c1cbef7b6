package device

import "sync"

// Placement is the cached result of resolving a device request: the merged
// device name and its spec.
type Placement struct {
	Name string
	Spec *Spec
}

type cacheKey struct {
	old       string
	requested string
}

// Cache memoizes (current device name, requested partial name) -> Placement
// for the whole process.
//
// The cache takes no lock around compute-and-store. Correctness rests on
// write idempotence: for a fixed key every writer computes an identical
// Placement, so racing writers only duplicate work and the last store wins
// harmlessly. Do not replace this with a single contended mutex.
type Cache struct {
	entries sync.Map // cacheKey -> Placement
}

// NewCache returns an empty placement cache.
func NewCache() *Cache {
	return &Cache{}
}

// Lookup returns the cached placement for the key pair.
func (c *Cache) Lookup(old, requested string) (Placement, bool) {
	v, ok := c.entries.Load(cacheKey{old: old, requested: requested})
	if !ok {
		return Placement{}, false
	}
	return v.(Placement), true
}

// Store records a computed placement. The value must be a pure function of
// the key pair.
func (c *Cache) Store(old, requested string, p Placement) {
	c.entries.Store(cacheKey{old: old, requested: requested}, p)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.entries.Clear()
}

// Resolve merges requested onto the placement named by old and memoizes the
// result under the original input pair.
//
// An empty request resolves to the Empty spec and the empty name, resetting
// placement rather than keeping the current device. When old is empty the
// base is taken from defaultBase, typically the first enumerated device.
func (c *Cache) Resolve(old, requested string, defaultBase func() (string, error)) (Placement, error) {
	if p, ok := c.Lookup(old, requested); ok {
		return p, nil
	}

	var spec *Spec
	if requested == "" {
		spec = Empty
	} else {
		partial, err := Parse(requested)
		if err != nil {
			return Placement{}, err
		}
		baseName := old
		if baseName == "" {
			if baseName, err = defaultBase(); err != nil {
				return Placement{}, err
			}
		}
		base, err := Parse(baseName)
		if err != nil {
			return Placement{}, err
		}
		spec = Merge(base, partial)
	}

	p := Placement{Name: spec.String(), Spec: spec}
	c.Store(old, requested, p)
	return p, nil
}
