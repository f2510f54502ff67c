package graph

// A Cache holds quantities derived from one vertex's estimate, for example a precomputed transform
// shared by every edge observing through the same sensor offset. The cache stores the id of its
// vertex rather than a reference to it; the vertex owns the cache.
type Cache interface {
	// VertexID returns the id of the vertex whose estimate the cache derives from.
	VertexID() int
	// Update recomputes the derived quantities from v. Implementations compute into locals and
	// assign the results once.
	Update(v Vertex)
	// Clone returns an independent copy, used when a vertex is cloned.
	Clone() Cache
}

// CacheContainer is the set of caches attached to one vertex, keyed by a caller chosen string.
type CacheContainer struct {
	keys   []string
	caches map[string]Cache
}

// Get returns the cache stored under key.
func (cc *CacheContainer) Get(key string) (Cache, bool) {
	c, ok := cc.caches[key]
	return c, ok
}

// GetOrCreate returns the cache stored under key, creating and updating it from v when missing.
func (cc *CacheContainer) GetOrCreate(key string, v Vertex, create func() Cache) Cache {
	if c, ok := cc.caches[key]; ok {
		return c
	}
	if cc.caches == nil {
		cc.caches = map[string]Cache{}
	}
	c := create()
	c.Update(v)
	cc.caches[key] = c
	cc.keys = append(cc.keys, key)
	return c
}

// Update recomputes every cache from v in creation order.
func (cc *CacheContainer) Update(v Vertex) {
	for _, k := range cc.keys {
		cc.caches[k].Update(v)
	}
}

// Len returns the number of caches.
func (cc *CacheContainer) Len() int {
	return len(cc.keys)
}

// Clear drops every cache.
func (cc *CacheContainer) Clear() {
	cc.keys = nil
	cc.caches = nil
}

func (cc *CacheContainer) clone() CacheContainer {
	if len(cc.keys) == 0 {
		return CacheContainer{}
	}
	out := CacheContainer{
		keys:   append([]string(nil), cc.keys...),
		caches: make(map[string]Cache, len(cc.caches)),
	}
	for k, c := range cc.caches {
		out.caches[k] = c.Clone()
	}
	return out
}
