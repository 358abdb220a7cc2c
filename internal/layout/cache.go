package layout

import "layoutcore/internal/types"

type cacheKey struct {
	Type  types.TypeID
	Attrs uint64
}

type cacheEntry struct {
	Layout TypeLayout
	Err    *LayoutError
}

type cache struct {
	byType map[cacheKey]cacheEntry
}

func newCache() *cache {
	return &cache{byType: make(map[cacheKey]cacheEntry, 256)}
}

func (c *cache) get(key cacheKey) (cacheEntry, bool) {
	if c == nil {
		return cacheEntry{}, false
	}
	l, ok := c.byType[key]
	return l, ok
}

func (c *cache) put(key cacheKey, entry *cacheEntry) {
	if c == nil {
		return
	}
	if entry == nil {
		delete(c.byType, key)
		return
	}
	c.byType[key] = *entry
}

func (c *cache) len() int {
	if c == nil {
		return 0
	}
	return len(c.byType)
}
