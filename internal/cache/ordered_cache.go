package cache

import "osmview/internal/tile"

// OrderedCache evicts strictly by insertion order. Storing a key that is
// already cached appends a second order entry; when the older entry reaches
// the head it removes the key even though it was stored again since.
type OrderedCache struct {
	maxSize int
	items   map[uint64]tile.Tile
	order   []uint64
}

func NewOrderedCache(maxSize int) *OrderedCache {
	return &OrderedCache{
		maxSize: maxSize,
		items:   make(map[uint64]tile.Tile),
	}
}

func (c *OrderedCache) Has(key tile.Key) bool {
	_, ok := c.items[key.Pack()]
	return ok
}

func (c *OrderedCache) Get(key tile.Key) (tile.Tile, bool) {
	t, ok := c.items[key.Pack()]
	return t, ok
}

func (c *OrderedCache) Set(t tile.Tile) {
	k := t.Key.Pack()
	c.items[k] = t
	c.order = append(c.order, k)
	c.evict()
}

func (c *OrderedCache) Len() int {
	return len(c.items)
}

// OrderLen is the length of the insertion-order list, which can exceed Len.
func (c *OrderedCache) OrderLen() int {
	return len(c.order)
}

func (c *OrderedCache) MaxSize() int {
	return c.maxSize
}

func (c *OrderedCache) SetMaxSize(n int) {
	c.maxSize = n
	c.evict()
}

func (c *OrderedCache) Clear() {
	c.items = make(map[uint64]tile.Tile)
	c.order = nil
}

func (c *OrderedCache) evict() {
	for len(c.order) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}
