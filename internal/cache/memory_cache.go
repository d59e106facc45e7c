package cache

import (
	"container/list"

	"osmview/internal/tile"
)

type entry struct {
	key   uint64
	value tile.Tile
}

// MemoryCache implements in-memory LRU cache. Each key has exactly one list
// node, so re-storing a key only moves it to the front.
type MemoryCache struct {
	maxSize int
	items   map[uint64]*list.Element
	lruList *list.List
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		maxSize: maxSize,
		items:   make(map[uint64]*list.Element),
		lruList: list.New(),
	}
}

func (c *MemoryCache) Has(key tile.Key) bool {
	_, ok := c.items[key.Pack()]
	return ok
}

func (c *MemoryCache) Get(key tile.Key) (tile.Tile, bool) {
	elem, ok := c.items[key.Pack()]
	if !ok {
		return tile.Tile{}, false
	}

	c.lruList.MoveToFront(elem)
	return elem.Value.(*entry).value, true
}

func (c *MemoryCache) Set(t tile.Tile) {
	k := t.Key.Pack()

	if elem, ok := c.items[k]; ok {
		elem.Value.(*entry).value = t
		c.lruList.MoveToFront(elem)
		return
	}

	ent := &entry{key: k, value: t}
	c.items[k] = c.lruList.PushFront(ent)
	c.evict()
}

func (c *MemoryCache) Len() int {
	return c.lruList.Len()
}

func (c *MemoryCache) MaxSize() int {
	return c.maxSize
}

// SetMaxSize changes the bound and evicts down to it right away.
func (c *MemoryCache) SetMaxSize(n int) {
	c.maxSize = n
	c.evict()
}

func (c *MemoryCache) Clear() {
	c.items = make(map[uint64]*list.Element)
	c.lruList = list.New()
}

func (c *MemoryCache) evict() {
	for c.lruList.Len() > c.maxSize {
		oldest := c.lruList.Back()
		if oldest == nil {
			return
		}
		delete(c.items, oldest.Value.(*entry).key)
		c.lruList.Remove(oldest)
	}
}
