package cache

import "osmview/internal/tile"

// Memory is the RAM tier. Implementations are owned by a single goroutine
// and do no locking of their own.
type Memory interface {
	Get(key tile.Key) (tile.Tile, bool)
	Set(t tile.Tile)
	Has(key tile.Key) bool // Check presence without touching recency
	Len() int
	MaxSize() int
	SetMaxSize(n int)
	Clear()
}

// Disk is the on-disk tier, laid out as {dir}/{z}/{x}/{y}.png.
type Disk interface {
	Get(key tile.Key) ([]byte, bool)
	Set(key tile.Key, value []byte) error
	Has(key tile.Key) bool
	Path(key tile.Key) string
	Dir() string
	Clear() error
}
