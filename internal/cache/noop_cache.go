package cache

import "osmview/internal/tile"

// NoopCache is the disk tier used when no cache directory is configured.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(key tile.Key) ([]byte, bool) {
	return nil, false
}

func (c *NoopCache) Set(key tile.Key, value []byte) error {
	return nil
}

func (c *NoopCache) Has(key tile.Key) bool {
	return false
}

func (c *NoopCache) Path(key tile.Key) string {
	return ""
}

func (c *NoopCache) Dir() string {
	return ""
}

func (c *NoopCache) Clear() error {
	return nil
}
