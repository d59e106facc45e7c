package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewMemory creates the RAM tier for the given eviction policy
func NewMemory(policy string, maxTiles int, log *zap.Logger) (Memory, error) {
	switch policy {
	case "insertion", "":
		log.Info("Using insertion-order memory cache", zap.Int("max_tiles", maxTiles))
		return NewOrderedCache(maxTiles), nil
	case "lru":
		log.Info("Using LRU memory cache", zap.Int("max_tiles", maxTiles))
		return NewMemoryCache(maxTiles), nil
	default:
		return nil, fmt.Errorf("unknown cache policy: %s (supported: insertion, lru)", policy)
	}
}

// NewDisk creates the disk tier, or a no-op tier when dir is empty.
func NewDisk(dir string, log *zap.Logger) (Disk, error) {
	if dir == "" {
		log.Info("Disk cache disabled")
		return NewNoopCache(), nil
	}

	fc, err := NewFileCache(dir)
	if err != nil {
		return nil, err
	}

	log.Info("Using file cache", zap.String("cache_dir", dir))
	return fc, nil
}
