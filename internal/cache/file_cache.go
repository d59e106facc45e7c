package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"osmview/internal/tile"
)

// FileCache implements file-based cache
// Structure: {cacheDir}/{z}/{x}/{y}.png
type FileCache struct {
	mu       sync.RWMutex
	cacheDir string
}

// NewFileCache creates cacheDir if needed and fails when the path exists but
// is not a directory.
func NewFileCache(cacheDir string) (*FileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	info, err := os.Stat(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache path is not a directory: %s", cacheDir)
	}

	return &FileCache{
		cacheDir: cacheDir,
	}, nil
}

// Path builds the file path from the tile key
func (c *FileCache) Path(key tile.Key) string {
	return filepath.Join(c.cacheDir,
		strconv.Itoa(key.Zoom),
		strconv.Itoa(key.X),
		strconv.Itoa(key.Y)+".png")
}

func (c *FileCache) Dir() string {
	return c.cacheDir
}

func (c *FileCache) Has(key tile.Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, err := os.Stat(c.Path(key))
	return err == nil && info.Mode().IsRegular()
}

func (c *FileCache) Get(key tile.Key) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.Path(key))
	if err != nil {
		return nil, false
	}

	return data, true
}

// Set stores value unless a file for key already exists.
func (c *FileCache) Set(key tile.Key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.Path(key)
	if _, err := os.Stat(filePath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create tile directory: %w", err)
	}

	// Write atomically
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0644); err != nil {
		return fmt.Errorf("failed to write tile: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move tile into place: %w", err)
	}

	return nil
}

func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.cacheDir); err != nil {
		return fmt.Errorf("failed to remove cache directory: %w", err)
	}

	return os.MkdirAll(c.cacheDir, 0755)
}

// Walk calls fn for every cached tile file, in directory order.
func (c *FileCache) Walk(fn func(key tile.Key, path string) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return filepath.WalkDir(c.cacheDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(c.cacheDir, path)
		if err != nil {
			return err
		}

		var key tile.Key
		if _, err := fmt.Sscanf(filepath.ToSlash(rel), "%d/%d/%d.png", &key.Zoom, &key.X, &key.Y); err != nil {
			return nil
		}
		if c.Path(key) != path {
			return nil
		}

		return fn(key, path)
	})
}
