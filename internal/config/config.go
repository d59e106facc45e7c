package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                int
	TileServer          string
	CacheDir            string
	CacheMemoryTiles    int
	CachePolicy         string
	MaxDownloadingTiles int
	UserAgent           string
	DownloadTimeout     time.Duration
	RefLat              float64
	RefLon              float64
	RefHeight           float64
	OsmMaxZoom          int
	OsmRes              float64
	WarmupZoom          int
	WarmupRadius        int
	WarmupWorkers       int
	VipsMaxCacheMB      int
	VipsConcurrency     int
	LogLevel            string
	LogFormat           string
	WriteToken          string
	MaxBodySize         int64
	AllowedOrigin       string
	DrawGrid            bool
}

func Load() *Config {
	cfg := &Config{
		Port:                getEnvInt("PORT", 8080),
		TileServer:          getEnv("TILE_SERVER", "https://tile.openstreetmap.org"),
		CacheDir:            getEnv("CACHE_DIR", "osm_tiles"),
		CacheMemoryTiles:    getEnvInt("CACHE_MEMORY_TILES", 600),
		CachePolicy:         getEnv("CACHE_POLICY", "insertion"),
		MaxDownloadingTiles: getEnvInt("MAX_DOWNLOADING_TILES", 6),
		UserAgent:           getEnv("USER_AGENT", "Firefox"),
		DownloadTimeout:     getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		RefLat:              getEnvFloat("REF_LAT", 57.78100308),
		RefLon:              getEnvFloat("REF_LON", 12.76925422),
		RefHeight:           getEnvFloat("REF_HEIGHT", 253.76),
		OsmMaxZoom:          getEnvInt("OSM_MAX_ZOOM", 19),
		OsmRes:              getEnvFloat("OSM_RES", 1.0),
		WarmupZoom:          getEnvInt("WARMUP_ZOOM", 0),
		WarmupRadius:        getEnvInt("WARMUP_RADIUS", 2),
		WarmupWorkers:       getEnvInt("WARMUP_WORKERS", 1),
		VipsMaxCacheMB:      getEnvInt("VIPS_MAX_CACHE_MB", 64),
		VipsConcurrency:     getEnvInt("VIPS_CONCURRENCY", 1),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		WriteToken:          getEnv("WRITE_TOKEN", ""),
		MaxBodySize:         getEnvInt64("MAX_BODY_SIZE", 1<<20), // 1MB default
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", ""),
		DrawGrid:            getEnvBool("DRAW_GRID", true),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// IsWritePublic reports whether mutating endpoints accept requests without
// a token.
func (c *Config) IsWritePublic() bool {
	return strings.TrimSpace(c.WriteToken) == ""
}
