package http

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"osmview/internal/export"
	"osmview/internal/map_renderer"
	"osmview/internal/osm_client"
	"osmview/internal/tile"
)

// HandleTiles serves /api/tiles/{z}/{x}/{y}.png from the cache. A miss
// starts a download and answers with the status placeholder, which is never
// cached by the browser.
func (h *Handlers) HandleTiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tiles/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	var z, x, y int
	if _, err := fmt.Sscanf(parts[0], "%d", &z); err != nil {
		http.Error(w, "Invalid zoom level", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &x); err != nil {
		http.Error(w, "Invalid x coordinate", http.StatusBadRequest)
		return
	}

	tileFile := parts[2]
	ext := filepath.Ext(tileFile)
	if ext != ".png" {
		http.Error(w, "Invalid format", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(strings.TrimSuffix(tileFile, ext), "%d", &y); err != nil {
		http.Error(w, "Invalid y coordinate", http.StatusBadRequest)
		return
	}

	if z < 0 || z > tile.MaxZoom {
		http.Error(w, "Invalid zoom level", http.StatusBadRequest)
		return
	}

	var (
		t        tile.Tile
		status   osm_client.Status
		download osm_client.DownloadResult
		server   string
	)
	err := h.do(r.Context(), func(c *osm_client.Client, _ *map_renderer.Map) {
		t, status = c.GetTile(z, x, y)
		if status == osm_client.Miss && !c.DownloadQueueFull() {
			download = c.StartDownload(z, x, y)
		}
		server = c.TileServer()
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}

	if download != 0 {
		h.logger.Debug("Tile requested", zap.Int("z", z), zap.Int("x", x), zap.Int("y", y), zap.Stringer("result", download))
	}

	w.Header().Set("X-Tile-Status", status.String())

	cached := status == osm_client.MemoryHit || status == osm_client.DiskHit
	if cached {
		etag := `"` + generateETag(server, t.Key) + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=86400")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Tile-Placeholder", t.Placeholder.String())
	}

	data, err := export.Encode(t.Image, export.Options{Format: export.PNG})
	if err != nil {
		h.logger.Error("Failed to encode tile", zap.Stringer("tile", t.Key), zap.Error(err))
		http.Error(w, "Failed to encode tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(data)
}

// generateETag identifies a tile by its server and key. Cached tiles are
// never rewritten, so the pair is stable until the cache is cleared.
func generateETag(server string, key tile.Key) string {
	hash := sha256.Sum256([]byte(server + "/" + key.String()))
	return hex.EncodeToString(hash[:])[:16]
}
