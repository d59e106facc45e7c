package http

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"osmview/internal/config"
	"osmview/internal/events"
	"osmview/internal/map_renderer"
	"osmview/internal/osm_client"
	"osmview/internal/session"
)

const sessionTimeout = 10 * time.Second

type Handlers struct {
	config  *config.Config
	logger  *zap.Logger
	session *session.Session
	hub     *events.Hub
}

func New(config *config.Config, logger *zap.Logger, s *session.Session, hub *events.Hub) *Handlers {
	return &Handlers{
		config:  config,
		logger:  logger,
		session: s,
		hub:     hub,
	}
}

// Register mounts every route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/tiles/", h.HandleTiles)
	mux.HandleFunc("/api/map.png", h.HandleMap)
	mux.HandleFunc("/api/map.jpg", h.HandleMap)
	mux.HandleFunc("/api/stats", h.HandleStats)
	mux.HandleFunc("/api/cache/clear", h.HandleCacheClear)
	mux.HandleFunc("/api/cars", h.HandleCars)
	mux.HandleFunc("/api/cars/", h.HandleCarRoutes)
	mux.HandleFunc("/api/routes", h.HandleRoutes)
	mux.HandleFunc("/api/routes/", h.HandleRouteRoutes)
	mux.HandleFunc("/api/anchors", h.HandleAnchors)
	mux.HandleFunc("/api/events", h.hub.ServeWS)
	mux.HandleFunc("/healthz", h.HandleHealthz)
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Tile-Status")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statsResponse struct {
	osm_client.Stats
	MaxMemoryTiles      int                    `json:"max_memory_tiles"`
	MaxDownloadingTiles int                    `json:"max_downloading_tiles"`
	TileServer          string                 `json:"tile_server"`
	CacheDirectory      string                 `json:"cache_directory"`
	OsmZoom             int                    `json:"osm_zoom"`
	View                map_renderer.ViewState `json:"view"`
	EventClients        int                    `json:"event_clients"`
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp statsResponse
	err := h.do(r.Context(), func(c *osm_client.Client, m *map_renderer.Map) {
		resp.Stats = c.Stats()
		resp.MaxMemoryTiles = c.MaxMemoryTiles()
		resp.MaxDownloadingTiles = c.MaxDownloadingTiles()
		resp.TileServer = c.TileServer()
		resp.CacheDirectory = c.CacheDirectory()
		resp.OsmZoom = m.OsmZoom()
		resp.View = m.ViewState()
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}
	resp.EventClients = h.hub.ClientCount()

	h.writeJSON(w, resp)
}

// HandleCacheClear empties the memory tier, or both tiers with scope=all.
func (h *Handlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorize(w, r) {
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "memory"
	}
	if scope != "memory" && scope != "all" {
		http.Error(w, "Invalid scope", http.StatusBadRequest)
		return
	}

	err := h.do(r.Context(), func(c *osm_client.Client, _ *map_renderer.Map) {
		if scope == "all" {
			c.ClearCache()
		} else {
			c.ClearCacheMemory()
		}
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}

	h.logger.Info("Tile cache cleared", zap.String("scope", scope))
	h.writeJSON(w, map[string]interface{}{"cleared": scope})
}

// authorize checks the write token when one is configured. The token comes
// from a bearer header or the token query parameter.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.config.IsWritePublic() {
		return true
	}

	token := ""
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	want := strings.TrimSpace(h.config.WriteToken)
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func (h *Handlers) do(ctx context.Context, fn session.Func) error {
	ctx, cancel := context.WithTimeout(ctx, sessionTimeout)
	defer cancel()
	return h.session.Do(ctx, fn)
}

func (h *Handlers) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrClosed) {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	h.logger.Warn("Session call failed", zap.Error(err))
	http.Error(w, "Session busy", http.StatusServiceUnavailable)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack is needed for the websocket upgrade behind the logging middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}
