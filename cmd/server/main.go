package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"osmview/internal/config"
	"osmview/internal/enu"
	"osmview/internal/events"
	httphandlers "osmview/internal/http"
	"osmview/internal/logger"
	"osmview/internal/map_renderer"
	"osmview/internal/model"
	"osmview/internal/osm_client"
	"osmview/internal/session"
	"osmview/internal/tilemath"
)

const warmupPoll = 100 * time.Millisecond

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.VipsMaxCacheMB),
		zap.Int("concurrency", cfg.VipsConcurrency),
	)

	log.Info("Starting osmview server",
		zap.Int("port", cfg.Port),
		zap.String("tile_server", cfg.TileServer),
		zap.String("cache_dir", cfg.CacheDir),
	)

	client, err := osm_client.New(osm_client.Options{
		MaxMemoryTiles:      cfg.CacheMemoryTiles,
		MaxDownloadingTiles: cfg.MaxDownloadingTiles,
		CachePolicy:         cfg.CachePolicy,
		UserAgent:           cfg.UserAgent,
		Timeout:             cfg.DownloadTimeout,
	}, nil, log)
	if err != nil {
		log.Fatal("Failed to initialize tile client", zap.Error(err))
	}
	defer client.Close()

	if !client.SetTileServer(cfg.TileServer) {
		log.Fatal("Invalid tile server", zap.String("tile_server", cfg.TileServer))
	}
	if cfg.CacheDir != "" && !client.SetCacheDirectory(cfg.CacheDir) {
		log.Warn("Disk cache disabled", zap.String("cache_dir", cfg.CacheDir))
	}

	hub := events.NewHub(log)
	client.Subscribe(hub)

	ref := enu.LLH{Lat: cfg.RefLat, Lon: cfg.RefLon, Height: cfg.RefHeight}
	m := map_renderer.New(client, ref, log)
	m.SetOsmMaxZoom(cfg.OsmMaxZoom)
	m.SetOsmRes(cfg.OsmRes)
	m.SetDrawGrid(cfg.DrawGrid)
	m.SetHooks(mapHooks(hub))

	sess := session.New(client, m, log)
	handlers := httphandlers.New(cfg, log, sess, hub)

	mux := http.NewServeMux()
	handlers.Register(mux)

	handler := handlers.CORSMiddleware(handlers.RequestLoggingMiddleware(mux))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	log.Info("Server started", zap.Int("port", cfg.Port))

	if cfg.WarmupZoom > 0 {
		go warmupTiles(gctx, cfg, sess, log)
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return
	}

	log.Info("Server stopped")
}

// mapHooks forwards map editing notifications to event subscribers.
func mapHooks(hub *events.Hub) map_renderer.Hooks {
	return map_renderer.Hooks{
		PosSet: func(id int, pos model.LocPoint) {
			hub.Publish("pos_set", events.PosPayload{ID: id, Point: pos})
		},
		RoutePointAdded: func(pos model.LocPoint) {
			hub.Publish("route_point_added", events.PosPayload{Point: pos})
		},
		LastRoutePointRemoved: func(pos model.LocPoint) {
			hub.Publish("route_point_removed", events.PosPayload{Point: pos})
		},
		InfoPointClicked: func(info model.LocPoint) {
			hub.Publish("info_point_clicked", events.PosPayload{Point: info})
		},
	}
}

// warmupTiles downloads the tiles within WarmupRadius of the reference tile
// for zoom levels 0 through WarmupZoom.
func warmupTiles(ctx context.Context, cfg *config.Config, sess *session.Session, log *zap.Logger) {
	maxZoom := cfg.WarmupZoom
	if maxZoom > cfg.OsmMaxZoom {
		maxZoom = cfg.OsmMaxZoom
	}

	log.Info("Starting tile warmup", zap.Int("zoom", maxZoom), zap.Int("radius", cfg.WarmupRadius))

	workerLimit := cfg.WarmupWorkers
	if workerLimit <= 0 {
		workerLimit = 1
	}

	workerChan := make(chan struct{}, workerLimit)
	var wg sync.WaitGroup

	for z := 0; z <= maxZoom; z++ {
		cx := tilemath.LongitudeToTileX(cfg.RefLon, z)
		cy := tilemath.LatitudeToTileY(cfg.RefLat, z)

		for x := cx - cfg.WarmupRadius; x <= cx+cfg.WarmupRadius; x++ {
			for y := cy - cfg.WarmupRadius; y <= cy+cfg.WarmupRadius; y++ {
				if !tilemath.InRange(z, x, y) {
					continue
				}

				select {
				case workerChan <- struct{}{}:
				case <-ctx.Done():
					wg.Wait()
					return
				}
				wg.Add(1)

				go func(zoom, tileX, tileY int) {
					defer wg.Done()
					defer func() { <-workerChan }()

					if err := warmupTile(ctx, sess, zoom, tileX, tileY); err != nil {
						log.Debug("Warmup tile failed", zap.Int("z", zoom), zap.Int("x", tileX), zap.Int("y", tileY), zap.Error(err))
					}
				}(z, x, y)
			}
		}
	}

	wg.Wait()
	log.Info("Tile warmup completed")
}

var errWarmupFailed = errors.New("download failed")

// warmupTile polls the session until the tile is cached or has failed,
// starting the download whenever a slot is free.
func warmupTile(ctx context.Context, sess *session.Session, z, x, y int) error {
	ticker := time.NewTicker(warmupPoll)
	defer ticker.Stop()

	for {
		var done bool
		var failed bool
		err := sess.Do(ctx, func(c *osm_client.Client, _ *map_renderer.Map) {
			if _, status := c.GetTile(z, x, y); status != osm_client.Miss {
				done = true
				return
			}
			switch c.State(z, x, y) {
			case osm_client.Errored:
				failed = true
			case osm_client.Downloading:
			default:
				if !c.DownloadQueueFull() {
					c.StartDownload(z, x, y)
				}
			}
		})
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if failed {
			return errWarmupFailed
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
