// Command prefetch fills the tile cache for an area ahead of time, optionally
// packing the tiles into an MBTiles archive and saving a snapshot of the map.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"osmview/internal/config"
	"osmview/internal/enu"
	"osmview/internal/logger"
	"osmview/internal/map_renderer"
	"osmview/internal/mbtiles"
	"osmview/internal/osm_client"
)

const snapshotPasses = 8

type options struct {
	bbox     string
	geojson  string
	minZoom  int
	maxZoom  int
	server   string
	cacheDir string
	output   string
	name     string
	snapshot string
	width    int
	height   int
	logLevel string
}

func main() {
	cfg := config.Load()

	var opts options
	flag.StringVar(&opts.bbox, "bbox", "", "area as `minLon,minLat,maxLon,maxLat`")
	flag.StringVar(&opts.geojson, "geojson", "", "GeoJSON feature collection `file` whose extent is fetched")
	flag.IntVar(&opts.minZoom, "minzoom", 0, "first zoom level")
	flag.IntVar(&opts.maxZoom, "maxzoom", 14, "last zoom level")
	flag.StringVar(&opts.server, "server", cfg.TileServer, "tile server base URL")
	flag.StringVar(&opts.cacheDir, "cache", cfg.CacheDir, "tile cache `directory`")
	flag.StringVar(&opts.output, "mbtiles", "", "write the tiles to this MBTiles `file`")
	flag.StringVar(&opts.name, "name", "osmview", "MBTiles name")
	flag.StringVar(&opts.snapshot, "snapshot", "", "save a PNG of the whole area to this `file`")
	flag.IntVar(&opts.width, "width", 1600, "snapshot width")
	flag.IntVar(&opts.height, "height", 1200, "snapshot height")
	flag.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	log, err := logger.New(opts.logLevel, "console")
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("Prefetch failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *zap.Logger) error {
	var (
		bound orb.Bound
		err   error
	)
	switch {
	case opts.geojson != "":
		bound, err = loadBound(opts.geojson)
	case opts.bbox != "":
		bound, err = parseBBox(opts.bbox)
	default:
		err = fmt.Errorf("one of -bbox or -geojson is required")
	}
	if err != nil {
		return err
	}

	if opts.minZoom < 0 || opts.maxZoom < opts.minZoom || opts.maxZoom > cfg.OsmMaxZoom {
		return fmt.Errorf("invalid zoom range %d..%d", opts.minZoom, opts.maxZoom)
	}

	client, err := osm_client.New(osm_client.Options{
		MaxMemoryTiles:      cfg.CacheMemoryTiles,
		MaxDownloadingTiles: cfg.MaxDownloadingTiles,
		CachePolicy:         cfg.CachePolicy,
		UserAgent:           cfg.UserAgent,
		Timeout:             cfg.DownloadTimeout,
	}, nil, log)
	if err != nil {
		return err
	}
	defer client.Close()

	if !client.SetTileServer(opts.server) {
		return fmt.Errorf("invalid tile server %q", opts.server)
	}
	if opts.cacheDir != "" && !client.SetCacheDirectory(opts.cacheDir) {
		log.Warn("Disk cache disabled", zap.String("cache_dir", opts.cacheDir))
	}

	var archive *mbtiles.Writer
	if opts.output != "" {
		archive, err = mbtiles.Create(opts.output, mbtiles.Metadata{
			Name:        opts.name,
			Attribution: "© OpenStreetMap contributors",
			Bounds:      bound,
			MinZoom:     maptile.Zoom(opts.minZoom),
			MaxZoom:     maptile.Zoom(opts.maxZoom),
		})
		if err != nil {
			return err
		}
		defer archive.Close()
	}

	jobs := planJobs(bound, opts.minZoom, opts.maxZoom)
	log.Info("Starting prefetch",
		zap.String("server", opts.server),
		zap.Int("min_zoom", opts.minZoom),
		zap.Int("max_zoom", opts.maxZoom),
		zap.Int("tiles", len(jobs)),
	)

	p := newPrefetcher(client, archive, log)
	bar := progressbar.Default(int64(len(jobs)), "Downloading tiles")
	if err := p.run(ctx, jobs, bar); err != nil {
		return err
	}
	_ = bar.Finish()

	stats := client.Stats()
	log.Info("Prefetch completed",
		zap.Int("downloaded", stats.TilesDownloaded),
		zap.Int("from_disk", stats.HddTilesLoaded),
		zap.Int("from_memory", stats.RamTilesLoaded),
		zap.Int("errored", stats.Errored),
	)

	if archive != nil {
		if n, err := archive.Count(); err == nil {
			log.Info("MBTiles written", zap.String("path", opts.output), zap.Int("tiles", n))
		}
	}

	if opts.snapshot == "" {
		return nil
	}

	// Snapshot tiles come from whatever zoom fits the image, so they stay
	// out of the archive.
	p.archiving = false
	return snapshot(ctx, p, cfg, bound, opts, log)
}

// snapshot renders the bound until every visible tile is cached, then saves
// the map as PNG.
func snapshot(ctx context.Context, p *prefetcher, cfg *config.Config, b orb.Bound, opts options, log *zap.Logger) error {
	center := b.Center()
	m := map_renderer.New(p.client, enu.LLH{Lat: center.Lat(), Lon: center.Lon()}, log)
	m.SetSize(opts.width, opts.height)
	m.SetOsmMaxZoom(cfg.OsmMaxZoom)
	m.SetOsmRes(cfg.OsmRes)
	m.SetDrawGrid(false)
	m.ZoomInOnBound(b, 0.05)

	for i := 0; i < snapshotPasses; i++ {
		m.Render(opts.width, opts.height, true)
		if p.client.Stats().Downloading == 0 {
			break
		}
		if err := p.drain(ctx); err != nil {
			return err
		}
	}

	return m.PrintPNG(opts.snapshot, opts.width, opts.height)
}
