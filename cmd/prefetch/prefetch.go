package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"osmview/internal/export"
	"osmview/internal/mbtiles"
	"osmview/internal/osm_client"
	"osmview/internal/tile"
	"osmview/internal/tilemath"
)

const batchSize = 256

type job struct {
	z, x, y int
}

// parseBBox reads "minLon,minLat,maxLon,maxLat".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: want minLon,minLat,maxLon,maxLat", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		v[i] = f
	}

	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min.Lon() > b.Max.Lon() || b.Min.Lat() > b.Max.Lat() {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: min exceeds max", s)
	}
	return b, nil
}

// loadBound returns the extent of every feature in a GeoJSON feature
// collection.
func loadBound(path string) (orb.Bound, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("unable to read file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("unable to unmarshal features: %w", err)
	}

	var collection orb.Collection
	for _, f := range fc.Features {
		if f.Geometry != nil {
			collection = append(collection, f.Geometry)
		}
	}
	if len(collection) == 0 {
		return orb.Bound{}, errors.New("no geometries in " + path)
	}

	return collection.Bound(), nil
}

// planJobs lists every tile covering b from minZoom to maxZoom, zoom by zoom.
func planJobs(b orb.Bound, minZoom, maxZoom int) []job {
	var jobs []job
	for z := minZoom; z <= maxZoom; z++ {
		minX, minY, maxX, maxY := tilemath.TileRange(b, z)
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				jobs = append(jobs, job{z: z, x: x, y: y})
			}
		}
	}
	return jobs
}

// prefetcher drives a Client from a single goroutine, optionally copying
// every tile it sees into an MBTiles archive.
type prefetcher struct {
	client  *osm_client.Client
	archive *mbtiles.Writer
	batch   []mbtiles.Tile
	logger  *zap.Logger

	archiving bool
	storeErr  error
}

func newPrefetcher(client *osm_client.Client, archive *mbtiles.Writer, logger *zap.Logger) *prefetcher {
	p := &prefetcher{
		client:    client,
		archive:   archive,
		logger:    logger,
		archiving: archive != nil,
	}
	client.Subscribe(osm_client.ListenerFuncs{OnTileReady: p.store})
	return p
}

func (p *prefetcher) store(t tile.Tile) {
	if !p.archiving || p.storeErr != nil {
		return
	}

	data, err := export.Encode(t.Image, export.Options{Format: export.PNG})
	if err != nil {
		p.logger.Warn("Failed to encode tile", zap.Stringer("tile", t.Key), zap.Error(err))
		return
	}

	p.batch = append(p.batch, mbtiles.Tile{
		T:    maptile.New(uint32(t.Key.X), uint32(t.Key.Y), maptile.Zoom(t.Key.Zoom)),
		Data: data,
	})
	if len(p.batch) >= batchSize {
		p.flush()
	}
}

func (p *prefetcher) flush() {
	if p.archive == nil || len(p.batch) == 0 {
		return
	}
	if err := p.archive.WriteBatch(p.batch); err != nil {
		p.storeErr = err
	}
	p.batch = p.batch[:0]
}

// run fetches every job. Cached tiles are only archived; the rest are
// downloaded with at most MaxDownloadingTiles in flight.
func (p *prefetcher) run(ctx context.Context, jobs []job, bar *progressbar.ProgressBar) error {
	for _, j := range jobs {
		if t, status := p.client.GetTile(j.z, j.x, j.y); status == osm_client.MemoryHit || status == osm_client.DiskHit {
			p.store(t)
			_ = bar.Add(1)
			continue
		}

		for p.client.DownloadQueueFull() {
			if err := p.client.WaitOne(ctx); err != nil {
				return err
			}
		}

		if res := p.client.StartDownload(j.z, j.x, j.y); res == osm_client.ServerNotSet {
			return errors.New("tile server not set")
		}
		p.client.Update()
		_ = bar.Add(1)

		if p.storeErr != nil {
			return fmt.Errorf("failed to write archive: %w", p.storeErr)
		}
	}

	if err := p.drain(ctx); err != nil {
		return err
	}

	p.flush()
	if p.storeErr != nil {
		return fmt.Errorf("failed to write archive: %w", p.storeErr)
	}
	return nil
}

// drain waits for every in-flight download.
func (p *prefetcher) drain(ctx context.Context) error {
	for p.client.Stats().Downloading > 0 {
		if err := p.client.WaitOne(ctx); err != nil {
			return err
		}
	}
	return nil
}
