package http

import (
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"osmview/internal/export"
	"osmview/internal/map_renderer"
	"osmview/internal/osm_client"
)

const (
	maxRenderSize  = 4096
	maxSupersample = 4
)

type renderParams struct {
	width, height int
	supersample   int
	quality       int
	highQuality   bool

	scale, rotation *float64
	lat, lon        *float64
	grid, stats     *bool
}

// parseRenderParams leaves width and height at zero when not given.
func parseRenderParams(q url.Values) (renderParams, error) {
	p := renderParams{supersample: 1}

	ints := []struct {
		name     string
		dst      *int
		min, max int
	}{
		{"w", &p.width, 1, maxRenderSize},
		{"h", &p.height, 1, maxRenderSize},
		{"ss", &p.supersample, 1, maxSupersample},
		{"q", &p.quality, 1, 100},
	}
	for _, f := range ints {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < f.min || n > f.max {
			return p, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", f.name, f.min, f.max)
		}
		*f.dst = n
	}

	floats := []struct {
		name string
		dst  **float64
	}{
		{"scale", &p.scale},
		{"rotation", &p.rotation},
		{"lat", &p.lat},
		{"lon", &p.lon},
	}
	for _, f := range floats {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = &x
	}
	if (p.lat == nil) != (p.lon == nil) {
		return p, fmt.Errorf("lat and lon must be given together")
	}
	if p.scale != nil && !(*p.scale > 0) {
		return p, fmt.Errorf("invalid scale: must be positive")
	}

	bools := []struct {
		name string
		dst  **bool
	}{
		{"grid", &p.grid},
		{"stats", &p.stats},
	}
	for _, f := range bools {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = &b
	}

	if v := q.Get("hq"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid hq: %w", err)
		}
		p.highQuality = b
	}

	return p, nil
}

// HandleMap renders the current map, optionally with a different view, as
// PNG or JPEG depending on the path. The session's own view is restored
// after the render.
func (h *Handlers) HandleMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ext := r.URL.Path[strings.LastIndex(r.URL.Path, "."):]
	format, err := export.ParseFormat(ext)
	if err != nil {
		http.Error(w, "Invalid format", http.StatusBadRequest)
		return
	}

	p, err := parseRenderParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var img image.Image
	err = h.do(r.Context(), func(_ *osm_client.Client, m *map_renderer.Map) {
		width, height := m.Size()
		if p.width > 0 {
			width = p.width
		}
		if p.height > 0 {
			height = p.height
		}

		saved := m.ViewState()
		defer m.SetViewState(saved)

		v := saved
		if p.scale != nil {
			v.Scale = *p.scale
			v.XOffset *= *p.scale / saved.Scale
			v.YOffset *= *p.scale / saved.Scale
		}
		if p.rotation != nil {
			v.Rotation = *p.rotation
		}
		if p.grid != nil {
			v.DrawGrid = *p.grid
		}
		if p.stats != nil {
			v.DrawOsmStats = *p.stats
		}

		ss := float64(p.supersample)
		v.Scale *= ss
		v.XOffset *= ss
		v.YOffset *= ss
		m.SetViewState(v)

		if p.lat != nil {
			m.MoveViewLLH(*p.lat, *p.lon)
		}

		img = m.Render(width*p.supersample, height*p.supersample, p.highQuality)
	})
	if err != nil {
		h.sessionError(w, err)
		return
	}

	opts := export.Options{Format: format, Quality: p.quality}
	if p.supersample > 1 {
		opts.Scale = 1.0 / float64(p.supersample)
	}

	data, err := export.Encode(img, opts)
	if err != nil {
		h.logger.Error("Failed to encode map", zap.String("format", string(format)), zap.Error(err))
		http.Error(w, "Failed to encode map", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
