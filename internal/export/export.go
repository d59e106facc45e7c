// Package export encodes rendered map images. PNG without resampling stays in
// Go; JPEG output and downscaling go through libvips.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/cshum/vipsgen/vips"
)

type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"

	DefaultQuality = 82
)

// ParseFormat accepts png, jpg and jpeg in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

type Options struct {
	Format Format
	// Quality is the JPEG quality, DefaultQuality when zero.
	Quality int
	// Scale below 1 downsamples with a Lanczos3 kernel, used to supersample
	// a render made at 1/Scale of the requested size.
	Scale float64
}

// Encode serializes img according to opts.
func Encode(img image.Image, opts Options) ([]byte, error) {
	if opts.Format == "" {
		opts.Format = PNG
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	resize := opts.Scale > 0 && opts.Scale < 1
	if opts.Format == PNG && !resize {
		return buf.Bytes(), nil
	}

	vimg, err := vips.NewPngloadBuffer(buf.Bytes(), vips.DefaultPngloadBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load image into vips: %w", err)
	}
	defer vimg.Close()

	if resize {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := vimg.Resize(opts.Scale, resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	if opts.Format == PNG {
		data, err := vimg.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to export: %w", err)
		}
		return data, nil
	}

	// Areas without tiles are transparent; JPEG gets the placeholder gray.
	if vimg.HasAlpha() {
		flattenOpts := vips.DefaultFlattenOptions()
		flattenOpts.Background = []float64{221, 221, 221} // #ddd
		if err := vimg.Flatten(flattenOpts); err != nil {
			return nil, fmt.Errorf("failed to flatten: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = opts.Quality
	jpegOpts.Interlace = false

	data, err := vimg.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	return data, nil
}
