package tile

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Placeholder selects a status image for a tile without content.
type Placeholder int

const (
	None Placeholder = iota
	Downloading
	Queued
	Error
	OutOfMap
)

func (p Placeholder) String() string {
	switch p {
	case Downloading:
		return "downloading"
	case Queued:
		return "queued"
	case Error:
		return "error"
	case OutOfMap:
		return "out_of_map"
	default:
		return "none"
	}
}

// PlaceholderSize is the edge length of the status images.
const PlaceholderSize = 256

// Placeholders holds one pre-rendered image per status.
type Placeholders struct {
	images map[Placeholder]image.Image
}

func NewPlaceholders() *Placeholders {
	green := color.RGBA{0, 255, 0, 255}
	yellow := color.RGBA{255, 255, 0, 255}
	red := color.RGBA{255, 0, 0, 255}

	return &Placeholders{
		images: map[Placeholder]image.Image{
			Downloading: drawPlaceholder(color.RGBA{200, 255, 200, 255}, green, "Downloading tile..."),
			Queued:      drawPlaceholder(color.RGBA{255, 255, 200, 255}, yellow, "Waiting for other downloads..."),
			Error:       drawPlaceholder(color.RGBA{255, 200, 200, 255}, red, "Download error"),
			OutOfMap:    drawPlaceholder(color.RGBA{255, 200, 200, 255}, red, "Tile outside of map"),
		},
	}
}

func (p *Placeholders) Image(kind Placeholder) image.Image {
	return p.images[kind]
}

// Tile returns a status tile for key.
func (p *Placeholders) Tile(key Key, kind Placeholder) Tile {
	return Tile{Key: key, Image: p.images[kind], Placeholder: kind}
}

func drawPlaceholder(fill, border color.Color, text string) image.Image {
	const s = PlaceholderSize

	dc := gg.NewContext(s, s)
	dc.SetColor(color.White)
	dc.Clear()

	dc.DrawRectangle(3, 3, s-6, s-6)
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetColor(border)
	dc.SetLineWidth(3)
	dc.Stroke()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(color.Black)
	dc.DrawStringWrapped(text, s/2, s/2, 0.5, 0.5, s-40, 1.5, gg.AlignCenter)

	return dc.Image()
}
