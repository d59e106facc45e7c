package tile

import (
	"fmt"
	"image"

	"osmview/internal/tilemath"
)

// MaxZoom is the deepest zoom level whose indices fit the packed form.
const MaxZoom = 25

const (
	xShift = 25
	zShift = 50
	mask25 = 1<<25 - 1
)

// Key identifies a tile in the slippy-map grid.
type Key struct {
	Zoom int
	X    int
	Y    int
}

func NewKey(zoom, x, y int) Key {
	return Key{Zoom: zoom, X: x, Y: y}
}

// Pack returns the 64-bit form zoom<<50 | x<<25 | y.
func (k Key) Pack() uint64 {
	return uint64(k.Zoom)<<zShift | uint64(k.X)<<xShift | uint64(k.Y)
}

func Unpack(v uint64) Key {
	return Key{
		Zoom: int(v >> zShift),
		X:    int(v >> xShift & mask25),
		Y:    int(v & mask25),
	}
}

// Valid reports whether the key addresses a tile inside the map.
func (k Key) Valid() bool {
	return k.Zoom >= 0 && k.Zoom <= MaxZoom && tilemath.InRange(k.Zoom, k.X, k.Y)
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Zoom, k.X, k.Y)
}

// Tile is an immutable raster bound to its key. A real tile has Placeholder
// set to None; status tiles carry one of the shared placeholder images.
type Tile struct {
	Key         Key
	Image       image.Image
	Placeholder Placeholder
}

func New(key Key, img image.Image) Tile {
	return Tile{Key: key, Image: img}
}

// Equal compares keys only.
func (t Tile) Equal(o Tile) bool {
	return t.Key == o.Key
}

// Loaded reports whether the tile holds real map content.
func (t Tile) Loaded() bool {
	return t.Image != nil && t.Placeholder == None
}

// WidthTop is the ground width in meters along the northern edge.
func (t Tile) WidthTop() float64 {
	lat := tilemath.TileYToLatitude(t.Key.Y, t.Key.Zoom)
	return tilemath.TileGroundWidthMeters(lat, t.Key.Zoom)
}

// WidthBottom is the ground width in meters along the southern edge.
func (t Tile) WidthBottom() float64 {
	lat := tilemath.TileYToLatitude(t.Key.Y+1, t.Key.Zoom)
	return tilemath.TileGroundWidthMeters(lat, t.Key.Zoom)
}
