// Package tilemath converts between geographic coordinates and Web-Mercator
// slippy-map tile indices.
package tilemath

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthCircumferenceRes is the ground resolution in meters per pixel at the
// equator for zoom 0 and 256px tiles.
const EarthCircumferenceRes = 156543.03392

// TileSizePx is the nominal edge length of a tile in pixels.
const TileSizePx = 256

// MaxLatitude is the northern limit of the Web-Mercator tile grid.
const MaxLatitude = 85.0511287798

func LongitudeToTileX(lon float64, zoom int) int {
	return int(math.Floor((lon + 180.0) / 360.0 * math.Pow(2.0, float64(zoom))))
}

func LatitudeToTileY(lat float64, zoom int) int {
	rad := lat * math.Pi / 180.0
	return int(math.Floor((1.0 - math.Log(math.Tan(rad)+1.0/math.Cos(rad))/math.Pi) /
		2.0 * math.Pow(2.0, float64(zoom))))
}

// TileXToLongitude returns the longitude of the western edge of column x.
func TileXToLongitude(x, zoom int) float64 {
	return float64(x)/math.Pow(2.0, float64(zoom))*360.0 - 180.0
}

// TileYToLatitude returns the latitude of the northern edge of row y.
func TileYToLatitude(y, zoom int) float64 {
	n := math.Pi - 2.0*math.Pi*float64(y)/math.Pow(2.0, float64(zoom))
	return 180.0 / math.Pi * math.Atan(0.5*(math.Exp(n)-math.Exp(-n)))
}

// TileGroundWidthMeters is the ground width covered by one tile at the given
// latitude and zoom.
func TileGroundWidthMeters(lat float64, zoom int) float64 {
	return EarthCircumferenceRes * math.Cos(lat*math.Pi/180.0) /
		math.Pow(2.0, float64(zoom)) * TileSizePx
}

// TileCount is the number of tiles per axis at zoom.
func TileCount(zoom int) int {
	return 1 << uint(zoom)
}

// InRange reports whether x and y are valid indices at zoom.
func InRange(zoom, x, y int) bool {
	n := TileCount(zoom)
	return x >= 0 && x < n && y >= 0 && y < n
}

// TileBound returns the geographic extent of a tile. Min is the south-west
// corner and Max the north-east corner, both as (lon, lat).
func TileBound(zoom, x, y int) orb.Bound {
	return orb.Bound{
		Min: orb.Point{TileXToLongitude(x, zoom), TileYToLatitude(y+1, zoom)},
		Max: orb.Point{TileXToLongitude(x+1, zoom), TileYToLatitude(y, zoom)},
	}
}

// TileRange returns the inclusive tile index range covering b at zoom,
// clamped to the valid tile grid.
func TileRange(b orb.Bound, zoom int) (minX, minY, maxX, maxY int) {
	minX = LongitudeToTileX(b.Min.Lon(), zoom)
	maxX = LongitudeToTileX(b.Max.Lon(), zoom)
	minY = LatitudeToTileY(math.Min(b.Max.Lat(), MaxLatitude), zoom)
	maxY = LatitudeToTileY(math.Max(b.Min.Lat(), -MaxLatitude), zoom)

	last := TileCount(zoom) - 1
	minX, maxX = clamp(minX, 0, last), clamp(maxX, 0, last)
	minY, maxY = clamp(minY, 0, last), clamp(maxY, 0, last)
	return minX, minY, maxX, maxY
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
