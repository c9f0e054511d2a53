package raster

import (
	"math"

	"github.com/paulmach/orb"

	"rtiler/tiles"
)

// Spherical mercator (EPSG:3857) tiling in the TMS layout: tile rows count
// from the bottom, tile (0,0) at zoom 0 covers the whole world.
const (
	earthRadius = 6378137.0
	// OriginShift half the world width in metres
	OriginShift = math.Pi * earthRadius
	initialResolution = 2 * math.Pi * earthRadius / tiles.TileSize
)

//Resolution metres per pixel at zoom z
func Resolution(z int) float64 {
	return initialResolution / math.Exp2(float64(z))
}

//MetersToTile TMS tile containing the point, not clamped to the world
func MetersToTile(mx, my float64, z int) (tx, ty int) {
	res := Resolution(z)
	px := (mx + OriginShift) / res
	py := (my + OriginShift) / res
	tx = int(math.Ceil(px/float64(tiles.TileSize))) - 1
	ty = int(math.Ceil(py/float64(tiles.TileSize))) - 1
	return tx, ty
}

//TileBounds bounds of TMS tile (tx,ty,z) in metres
func TileBounds(tx, ty, z int) orb.Bound {
	res := Resolution(z)
	size := float64(tiles.TileSize)
	return orb.Bound{
		Min: orb.Point{float64(tx)*size*res - OriginShift, float64(ty)*size*res - OriginShift},
		Max: orb.Point{float64(tx+1)*size*res - OriginShift, float64(ty+1)*size*res - OriginShift},
	}
}

//Range valid TMS tiles of one zoom, inclusive
type Range struct {
	MinX, MinY, MaxX, MaxY int
}

//Contains reports whether TMS tile (x,y) lies in r
func (r Range) Contains(x, y int) bool {
	return r.MinX <= x && x <= r.MaxX && r.MinY <= y && y <= r.MaxY
}

//Count number of tiles in r, zero for an inverted range
func (r Range) Count() int64 {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return 0
	}
	return int64(r.MaxX-r.MinX+1) * int64(r.MaxY-r.MinY+1)
}

//RangeAt tiles covered by bound at zoom z, cropped to the world
func RangeAt(b orb.Bound, z int) Range {
	minx, miny := MetersToTile(b.Min.X(), b.Min.Y(), z)
	maxx, maxy := MetersToTile(b.Max.X(), b.Max.Y(), z)
	last := (1 << uint(z)) - 1
	return Range{
		MinX: max(0, minx),
		MinY: max(0, miny),
		MaxX: min(last, maxx),
		MaxY: min(last, maxy),
	}
}
