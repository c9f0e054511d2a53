package tiles

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//TileSize 瓦片像素大小
const TileSize = 256

//MaxZoom deepest zoom the pyramid is addressed at
const MaxZoom = 30

//Coord logical tile address, top-left quadtree
type Coord struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

//Children returns the four tiles at Z+1 covering c:
//(2x,2y), (2x+1,2y), (2x,2y+1), (2x+1,2y+1).
func (c Coord) Children() [4]Coord {
	x, y, z := c.X<<1, c.Y<<1, c.Z+1
	return [4]Coord{
		{Z: z, X: x, Y: y},
		{Z: z, X: x + 1, Y: y},
		{Z: z, X: x, Y: y + 1},
		{Z: z, X: x + 1, Y: y + 1},
	}
}

//Parent returns the tile at Z-1 containing c, false at the root.
func (c Coord) Parent() (Coord, bool) {
	if c.Z <= 0 {
		return c, false
	}
	return Coord{Z: c.Z - 1, X: c.X >> 1, Y: c.Y >> 1}, true
}

//Tile converts c to an orb maptile, which is always top-origin.
func (c Coord) Tile(o Origin) maptile.Tile {
	y := c.Y
	if o.BottomOrigin() {
		y = flipY(c.Z, c.Y)
	}
	return maptile.New(uint32(c.X), uint32(y), maptile.Zoom(c.Z))
}

//Bound lon/lat bound of the tile
func (c Coord) Bound(o Origin) orb.Bound {
	return c.Tile(o).Bound()
}

func flipY(z, y int) int {
	return (1 << uint(z)) - 1 - y
}

//Origin which corner is tile (0,0)
type Origin string

// Origin conventions
const (
	TopLeft     Origin = "TOP_LEFT"
	TopRight    Origin = "TOP_RIGHT"
	BottomLeft  Origin = "BOTTOM_LEFT"
	BottomRight Origin = "BOTTOM_RIGHT"
)

//ParseOrigin defaults to TOP_LEFT for an empty name
func ParseOrigin(s string) (Origin, error) {
	switch o := Origin(strings.ToUpper(strings.TrimSpace(s))); o {
	case "":
		return TopLeft, nil
	case TopLeft, TopRight, BottomLeft, BottomRight:
		return o, nil
	}
	return "", fmt.Errorf("unknown origin %q", s)
}

//BottomOrigin reports whether y already counts from the bottom, as TMS does.
func (o Origin) BottomOrigin() bool {
	return o == BottomLeft || o == BottomRight
}

//ToLibrary maps a logical coordinate to the bottom-origin (TMS) scheme
//used by the raster layer.
func ToLibrary(c Coord, o Origin) (z, x, y int) {
	if o.BottomOrigin() {
		return c.Z, c.X, c.Y
	}
	return c.Z, c.X, flipY(c.Z, c.Y)
}
