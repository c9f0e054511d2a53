package tiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinalPath(t *testing.T) {
	c := Coord{Z: 17, X: 84291, Y: 79455}
	assert.Equal(t, "/data/tiles/17/84291/79455.png", FinalPath("/data/tiles/", DefaultPattern, c))
	assert.Equal(t, "/data/morteza/17/x84291/79455.png", FinalPath("/data", "morteza/{z}/x{x}/{y}.png", c))
	assert.Equal(t, "17/84291/79455.png", FinalPath("", DefaultPattern, c))
}

func TestPartialPath(t *testing.T) {
	final := "/data/17/84291/79455.png"
	assert.Equal(t, "/data/17/84291/79455_east.tif.png", PartialPath(final, "east.tif"))
	assert.Equal(t, "/data/17/84291/79455_sub_west.tif.png", PartialPath(final, "sub/west.tif"))
	assert.NotEqual(t, PartialPath(final, "east.tif"), PartialPath(final, "west.tif"))
}

func TestRequestDerivation(t *testing.T) {
	r := Request{
		Coord:      Coord{Z: 1, X: 1, Y: 0},
		Sources:    []Source{{Name: "a.tif", Resampling: Average}},
		DirectZoom: 3,
		Origin:     BottomLeft,
		Dir:        "/out",
		Pattern:    DefaultPattern,
	}
	assert.Equal(t, "/out/1/1/0.png", r.TilePath())
	assert.Equal(t, "/out/1/1/0_a.tif.png", r.PartialPath(r.Sources[0]))
	assert.Equal(t, "/out/a.tif", r.RasterPath(r.Sources[0]))

	children := r.Children()
	assert.Equal(t, Coord{Z: 2, X: 3, Y: 1}, children[3].Coord)
	children[0].Sources[0].Name = "changed"
	assert.Equal(t, "a.tif", r.Sources[0].Name)
	assert.Equal(t, 3, children[2].DirectZoom)

	p, ok := r.Parent()
	assert.True(t, ok)
	assert.Equal(t, Coord{}, p.Coord)
	_, ok = p.Parent()
	assert.False(t, ok)
}
