package compose

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtiler/tiles"
)

var (
	red   = color.NRGBA{255, 0, 0, 255}
	green = color.NRGBA{0, 255, 0, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
	white = color.NRGBA{255, 255, 255, 255}
)

func solid(c color.NRGBA) *image.NRGBA {
	return imaging.New(tiles.TileSize, tiles.TileSize, c)
}

// halfTile is opaque on the left half only
func halfTile(c color.NRGBA) *image.NRGBA {
	img := Transparent()
	for y := 0; y < tiles.TileSize; y++ {
		for x := 0; x < tiles.TileSize/2; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestFromLayersLaterLayerWins(t *testing.T) {
	a := solid(red)
	b := halfTile(blue)

	out := FromLayers([]image.Image{a, b})
	assert.Equal(t, blue, out.NRGBAAt(10, 10), "B is opaque here")
	assert.Equal(t, red, out.NRGBAAt(200, 10), "B is transparent here")

	out = FromLayers([]image.Image{b, a})
	assert.Equal(t, red, out.NRGBAAt(10, 10))
}

func TestFromLayersEmpty(t *testing.T) {
	out := FromLayers(nil)
	assert.Equal(t, image.Rect(0, 0, 256, 256), out.Bounds())
	assert.Equal(t, uint8(0), out.NRGBAAt(128, 128).A)
}

func TestFromChildrenTopOrigin(t *testing.T) {
	children := [4]image.Image{solid(red), solid(green), solid(blue), solid(white)}
	out := FromChildren(children, tiles.TopLeft, tiles.Near)
	require.Equal(t, image.Rect(0, 0, 256, 256), out.Bounds())
	assert.Equal(t, red, out.NRGBAAt(10, 10))
	assert.Equal(t, green, out.NRGBAAt(200, 10))
	assert.Equal(t, blue, out.NRGBAAt(10, 200))
	assert.Equal(t, white, out.NRGBAAt(200, 200))
}

func TestFromChildrenBottomOrigin(t *testing.T) {
	children := [4]image.Image{solid(red), solid(green), solid(blue), solid(white)}
	out := FromChildren(children, tiles.BottomLeft, tiles.Near)
	assert.Equal(t, blue, out.NRGBAAt(10, 10))
	assert.Equal(t, white, out.NRGBAAt(200, 10))
	assert.Equal(t, red, out.NRGBAAt(10, 200))
	assert.Equal(t, green, out.NRGBAAt(200, 200))
}

func TestFromChildrenMissingQuadrantIsTransparent(t *testing.T) {
	children := [4]image.Image{solid(red), nil, Transparent(), solid(white)}
	out := FromChildren(children, tiles.TopLeft, tiles.Average)
	assert.Equal(t, uint8(0), out.NRGBAAt(200, 10).A)
	assert.Equal(t, uint8(0), out.NRGBAAt(10, 200).A)
	assert.Equal(t, red, out.NRGBAAt(10, 10))
}

func TestDownsampleStatistics(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{10, 10, 10, 255})
	src.SetNRGBA(1, 0, color.NRGBA{20, 20, 20, 255})
	src.SetNRGBA(0, 1, color.NRGBA{20, 20, 20, 255})
	src.SetNRGBA(1, 1, color.NRGBA{90, 90, 90, 255})

	cases := map[tiles.Resampling]uint8{
		tiles.Min:  10,
		tiles.Max:  90,
		tiles.Med:  20,
		tiles.Mode: 20,
		tiles.Q1:   10,
		tiles.Q3:   20,
	}
	for m, want := range cases {
		out := Downsample(src, 1, m)
		assert.Equal(t, want, out.NRGBAAt(0, 0).R, string(m))
		assert.Equal(t, uint8(255), out.NRGBAAt(0, 0).A, string(m))
	}
}

func TestDownsampleIgnoresTransparentPixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(1, 1, color.NRGBA{50, 60, 70, 255})
	out := Downsample(src, 1, tiles.Min)
	assert.Equal(t, color.NRGBA{50, 60, 70, 255}, out.NRGBAAt(0, 0))

	out = Downsample(image.NewNRGBA(image.Rect(0, 0, 2, 2)), 1, tiles.Max)
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(0, 0))
}

func TestFilterMapping(t *testing.T) {
	assert.Equal(t, imaging.Lanczos.Support, Filter(tiles.Lanczos).Support)
	assert.Equal(t, imaging.NearestNeighbor.Support, Filter(tiles.Near).Support)
	assert.Equal(t, imaging.CatmullRom.Support, Filter(tiles.Cubic).Support)
	assert.Equal(t, imaging.Box.Support, Filter(tiles.Average).Support)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "3", "2", "1.png")
	assert.False(t, Exists(path))

	require.NoError(t, Save(path, halfTile(green)))
	assert.True(t, Exists(path))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), img.Bounds())
	r, g, _, a := img.At(5, 5).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), a)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")

	require.NoError(t, Remove(path, path+".missing"))
	assert.False(t, Exists(path))
}

func TestCheckTarget(t *testing.T) {
	assert.NoError(t, CheckTarget("/data/1/2/3.png", tiles.Antialias))
	assert.ErrorIs(t, CheckTarget("/vsimem/1/2/3.png", tiles.Antialias), ErrUnsupportedOutputTarget)
	assert.ErrorIs(t, Save("/vsimem/a.png", Transparent()), ErrUnsupportedOutputTarget)
}
