// Package compose assembles tiles: it stacks per-source layers, merges four
// children into their parent, and reads and writes tile artifacts.
package compose

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"rtiler/tiles"
)

//Transparent an empty tile
func Transparent() *image.NRGBA {
	return imaging.New(tiles.TileSize, tiles.TileSize, color.NRGBA{})
}

//FromLayers draws the layers over a transparent tile in order, so a later
//layer wins wherever it is opaque.
func FromLayers(layers []image.Image) *image.NRGBA {
	canvas := Transparent()
	for _, l := range layers {
		if l == nil {
			continue
		}
		if b := l.Bounds(); b.Dx() != tiles.TileSize || b.Dy() != tiles.TileSize {
			l = imaging.Resize(l, tiles.TileSize, tiles.TileSize, imaging.Linear)
		}
		canvas = imaging.Overlay(canvas, l, image.Pt(0, 0), 1.0)
	}
	return canvas
}

//FromChildren mosaics the children of a tile, given in tiles.Coord.Children
//order, and scales the mosaic back to one tile.
func FromChildren(children [4]image.Image, o tiles.Origin, method tiles.Resampling) *image.NRGBA {
	size := 2 * tiles.TileSize
	canvas := imaging.New(size, size, color.NRGBA{})
	for i, pos := range Quadrants(o) {
		child := children[i]
		if child == nil {
			continue
		}
		canvas = imaging.Paste(canvas, child, pos)
	}
	return Downsample(canvas, tiles.TileSize, method)
}

//Quadrants top-left corner of each child on the 2x2 mosaic. Bottom-origin
//conventions count rows upwards, so the even row goes to the bottom.
func Quadrants(o tiles.Origin) [4]image.Point {
	s := tiles.TileSize
	if o.BottomOrigin() {
		return [4]image.Point{{0, s}, {s, s}, {0, 0}, {s, 0}}
	}
	return [4]image.Point{{0, 0}, {s, 0}, {0, s}, {s, s}}
}
