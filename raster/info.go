package raster

//Info zoom window worth tiling for a raster and its mercator extent
type Info struct {
	MinZoom int        `json:"minZoom"`
	MaxZoom int        `json:"maxZoom"`
	BBox    [4]float64 `json:"bbox"`
}

// infoMaxZoom deepest zoom probed by Info
const infoMaxZoom = 32

//Info walks the zooms until the raster spans more than one tile, which
//gives the shallowest useful zoom, and until a tile would hold less than
//one tile of native pixels, which gives the deepest.
func (h *Handle) Info() Info {
	b := h.Bounds
	info := Info{BBox: [4]float64{b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y()}}
	for z := 1; z <= infoMaxZoom; z++ {
		sx, sy := MetersToTile(b.Min.X(), b.Min.Y(), z)
		ex, ey := MetersToTile(b.Max.X(), b.Max.Y(), z)
		difX, difY := ex-sx+1, ey-sy+1
		if difX*difY > 1 && info.MinZoom == 0 {
			info.MinZoom = max(z-1, 1)
		}
		if float64(h.Width)/float64(difX) < 256 || float64(h.Height)/float64(difY) < 256 {
			info.MaxZoom = z
			break
		}
	}
	return info
}
