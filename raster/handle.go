package raster

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"rtiler/compose"
	"rtiler/tiles"
)

//Handle an opened raster with the per-zoom tile ranges it covers. A handle
//is shared between concurrent tile builds and closed once it has left the
//cache and the last user released it.
type Handle struct {
	Path          string
	Width, Height int
	Bands         int
	GeoTransform  [6]float64
	// Bounds extent in web mercator metres
	Bounds orb.Bound
	ranges [tiles.MaxZoom + 1]Range
	ds     Dataset

	mu      sync.Mutex
	refs    int
	evicted bool
	closed  bool
}

func newHandle(path string, ds Dataset) (*Handle, error) {
	w, h := ds.Size()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %s has no pixels", ErrSourceUnavailable, path)
	}
	bands := ds.Bands()
	if bands == 0 {
		return nil, fmt.Errorf("%w: %s has no raster bands", ErrSourceUnavailable, path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return nil, fmt.Errorf("%w: %s is rotated", ErrSourceUnavailable, path)
	}
	hd := &Handle{
		Path:         path,
		Width:        w,
		Height:       h,
		Bands:        bands,
		GeoTransform: gt,
		Bounds:       extent(gt, w, h),
		ds:           ds,
	}
	for z := range hd.ranges {
		hd.ranges[z] = RangeAt(hd.Bounds, z)
	}
	return hd, nil
}

func extent(gt [6]float64, w, h int) orb.Bound {
	minx := gt[0]
	maxx := gt[0] + float64(w)*gt[1]
	maxy := gt[3]
	miny := gt[3] + float64(h)*gt[5]
	return orb.MultiPoint{{minx, miny}, {maxx, maxy}}.Bound()
}

//Range TMS tiles covered at zoom z
func (h *Handle) Range(z int) Range {
	if z < 0 || z > tiles.MaxZoom {
		return Range{MinX: 0, MinY: 0, MaxX: -1, MaxY: -1}
	}
	return h.ranges[z]
}

//Covers reports whether the raster has data for logical tile c
func (h *Handle) Covers(c tiles.Coord, o tiles.Origin) bool {
	z, x, y := tiles.ToLibrary(c, o)
	return h.Range(z).Contains(x, y)
}

//Sample renders TMS tile (tx,ty,z) of the raster. Areas without data stay
//transparent.
func (h *Handle) Sample(z, tx, ty int, method tiles.Resampling) (*image.NRGBA, error) {
	b := TileBounds(tx, ty, z)
	qs := method.QuerySize()
	q := GeoQuery(h.GeoTransform, h.Width, h.Height, b.Min.X(), b.Max.Y(), b.Max.X(), b.Min.Y(), qs)
	if q.Empty() {
		return compose.Transparent(), nil
	}
	data, err := h.ds.ReadWindow(q.Read, q.Write.Width, q.Write.Height, method)
	if err != nil {
		return nil, fmt.Errorf("%w: %s tile %d/%d/%d: %v", ErrSourceReadFailure, h.Path, z, tx, ty, err)
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, qs, qs))
	canvas = imaging.Paste(canvas, data, image.Pt(q.Write.X, q.Write.Y))
	return compose.Downsample(canvas, tiles.TileSize, method), nil
}

//SampleTile renders logical tile c
func (h *Handle) SampleTile(c tiles.Coord, o tiles.Origin, method tiles.Resampling) (*image.NRGBA, error) {
	z, x, y := tiles.ToLibrary(c, o)
	return h.Sample(z, x, y, method)
}

func (h *Handle) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evicted || h.closed {
		return false
	}
	h.refs++
	return true
}

//Release gives back a reference taken by Cache.GetOrOpen
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs == 0 && h.evicted {
		if err := h.closeLocked(); err != nil {
			log.Warnf("close raster %s: %v", h.Path, err)
		}
	}
}

func (h *Handle) evict() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evicted = true
	if h.refs == 0 {
		return h.closeLocked()
	}
	return nil
}

func (h *Handle) closeLocked() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.ds.Close()
}
