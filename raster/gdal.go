//go:build gdal

package raster

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/airbusgeo/godal"

	"rtiler/tiles"
)

func init() {
	godal.RegisterAll()
	Register("gdal", GDALDriver{})
}

var vrtSeq int64

//GDALDriver opens any raster GDAL reads and warps it to EPSG:3857 through
//an in-memory VRT, the way gdal2tiles prepares its input.
type GDALDriver struct{}

//Open opens path warped with method
func (GDALDriver) Open(path string, method tiles.Resampling) (Dataset, error) {
	src, err := godal.Open(path)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("/vsimem/rtiler-%d.vrt", atomic.AddInt64(&vrtSeq, 1))
	warped, err := src.Warp(name, []string{"-of", "VRT", "-t_srs", "EPSG:3857", "-r", warpMethod(method)})
	if err != nil {
		src.Close()
		return nil, err
	}
	st := warped.Structure()
	return &gdalDataset{src: src, ds: warped, w: st.SizeX, h: st.SizeY, bands: st.NBands}, nil
}

type gdalDataset struct {
	src, ds *godal.Dataset
	w, h    int
	bands   int
}

func (d *gdalDataset) Size() (int, int) { return d.w, d.h }

func (d *gdalDataset) Bands() int { return d.bands }

func (d *gdalDataset) GeoTransform() ([6]float64, error) { return d.ds.GeoTransform() }

// dataBands the last band of a 2 or 4 band raster is alpha
func (d *gdalDataset) dataBands() int {
	if d.bands == 2 || d.bands == 4 {
		return d.bands - 1
	}
	return d.bands
}

func (d *gdalDataset) ReadWindow(src Window, w, h int, method tiles.Resampling) (*image.NRGBA, error) {
	n := d.dataBands()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	alg := resamplingAlg(method)
	data := make([]uint8, w*h*n)
	if err := d.ds.Read(src.X, src.Y, data, w, h,
		godal.Window(src.Width, src.Height), godal.Bands(idx...), godal.Resampling(alg)); err != nil {
		return nil, err
	}
	mask := make([]uint8, w*h)
	if err := d.ds.Bands()[0].MaskBand().Read(src.X, src.Y, mask, w, h,
		godal.Window(src.Width, src.Height), godal.Resampling(alg)); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		p := out.Pix[i*4 : i*4+4]
		px := data[i*n : i*n+n]
		if n >= 3 {
			p[0], p[1], p[2] = px[0], px[1], px[2]
		} else {
			p[0], p[1], p[2] = px[0], px[0], px[0]
		}
		p[3] = mask[i]
	}
	return out, nil
}

func (d *gdalDataset) Close() error {
	err := d.ds.Close()
	if cerr := d.src.Close(); err == nil {
		err = cerr
	}
	return err
}

func warpMethod(m tiles.Resampling) string {
	switch m {
	case tiles.Antialias:
		return "lanczos"
	case "":
		return string(tiles.DefaultResampling)
	}
	return string(m)
}

func resamplingAlg(m tiles.Resampling) godal.ResamplingAlg {
	switch m {
	case tiles.Average:
		return godal.Average
	case tiles.Bilinear:
		return godal.Bilinear
	case tiles.Cubic:
		return godal.Cubic
	case tiles.CubicSpline:
		return godal.CubicSpline
	case tiles.Lanczos, tiles.Antialias:
		return godal.Lanczos
	case tiles.Mode:
		return godal.Mode
	}
	return godal.Nearest
}
