package raster

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"rtiler/compose"
	"rtiler/tiles"
)

func init() {
	Register("image", ImageDriver{})
}

//ImageDriver reads PNG, JPEG, GIF and TIFF rasters georeferenced by an ESRI
//world file in EPSG:3857. The whole image is decoded on open.
type ImageDriver struct{}

//Open decodes path and its world file
func (ImageDriver) Open(path string, _ tiles.Resampling) (Dataset, error) {
	gt, err := readWorldFile(path)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	return &imageDataset{img: imaging.Clone(img), bands: bandsOf(img), gt: gt}, nil
}

type imageDataset struct {
	img   *image.NRGBA
	bands int
	gt    [6]float64
}

func (d *imageDataset) Size() (int, int) {
	b := d.img.Bounds()
	return b.Dx(), b.Dy()
}

func (d *imageDataset) Bands() int { return d.bands }

func (d *imageDataset) GeoTransform() ([6]float64, error) { return d.gt, nil }

func (d *imageDataset) ReadWindow(src Window, w, h int, method tiles.Resampling) (*image.NRGBA, error) {
	if d.img == nil {
		return nil, fmt.Errorf("dataset closed")
	}
	rect := image.Rect(src.X, src.Y, src.X+src.Width, src.Y+src.Height)
	if !rect.In(d.img.Bounds()) {
		return nil, fmt.Errorf("window %v outside raster %v", rect, d.img.Bounds())
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", w, h)
	}
	if rect.Dx() == w && rect.Dy() == h {
		return imaging.Crop(d.img, rect), nil
	}
	if method.Statistic() {
		return compose.Resize(imaging.Crop(d.img, rect), w, h, method), nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scaler(method).Scale(dst, dst.Bounds(), d.img, rect, draw.Src, nil)
	return dst, nil
}

func (d *imageDataset) Close() error {
	d.img = nil
	return nil
}

func scaler(m tiles.Resampling) draw.Scaler {
	switch m {
	case tiles.Near:
		return draw.NearestNeighbor
	case tiles.Bilinear:
		return draw.BiLinear
	case tiles.Cubic, tiles.CubicSpline, tiles.Lanczos, tiles.Antialias:
		return draw.CatmullRom
	}
	return draw.ApproxBiLinear
}

func bandsOf(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.YCbCr, *image.CMYK:
		return 3
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return 4
			}
		}
		return 3
	}
	if img.ColorModel() == color.GrayModel {
		return 1
	}
	return 4
}

// worldFileNames candidate sidecars for path: foo.pgw, foo.pngw, foo.wld
func worldFileNames(path string) []string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	var names []string
	if e := strings.TrimPrefix(ext, "."); len(e) >= 2 {
		names = append(names, base+"."+e[:1]+e[len(e)-1:]+"w", base+ext+"w")
	}
	return append(names, base+".wld")
}

//readWorldFile loads the affine transform of an ESRI world file. The file
//lists A, D, B, E, C, F where C and F locate the centre of the upper left
//pixel; the geotransform wants its corner.
func readWorldFile(path string) ([6]float64, error) {
	var gt [6]float64
	for _, name := range worldFileNames(path) {
		f, err := os.Open(name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return gt, err
		}
		defer f.Close()
		var v []float64
		s := bufio.NewScanner(f)
		for s.Scan() {
			line := strings.TrimSpace(s.Text())
			if line == "" {
				continue
			}
			n, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return gt, fmt.Errorf("world file %s: %v", name, err)
			}
			v = append(v, n)
		}
		if err := s.Err(); err != nil {
			return gt, err
		}
		if len(v) != 6 {
			return gt, fmt.Errorf("world file %s: want 6 values, got %d", name, len(v))
		}
		a, d, b, e, c, f6 := v[0], v[1], v[2], v[3], v[4], v[5]
		return [6]float64{c - a/2 - b/2, a, b, f6 - d/2 - e/2, d, e}, nil
	}
	return gt, fmt.Errorf("no world file for %s", path)
}
