package compose

import (
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"rtiler/tiles"
)

//Filter convolution filter used for a resampling method. Order-statistic
//methods fall back to nearest when the scale is not an integer.
func Filter(m tiles.Resampling) imaging.ResampleFilter {
	switch m {
	case tiles.Near, tiles.Mode, tiles.Max, tiles.Min, tiles.Med, tiles.Q1, tiles.Q3:
		return imaging.NearestNeighbor
	case tiles.Average:
		return imaging.Box
	case tiles.Bilinear:
		return imaging.Linear
	case tiles.Cubic:
		return imaging.CatmullRom
	case tiles.CubicSpline:
		return imaging.BSpline
	case tiles.Lanczos, tiles.Antialias:
		return imaging.Lanczos
	}
	return imaging.Box
}

//Downsample scales a square image to size x size. Statistic methods reduce
//each k x k block exactly when the scale is an integer.
func Downsample(img image.Image, size int, m tiles.Resampling) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return imaging.Clone(img)
	}
	if m.Statistic() && b.Dx() == b.Dy() && b.Dx()%size == 0 {
		return reduce(imaging.Clone(img), b.Dx()/size, m)
	}
	return imaging.Resize(img, size, size, Filter(m))
}

//Resize scales img to w x h with the filter of m
func Resize(img image.Image, w, h int, m tiles.Resampling) *image.NRGBA {
	if m.Statistic() {
		b := img.Bounds()
		if b.Dx() == b.Dy() && w == h && w > 0 && b.Dx()%w == 0 && b.Dx() > w {
			return reduce(imaging.Clone(img), b.Dx()/w, m)
		}
	}
	return imaging.Resize(img, w, h, Filter(m))
}

// reduce collapses k x k blocks of src. Fully transparent pixels carry no
// data and are ignored; a block without data stays transparent.
func reduce(src *image.NRGBA, k int, m tiles.Resampling) *image.NRGBA {
	w, h := src.Rect.Dx()/k, src.Rect.Dy()/k
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	block := make([][4]uint8, 0, k*k)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			block = block[:0]
			for by := 0; by < k; by++ {
				row := src.Pix[(y*k+by)*src.Stride:]
				for bx := 0; bx < k; bx++ {
					p := row[(x*k+bx)*4 : (x*k+bx)*4+4]
					if p[3] == 0 {
						continue
					}
					block = append(block, [4]uint8{p[0], p[1], p[2], p[3]})
				}
			}
			if len(block) == 0 {
				continue
			}
			px := statistic(block, m)
			copy(dst.Pix[y*dst.Stride+x*4:], px[:])
		}
	}
	return dst
}

func statistic(block [][4]uint8, m tiles.Resampling) [4]uint8 {
	if m == tiles.Mode {
		return mode(block)
	}
	var out [4]uint8
	values := make([]uint8, len(block))
	for c := 0; c < 4; c++ {
		for i, p := range block {
			values[i] = p[c]
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		n := len(values) - 1
		switch m {
		case tiles.Min:
			out[c] = values[0]
		case tiles.Max:
			out[c] = values[n]
		case tiles.Q1:
			out[c] = values[n/4]
		case tiles.Q3:
			out[c] = values[3*n/4]
		default:
			out[c] = values[n/2]
		}
	}
	return out
}

// mode most frequent whole pixel; on a tie the pixel reaching the count first wins.
func mode(block [][4]uint8) [4]uint8 {
	counts := make(map[[4]uint8]int, len(block))
	best, bestN := block[0], 0
	for _, p := range block {
		counts[p]++
		if n := counts[p]; n > bestN {
			best, bestN = p, n
		}
	}
	return best
}
