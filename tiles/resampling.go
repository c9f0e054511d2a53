package tiles

import (
	"fmt"
	"strings"
)

//Resampling pixel combination method used when reducing resolution
type Resampling string

// Resampling methods, named as gdal2tiles names them
const (
	Near        Resampling = "near"
	Average     Resampling = "average"
	Bilinear    Resampling = "bilinear"
	Cubic       Resampling = "cubic"
	CubicSpline Resampling = "cubicspline"
	Lanczos     Resampling = "lanczos"
	Mode        Resampling = "mode"
	Max         Resampling = "max"
	Min         Resampling = "min"
	Med         Resampling = "med"
	Q1          Resampling = "q1"
	Q3          Resampling = "q3"
	Antialias   Resampling = "antialias"
)

//DefaultResampling used when neither the file nor the request names one
const DefaultResampling = Average

var resamplingAliases = map[string]Resampling{
	"nearest": Near,
	"median":  Med,
}

//ParseResampling accepts the gdal2tiles names plus a few aliases
func ParseResampling(s string) (Resampling, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultResampling, nil
	}
	if r, ok := resamplingAliases[name]; ok {
		return r, nil
	}
	switch r := Resampling(name); r {
	case Near, Average, Bilinear, Cubic, CubicSpline, Lanczos, Mode, Max, Min, Med, Q1, Q3, Antialias:
		return r, nil
	}
	return "", fmt.Errorf("unknown resampling %q", s)
}

//QuerySize is the edge of the window read from the raster for one tile.
//Nearest reads at tile resolution, everything else oversamples 4x.
func (r Resampling) QuerySize() int {
	if r == Near {
		return TileSize
	}
	return 4 * TileSize
}

//Statistic reports whether r reduces blocks by an order statistic
//rather than a convolution filter.
func (r Resampling) Statistic() bool {
	switch r {
	case Mode, Max, Min, Med, Q1, Q3:
		return true
	}
	return false
}
