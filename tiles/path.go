package tiles

import (
	"path/filepath"
	"strconv"
	"strings"
)

//DefaultPattern tile layout under the request directory
const DefaultPattern = "{z}/{x}/{y}.png"

//FinalPath fills the {z}/{x}/{y} placeholders of pattern under dir
func FinalPath(dir, pattern string, c Coord) string {
	p := strings.Replace(pattern, "{x}", strconv.Itoa(c.X), -1)
	p = strings.Replace(p, "{y}", strconv.Itoa(c.Y), -1)
	p = strings.Replace(p, "{z}", strconv.Itoa(c.Z), -1)
	return join(dir, p)
}

//PartialPath per-source layer tile, stored next to the final tile
func PartialPath(finalPath, sourceName string) string {
	ext := filepath.Ext(finalPath)
	base := strings.TrimSuffix(finalPath, ext)
	return base + "_" + sanitize(sourceName) + ext
}

//RasterPath location of a source raster under the request directory
func RasterPath(dir, sourceName string) string {
	return join(dir, sourceName)
}

func join(dir, rel string) string {
	if dir == "" {
		return rel
	}
	return strings.TrimRight(dir, "/") + "/" + strings.TrimLeft(rel, "/")
}

func sanitize(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name)
}
