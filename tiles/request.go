package tiles

//Source one raster layer drawn into a tile
type Source struct {
	Name       string     `json:"name"`
	Resampling Resampling `json:"resampling"`
}

//Request everything needed to build one tile. Sources are drawn in order,
//later ones on top.
type Request struct {
	Coord   Coord
	Sources []Source
	// DirectZoom is the minimum zoom sampled straight from the rasters;
	// shallower tiles are built from their children.
	DirectZoom int
	Origin     Origin
	Dir        string
	Pattern    string
	// Resampling filter used when four children are merged into a parent.
	Resampling Resampling
}

//TilePath final artifact location
func (r Request) TilePath() string {
	return FinalPath(r.Dir, r.Pattern, r.Coord)
}

//PartialPath layer artifact location for one source of r
func (r Request) PartialPath(s Source) string {
	return PartialPath(r.TilePath(), s.Name)
}

//RasterPath raster file for one source of r
func (r Request) RasterPath(s Source) string {
	return RasterPath(r.Dir, s.Name)
}

//At returns a copy of r addressed at c with its own source slice.
func (r Request) At(c Coord) Request {
	n := r
	n.Coord = c
	n.Sources = append([]Source(nil), r.Sources...)
	return n
}

//Children requests for the four child tiles
func (r Request) Children() [4]Request {
	var out [4]Request
	for i, c := range r.Coord.Children() {
		out[i] = r.At(c)
	}
	return out
}

//Parent request, false at zoom 0
func (r Request) Parent() (Request, bool) {
	p, ok := r.Coord.Parent()
	if !ok {
		return r, false
	}
	return r.At(p), true
}
