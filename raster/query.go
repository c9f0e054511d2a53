package raster

import "image"

//Window rectangle in raster pixel space
type Window struct {
	X, Y, Width, Height int
}

func (w Window) empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

//Query describes one tile read: the raster window to read and where the
//result lands on a querySize x querySize canvas.
type Query struct {
	Read      Window
	Write     Window
	QuerySize int
}

//Empty reports whether nothing of the raster falls inside the tile
func (q Query) Empty() bool {
	return q.Read.empty() || q.Write.empty()
}

//WriteRect placement of the read pixels on the query canvas
func (q Query) WriteRect() image.Rectangle {
	return image.Rect(q.Write.X, q.Write.Y, q.Write.X+q.Write.Width, q.Write.Y+q.Write.Height)
}

//GeoQuery maps the world rectangle ulx,uly,lrx,lry (metres) onto a raster
//with geotransform gt and size w x h. Parts outside the raster are cut
//from both windows so the write window only covers real data.
func GeoQuery(gt [6]float64, w, h int, ulx, uly, lrx, lry float64, querySize int) Query {
	rx := int((ulx-gt[0])/gt[1] + 0.001)
	ry := int((uly-gt[3])/gt[5] + 0.001)
	rxsize := max(1, int((lrx-ulx)/gt[1]+0.5))
	rysize := max(1, int((lry-uly)/gt[5]+0.5))

	wxsize, wysize := rxsize, rysize
	if querySize > 0 {
		wxsize, wysize = querySize, querySize
	}

	wx := 0
	if rx < 0 {
		shift := float64(-rx) / float64(rxsize)
		wx = int(float64(wxsize) * shift)
		wxsize -= wx
		rxsize -= int(float64(rxsize) * shift)
		rx = 0
	}
	if rx+rxsize > w {
		wxsize = int(float64(wxsize) * (float64(w-rx) / float64(rxsize)))
		rxsize = w - rx
	}

	wy := 0
	if ry < 0 {
		shift := float64(-ry) / float64(rysize)
		wy = int(float64(wysize) * shift)
		wysize -= wy
		rysize -= int(float64(rysize) * shift)
		ry = 0
	}
	if ry+rysize > h {
		wysize = int(float64(wysize) * (float64(h-ry) / float64(rysize)))
		rysize = h - ry
	}

	return Query{
		Read:      Window{X: rx, Y: ry, Width: rxsize, Height: rysize},
		Write:     Window{X: wx, Y: wy, Width: wxsize, Height: wysize},
		QuerySize: querySize,
	}
}
