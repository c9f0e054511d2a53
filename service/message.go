package service

import (
	"fmt"
	"strings"

	"rtiler/raster"
	"rtiler/tiles"
)

// Routing keys on the exchange
const (
	KeyTileCreateRequest = "TILE_CREATE_REQUEST"
	KeyInfoRequest       = "INFO_REQUEST"
	KeyInfoResponse      = "INFO_RESPONSE"
)

// Directory placeholders replaced from configuration
const (
	PlaceholderBase   = "{base_directory}"
	PlaceholderUpload = "{upload_base_directory}"
)

//DefaultRasterFile raster looked up when an info request names none
const DefaultRasterFile = "origin.tif"

//FileSpec one source raster of a tile request
type FileSpec struct {
	Name       string `json:"name" validate:"required"`
	Resampling string `json:"resampling"`
}

//TileCreateRequest body of a TILE_CREATE_REQUEST message
type TileCreateRequest struct {
	Z                   int        `json:"z" validate:"gte=0,lte=30"`
	X                   int        `json:"x" validate:"gte=0"`
	Y                   int        `json:"y" validate:"gte=0"`
	Files               []FileSpec `json:"files" validate:"dive"`
	StartCreateTileZoom int        `json:"startCreateTileZoom" validate:"gte=0,lte=30"`
	StartPoint          string     `json:"startPoint" validate:"omitempty,oneof=TOP_LEFT TOP_RIGHT BOTTOM_LEFT BOTTOM_RIGHT"`
	Directory           string     `json:"directory"`
	Pattern             string     `json:"pattern"`
	Resampling          string     `json:"resampling"`
}

//InfoRequest body of an INFO_REQUEST message
type InfoRequest struct {
	ID        string `json:"id"`
	File      string `json:"file"`
	Directory string `json:"directory"`
}

//InfoResponse body of an INFO_RESPONSE message
type InfoResponse struct {
	ID      string     `json:"id"`
	File    string     `json:"file"`
	MinZoom int        `json:"minZoom"`
	MaxZoom int        `json:"maxZoom"`
	BBox    [4]float64 `json:"bbox"`
}

func newInfoResponse(id, file string, info raster.Info) InfoResponse {
	return InfoResponse{ID: id, File: file, MinZoom: info.MinZoom, MaxZoom: info.MaxZoom, BBox: info.BBox}
}

//Dirs values of the directory placeholders
type Dirs struct {
	Base   string
	Upload string
}

//Resolve expands the placeholders of dir and drops trailing slashes
func (d Dirs) Resolve(dir string) string {
	dir = strings.Replace(dir, PlaceholderBase, d.Base, -1)
	dir = strings.Replace(dir, PlaceholderUpload, d.Upload, -1)
	if trimmed := strings.TrimRight(dir, "/"); trimmed != "" {
		return trimmed
	}
	return dir
}

//toRequest converts a validated message into an engine request
func (m TileCreateRequest) toRequest(dirs Dirs, defaultPattern string) (tiles.Request, error) {
	if limit := 1 << uint(m.Z); m.X >= limit || m.Y >= limit {
		return tiles.Request{}, fmt.Errorf("tile %d/%d/%d outside zoom %d", m.Z, m.X, m.Y, m.Z)
	}
	origin, err := tiles.ParseOrigin(m.StartPoint)
	if err != nil {
		return tiles.Request{}, err
	}
	method, err := tiles.ParseResampling(m.Resampling)
	if err != nil {
		return tiles.Request{}, err
	}
	pattern := m.Pattern
	if pattern == "" {
		pattern = defaultPattern
	}
	if pattern == "" {
		pattern = tiles.DefaultPattern
	}
	req := tiles.Request{
		Coord:      tiles.Coord{Z: m.Z, X: m.X, Y: m.Y},
		DirectZoom: m.StartCreateTileZoom,
		Origin:     origin,
		Dir:        dirs.Resolve(m.Directory),
		Pattern:    pattern,
		Resampling: method,
	}
	for _, f := range m.Files {
		fm := method
		if f.Resampling != "" {
			if fm, err = tiles.ParseResampling(f.Resampling); err != nil {
				return tiles.Request{}, fmt.Errorf("file %s: %w", f.Name, err)
			}
		}
		req.Sources = append(req.Sources, tiles.Source{Name: f.Name, Resampling: fm})
	}
	return req, nil
}
