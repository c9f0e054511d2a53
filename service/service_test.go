package service

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtiler/compose"
	"rtiler/raster"
	"rtiler/synth"
	"rtiler/tiles"
)

// squareDataset 512 px over TMS tile 2/5 at zoom 3, shrunk by a metre
type squareDataset struct{}

func (squareDataset) Size() (int, int) { return 512, 512 }
func (squareDataset) Bands() int       { return 3 }
func (squareDataset) GeoTransform() ([6]float64, error) {
	b := raster.TileBounds(2, 5, 3)
	w := b.Max.X() - b.Min.X() - 2
	return [6]float64{b.Min.X() + 1, w / 512, 0, b.Max.Y() - 1, 0, -w / 512}, nil
}
func (squareDataset) ReadWindow(_ raster.Window, w, h int, _ tiles.Resampling) (*image.NRGBA, error) {
	return imaging.New(w, h, color.NRGBA{9, 99, 199, 255}), nil
}
func (squareDataset) Close() error { return nil }

type squareDriver struct{}

func (squareDriver) Open(path string, _ tiles.Resampling) (raster.Dataset, error) {
	if filepath.Base(path) != "origin.tif" {
		return nil, os.ErrNotExist
	}
	return squareDataset{}, nil
}

func newService(t *testing.T, base string) *Service {
	t.Helper()
	cache, err := raster.NewCache(squareDriver{}, 4)
	require.NoError(t, err)
	return New(synth.New(cache, 4), cache, Dirs{Base: base, Upload: "/uploads/"}, "")
}

func TestDirsResolve(t *testing.T) {
	d := Dirs{Base: "/data/", Upload: "/up"}
	assert.Equal(t, "/data/layers", d.Resolve("{base_directory}layers/"))
	assert.Equal(t, "/data", d.Resolve("{base_directory}"))
	assert.Equal(t, "/up/a", d.Resolve("{upload_base_directory}/a///"))
	assert.Equal(t, "rel", d.Resolve("rel"))
	assert.Equal(t, "/", d.Resolve("/"))
}

func TestDecodeTileCreate(t *testing.T) {
	s := newService(t, "/data")
	body := `{"z":17,"x":84291,"y":79455,"startCreateTileZoom":19,"startPoint":"BOTTOM_LEFT",
		"directory":"{base_directory}/","resampling":"average",
		"files":[{"name":"east.tif"},{"name":"west.tif","resampling":"nearest"}]}`
	req, err := s.DecodeTileCreate([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, tiles.Coord{Z: 17, X: 84291, Y: 79455}, req.Coord)
	assert.Equal(t, 19, req.DirectZoom)
	assert.Equal(t, tiles.BottomLeft, req.Origin)
	assert.Equal(t, "/data", req.Dir)
	assert.Equal(t, tiles.DefaultPattern, req.Pattern)
	assert.Equal(t, tiles.Average, req.Resampling)
	assert.Equal(t, []tiles.Source{
		{Name: "east.tif", Resampling: tiles.Average},
		{Name: "west.tif", Resampling: tiles.Near},
	}, req.Sources)
	assert.Equal(t, "/data/17/84291/79455.png", req.TilePath())
}

func TestDecodeTileCreateInvalid(t *testing.T) {
	s := newService(t, "/data")
	for name, body := range map[string]string{
		"json":       `{"z":`,
		"negative":   `{"z":-1}`,
		"origin":     `{"z":1,"startPoint":"MIDDLE"}`,
		"file name":  `{"z":1,"files":[{"resampling":"near"}]}`,
		"resampling": `{"z":1,"resampling":"sharpest"}`,
		"range":      `{"z":1,"x":2,"y":0}`,
	} {
		_, err := s.DecodeTileCreate([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}
}

func TestHandleTileCreate(t *testing.T) {
	dir := t.TempDir()
	s := newService(t, dir)
	body := `{"z":3,"x":2,"y":2,"startCreateTileZoom":3,"directory":"{base_directory}","files":[{"name":"origin.tif"}]}`
	require.NoError(t, s.HandleTileCreate(context.Background(), []byte(body)))
	assert.True(t, compose.Exists(filepath.Join(dir, "3/2/2.png")))
	assert.True(t, compose.Exists(filepath.Join(dir, "0/0/0.png")))

	body = `{"z":3,"x":3,"y":2,"directory":"{base_directory}","files":[{"name":"missing.tif"}]}`
	assert.ErrorIs(t, s.HandleTileCreate(context.Background(), []byte(body)), raster.ErrSourceUnavailable)
}

func TestHandleTileCreateCancelled(t *testing.T) {
	s := newService(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.HandleTileCreate(ctx, []byte(`{"z":0,"files":[{"name":"origin.tif"}]}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleInfo(t *testing.T) {
	s := newService(t, "/data")
	out, err := s.HandleInfo(context.Background(), []byte(`{"id":"abc","directory":"{base_directory}"}`))
	require.NoError(t, err)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, "abc", resp.ID)
	assert.Equal(t, DefaultRasterFile, resp.File)
	assert.Equal(t, 3, resp.MinZoom)
	assert.Equal(t, 5, resp.MaxZoom)
	b := raster.TileBounds(2, 5, 3)
	assert.InDelta(t, b.Min.X()+1, resp.BBox[0], 1e-6)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &raw))
	for _, k := range []string{"id", "file", "minZoom", "maxZoom", "bbox"} {
		assert.Contains(t, raw, k)
	}

	resp, err = s.Info(context.Background(), InfoRequest{Directory: "{base_directory}"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)

	_, err = s.HandleInfo(context.Background(), []byte(`{"file":"nope.tif"}`))
	assert.ErrorIs(t, err, raster.ErrSourceUnavailable)
	_, err = s.HandleInfo(context.Background(), []byte(`[`))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
