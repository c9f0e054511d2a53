package raster

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtiler/tiles"
)

type fakeDataset struct {
	w, h, bands int
	gt          [6]float64
	closed      int32
}

func (d *fakeDataset) Size() (int, int)                  { return d.w, d.h }
func (d *fakeDataset) Bands() int                        { return d.bands }
func (d *fakeDataset) GeoTransform() ([6]float64, error) { return d.gt, nil }
func (d *fakeDataset) ReadWindow(_ Window, w, h int, _ tiles.Resampling) (*image.NRGBA, error) {
	return imaging.New(w, h, color.NRGBA{1, 2, 3, 255}), nil
}
func (d *fakeDataset) Close() error {
	atomic.AddInt32(&d.closed, 1)
	return nil
}

type fakeDriver struct {
	mu     sync.Mutex
	opens  map[string]int
	opened map[string][]*fakeDataset
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{opens: map[string]int{}, opened: map[string][]*fakeDataset{}}
}

func (d *fakeDriver) Open(path string, _ tiles.Resampling) (Dataset, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if path == "broken" {
		return nil, errors.New("cannot open")
	}
	d.opens[path]++
	ds := &fakeDataset{w: 256, h: 256, bands: 3, gt: [6]float64{1000, 1, 0, 1256, 0, -1}}
	d.opened[path] = append(d.opened[path], ds)
	return ds, nil
}

func (d *fakeDriver) count(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[path]
}

func (d *fakeDriver) first(path string) *fakeDataset {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[path][0]
}

func noop(*Handle) error { return nil }

func TestCacheOpensOnce(t *testing.T) {
	drv := newFakeDriver()
	c, err := NewCache(drv, 4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.With("a", tiles.Average, noop))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, drv.count("a"))
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictionClosesIdleHandle(t *testing.T) {
	drv := newFakeDriver()
	c, err := NewCache(drv, 1)
	require.NoError(t, err)

	require.NoError(t, c.With("a", tiles.Near, noop))
	require.NoError(t, c.With("b", tiles.Near, noop))
	assert.Equal(t, int32(1), atomic.LoadInt32(&drv.first("a").closed))
	assert.Equal(t, int32(0), atomic.LoadInt32(&drv.first("b").closed))

	require.NoError(t, c.With("a", tiles.Near, noop))
	assert.Equal(t, 2, drv.count("a"))
}

func TestCacheEvictionWaitsForUsers(t *testing.T) {
	drv := newFakeDriver()
	c, err := NewCache(drv, 1)
	require.NoError(t, err)

	err = c.With("a", tiles.Near, func(h *Handle) error {
		require.NoError(t, c.With("b", tiles.Near, noop))
		assert.Equal(t, int32(0), atomic.LoadInt32(&drv.first("a").closed), "in use")
		_, err := h.Sample(0, 0, 0, tiles.Near)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&drv.first("a").closed))
}

func TestCachePurge(t *testing.T) {
	drv := newFakeDriver()
	c, err := NewCache(drv, 4)
	require.NoError(t, err)
	require.NoError(t, c.With("a", tiles.Near, noop))
	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int32(1), atomic.LoadInt32(&drv.first("a").closed))
}

func TestCacheOpenFailure(t *testing.T) {
	c, err := NewCache(newFakeDriver(), 4)
	require.NoError(t, err)
	err = c.With("broken", tiles.Near, noop)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = c.IsEmpty(tiles.Coord{}, "broken", tiles.TopLeft, tiles.Near)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCacheIsEmpty(t *testing.T) {
	c, err := NewCache(newFakeDriver(), 4)
	require.NoError(t, err)

	// the fake raster is a 256 m square north east of the origin
	empty, err := c.IsEmpty(tiles.Coord{Z: 1, X: 1, Y: 0}, "a", tiles.TopLeft, tiles.Near)
	require.NoError(t, err)
	assert.False(t, empty)

	empty, err = c.IsEmpty(tiles.Coord{Z: 1, X: 0, Y: 1}, "a", tiles.TopLeft, tiles.Near)
	require.NoError(t, err)
	assert.True(t, empty)

	info, err := c.Info("a")
	require.NoError(t, err)
	assert.Equal(t, [4]float64{1000, 1000, 1256, 1256}, info.BBox)
}

func TestCallbackErrorPropagates(t *testing.T) {
	c, err := NewCache(newFakeDriver(), 4)
	require.NoError(t, err)
	boom := errors.New("boom")
	assert.Equal(t, boom, c.With("a", tiles.Near, func(*Handle) error { return boom }))
}
