package raster

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"rtiler/metrics"
	"rtiler/tiles"
)

//DefaultCacheSize rasters kept open when no size is configured
const DefaultCacheSize = 64

//Cache keeps rasters open between tile builds. Each file is opened once;
//concurrent callers asking for the same file share the open.
type Cache struct {
	driver Driver
	lru    *lru.Cache[string, *Handle]
	group  singleflight.Group
}

//NewCache cache of at most size open rasters read through driver
func NewCache(driver Driver, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	l, err := lru.NewWithEvict[string, *Handle](size, func(path string, h *Handle) {
		metrics.RasterOpen.Dec()
		if err := h.evict(); err != nil {
			log.Warnf("close raster %s: %v", path, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Cache{driver: driver, lru: l}, nil
}

//With runs fn on the opened raster at path. The handle must not be used
//after fn returns.
func (c *Cache) With(path string, method tiles.Resampling, fn func(h *Handle) error) error {
	h, err := c.GetOrOpen(path, method)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h)
}

//GetOrOpen returns the cached handle for path, opening the raster on a
//miss. The caller owns one reference and must Release it.
func (c *Cache) GetOrOpen(path string, method tiles.Resampling) (*Handle, error) {
	for {
		h, err := c.open(path, method)
		if err != nil {
			return nil, err
		}
		if h.acquire() {
			return h, nil
		}
		// evicted between lookup and acquire, open it again
	}
}

func (c *Cache) open(path string, method tiles.Resampling) (*Handle, error) {
	if h, ok := c.lru.Get(path); ok {
		return h, nil
	}
	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		if h, ok := c.lru.Get(path); ok {
			return h, nil
		}
		ds, err := c.driver.Open(path, method)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
		}
		h, err := newHandle(path, ds)
		if err != nil {
			ds.Close()
			return nil, err
		}
		if prev, ok, _ := c.lru.PeekOrAdd(path, h); ok {
			ds.Close()
			return prev, nil
		}
		metrics.RasterOpen.Inc()
		log.Debugf("opened raster %s (%dx%d, %d bands)", path, h.Width, h.Height, h.Bands)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

//IsEmpty reports whether the raster at path has no data for logical tile c
func (c *Cache) IsEmpty(coord tiles.Coord, path string, o tiles.Origin, method tiles.Resampling) (bool, error) {
	covers := false
	err := c.With(path, method, func(h *Handle) error {
		covers = h.Covers(coord, o)
		return nil
	})
	if err != nil {
		return false, err
	}
	return !covers, nil
}

//Info zoom window and extent of the raster at path
func (c *Cache) Info(path string) (Info, error) {
	var info Info
	err := c.With(path, tiles.DefaultResampling, func(h *Handle) error {
		info = h.Info()
		return nil
	})
	return info, err
}

//Len rasters currently open through the cache
func (c *Cache) Len() int {
	return c.lru.Len()
}

//Purge closes every raster not in use
func (c *Cache) Purge() {
	c.lru.Purge()
}
