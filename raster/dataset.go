package raster

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"rtiler/tiles"
)

// Errors raised by raster access. Callers match them with errors.Is.
var (
	// ErrSourceUnavailable the raster cannot be opened or has no bands.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceReadFailure reading or resampling a window failed.
	ErrSourceReadFailure = errors.New("source read failure")
)

//Dataset an opened raster, already in web mercator metres
type Dataset interface {
	Size() (width, height int)
	Bands() int
	GeoTransform() ([6]float64, error)
	// ReadWindow reads the src window scaled to w x h pixels. Pixels without
	// data come back transparent.
	ReadWindow(src Window, w, h int, method tiles.Resampling) (*image.NRGBA, error)
	Close() error
}

//Driver opens datasets. The resampling method is the one of the first
//request that references the file.
type Driver interface {
	Open(path string, method tiles.Resampling) (Dataset, error)
}

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{}
)

//Register makes a driver available by name
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

//Lookup returns the named driver
func Lookup(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown raster driver %q, have %v", name, driverNames())
	}
	return d, nil
}

func driverNames() []string {
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
