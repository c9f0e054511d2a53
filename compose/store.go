package compose

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"rtiler/tiles"
)

//ErrUnsupportedOutputTarget the sink cannot take the requested tile
var ErrUnsupportedOutputTarget = errors.New("unsupported output target")

//CheckTarget rejects sinks the writer cannot serve before anything is
//written. GDAL virtual filesystems are not local paths and the antialias
//path re-reads the previous tile from disk.
func CheckTarget(path string, method tiles.Resampling) error {
	if !strings.HasPrefix(path, "/vsi") {
		return nil
	}
	if method == tiles.Antialias {
		return fmt.Errorf("%w: antialias output to %s", ErrUnsupportedOutputTarget, path)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedOutputTarget, path)
}

//Exists reports whether an artifact is on disk
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

//Load decodes a tile artifact
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load tile %s: %w", path, err)
	}
	return img, nil
}

//Save writes img as PNG. The bytes go to a temporary file in the same
//directory that is renamed into place, so readers never see half a tile.
func Save(path string, img image.Image) error {
	if err := CheckTarget(path, ""); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("create tile dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp tile: %w", err)
	}
	tmp := f.Name()
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode tile %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close tile %s: %w", path, err)
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish tile %s: %w", path, err)
	}
	return nil
}

//Remove deletes artifacts, ignoring ones already gone
func Remove(paths ...string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
