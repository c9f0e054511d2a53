package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"

	"rtiler/tiles"
)

//MBTileVersion mbtiles版本号
const MBTileVersion = "1.2"

//Export 打包任务，把 {z}/{x}/{y}.png 目录写入 mbtiles
type Export struct {
	ID          string
	Name        string
	Description string
	Dir         string
	File        string
	Origin      tiles.Origin
	Min         int
	Max         int
	Total       int64
	Bar         *pb.ProgressBar
	db          *sql.DB
	coords      []tiles.Coord
	bound       orb.Bound
	savingpipe  chan mbTile
}

type mbTile struct {
	Z, X, Row int
	C         []byte
}

//NewExport scans dir for finished tiles
func NewExport(dir, file string, o tiles.Origin) (*Export, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	task := &Export{
		ID:         id,
		Name:       filepath.Base(filepath.Clean(dir)),
		Dir:        dir,
		File:       file,
		Origin:     o,
		Min:        tiles.MaxZoom,
		Max:        -1,
		savingpipe: make(chan mbTile, 64),
	}
	if err := task.scan(); err != nil {
		return nil, err
	}
	if task.Total == 0 {
		return nil, fmt.Errorf("no tiles found under %s", dir)
	}
	return task, nil
}

// parseTilePath accepts z/x/y.png only, so partial layer tiles are skipped
func parseTilePath(rel string) (tiles.Coord, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || filepath.Ext(parts[2]) != ".png" {
		return tiles.Coord{}, false
	}
	z, err1 := strconv.Atoi(parts[0])
	x, err2 := strconv.Atoi(parts[1])
	y, err3 := strconv.Atoi(strings.TrimSuffix(parts[2], ".png"))
	if err1 != nil || err2 != nil || err3 != nil {
		return tiles.Coord{}, false
	}
	if z < 0 || z > tiles.MaxZoom || x < 0 || y < 0 || x >= 1<<uint(z) || y >= 1<<uint(z) {
		return tiles.Coord{}, false
	}
	return tiles.Coord{Z: z, X: x, Y: y}, true
}

func (task *Export) scan() error {
	first := true
	return filepath.WalkDir(task.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(task.Dir, path)
		if err != nil {
			return err
		}
		c, ok := parseTilePath(rel)
		if !ok {
			return nil
		}
		task.coords = append(task.coords, c)
		task.Total++
		task.Min = min(task.Min, c.Z)
		task.Max = max(task.Max, c.Z)
		b := c.Bound(task.Origin)
		if first {
			task.bound = b
			first = false
		} else {
			task.bound = task.bound.Union(b)
		}
		return nil
	})
}

//Bound 范围
func (task *Export) Bound() orb.Bound {
	return task.bound
}

//Center 中心点
func (task *Export) Center() orb.Point {
	return task.bound.Center()
}

//MetaItems 输出
func (task *Export) MetaItems() map[string]string {
	b := task.Bound()
	c := task.Center()
	return map[string]string{
		"id":          task.ID,
		"name":        task.Name,
		"description": task.Description,
		"attribution": `<a href="http://www.atlasdata.cn/" target="_blank">&copy; MapCloud</a>`,
		"basename":    task.Name,
		"format":      "png",
		"type":        "baselayer",
		"pixel_scale": strconv.Itoa(tiles.TileSize),
		"version":     MBTileVersion,
		"bounds":      fmt.Sprintf(`%f,%f,%f,%f`, b.Left(), b.Bottom(), b.Right(), b.Top()),
		"center":      fmt.Sprintf(`%f,%f,%d`, c.X(), c.Y(), (task.Min+task.Max)/2),
		"minzoom":     strconv.Itoa(task.Min),
		"maxzoom":     strconv.Itoa(task.Max),
	}
}

//SetupMBTileTables 初始化配置MBTile库
func (task *Export) SetupMBTileTables() error {
	if task.File == "" {
		outdir := viper.GetString("output.directory")
		os.MkdirAll(outdir, os.ModePerm)
		task.File = filepath.Join(outdir, task.ID+"."+task.Name+".mbtiles")
	}
	os.Remove(task.File)
	db, err := sql.Open("sqlite3", task.File)
	if err != nil {
		return err
	}

	err = optimizeConnection(db)
	if err != nil {
		db.Close()
		return err
	}

	stmts := []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index name on metadata (name);",
		"create unique index tile_index on tiles(zoom_level, tile_column, tile_row);",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return err
		}
	}

	for name, value := range task.MetaItems() {
		_, err := db.Exec("insert into metadata (name, value) values (?, ?)", name, value)
		if err != nil {
			db.Close()
			return err
		}
	}

	task.db = db //保存任务的库连接
	return nil
}

//savePipe 保存瓦片管道
func (task *Export) savePipe(done chan<- error) {
	tx, err := task.db.Begin()
	if err != nil {
		for range task.savingpipe {
		}
		done <- err
		return
	}
	stmt, err := tx.Prepare("insert into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);")
	if err != nil {
		tx.Rollback()
		for range task.savingpipe {
		}
		done <- err
		return
	}
	defer stmt.Close()
	for t := range task.savingpipe {
		if _, err := stmt.Exec(t.Z, t.X, t.Row, t.C); err != nil {
			log.Errorf("save %d/%d/%d tile to mbtiles db error ~ %s", t.Z, t.X, t.Row, err)
		}
	}
	done <- tx.Commit()
}

//Run 执行打包
func (task *Export) Run() error {
	if err := task.SetupMBTileTables(); err != nil {
		return err
	}
	defer task.db.Close()

	if task.Bar == nil {
		task.Bar = pb.New64(task.Total).Prefix("Export : ")
		task.Bar.Start()
	}
	done := make(chan error, 1)
	go task.savePipe(done)

	var readErr error
	for _, c := range task.coords {
		data, err := os.ReadFile(tiles.FinalPath(task.Dir, tiles.DefaultPattern, c))
		if err != nil {
			readErr = err
			break
		}
		z, x, row := tiles.ToLibrary(c, task.Origin)
		task.savingpipe <- mbTile{Z: z, X: x, Row: row, C: data}
		task.Bar.Increment()
	}
	close(task.savingpipe)
	if err := <-done; err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	if err := optimizeDatabase(task.db); err != nil {
		return err
	}
	task.Bar.FinishPrint(fmt.Sprintf("export %s finished, %d tiles -> %s ~", task.ID, task.Total, task.File))
	return nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=0")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=DELETE")
	if err != nil {
		return err
	}
	return nil
}

func optimizeDatabase(db *sql.DB) error {
	_, err := db.Exec("ANALYZE;")
	if err != nil {
		return err
	}

	_, err = db.Exec("VACUUM;")
	if err != nil {
		return err
	}

	return nil
}

func runExport(dir, file string) error {
	if dir == "" {
		return fmt.Errorf("export mode needs a tiles directory, use -d")
	}
	o, err := tiles.ParseOrigin(origin)
	if err != nil {
		return err
	}
	task, err := NewExport(dir, file, o)
	if err != nil {
		return err
	}
	log.Infof("export %s: %d tiles, zoom %d-%d", task.ID, task.Total, task.Min, task.Max)
	return task.Run()
}
