// Package synth builds map tiles on demand. A tile at or past the direct
// zoom is sampled from its rasters one source at a time; a shallower tile is
// merged from its four children. Finished tiles on disk are the only record
// of progress, so any call can be repeated or resumed.
package synth

import (
	"errors"
	"image"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rtiler/compose"
	"rtiler/metrics"
	"rtiler/raster"
	"rtiler/tiles"
)

//DefaultQuota raster samplings allowed per call
const DefaultQuota = 4

//Result what one CreateTile call did
type Result struct {
	Sampled  int  `json:"sampled"`
	Composed int  `json:"composed"`
	Complete bool `json:"complete"`
	// Empty no source has data at the tile, nothing will ever be written
	Empty bool `json:"empty"`
}

//Engine tile builder shared by all consumers
type Engine struct {
	rasters *raster.Cache
	quota   int

	mu  sync.Mutex
	rnd *rand.Rand

	log *log.Entry
}

//Option configures an Engine
type Option func(*Engine)

//WithRand fixes the child visiting order, for tests
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rnd = r }
}

//WithLogger sets the log entry
func WithLogger(l *log.Entry) Option {
	return func(e *Engine) { e.log = l }
}

//New engine reading rasters through cache. quota bounds the samplings of
//one CreateTile call; a negative quota is treated as zero.
func New(cache *raster.Cache, quota int, opts ...Option) *Engine {
	e := &Engine{
		rasters: cache,
		quota:   max(quota, 0),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log.WithField("component", "synth"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

//Quota samplings allowed per call
func (e *Engine) Quota() int {
	return e.quota
}

//Normalize fills request defaults
func Normalize(req tiles.Request) tiles.Request {
	req = req.At(req.Coord)
	if req.Pattern == "" {
		req.Pattern = tiles.DefaultPattern
	}
	if req.Origin == "" {
		req.Origin = tiles.TopLeft
	}
	if req.Resampling == "" {
		req.Resampling = tiles.DefaultResampling
	}
	for i := range req.Sources {
		if req.Sources[i].Resampling == "" {
			req.Sources[i].Resampling = req.Resampling
		}
	}
	return req
}

//CreateTile builds the requested tile as far as the quota allows. Work left
//over is picked up by a later call for the same tile or an ancestor.
func (e *Engine) CreateTile(req tiles.Request) (Result, error) {
	req = Normalize(req)
	final := req.TilePath()
	if err := compose.CheckTarget(final, req.Resampling); err != nil {
		return Result{}, err
	}
	for _, s := range req.Sources {
		if err := compose.CheckTarget(req.PartialPath(s), s.Resampling); err != nil {
			return Result{}, err
		}
	}

	r := &run{
		Engine: e,
		base:   req,
		quota:  e.quota,
		log:    e.log.WithField("tile", req.Coord.String()),
	}
	if compose.Exists(final) {
		metrics.TilesSkipped.Inc()
		return Result{Complete: true}, nil
	}
	r.log.Debugf("request for tile %s", final)

	pruned, err := r.prune(req)
	if err != nil {
		return r.result(), err
	}
	if len(pruned.Sources) == 0 {
		r.log.Debug("no source covers the tile")
		return Result{Empty: true}, nil
	}
	err = r.dispatch(pruned)
	return r.result(), err
}

func (e *Engine) order() [4]int {
	o := [4]int{0, 1, 2, 3}
	e.mu.Lock()
	e.rnd.Shuffle(len(o), func(i, j int) { o[i], o[j] = o[j], o[i] })
	e.mu.Unlock()
	return o
}

// run state of one CreateTile call
type run struct {
	*Engine
	// base the request as received, with all of its sources
	base     tiles.Request
	quota    int
	sampled  int
	composed int
	log      *log.Entry
}

func (r *run) result() Result {
	return Result{
		Sampled:  r.sampled,
		Composed: r.composed,
		Complete: compose.Exists(r.base.TilePath()),
	}
}

func (r *run) exhausted() bool {
	return r.sampled >= r.quota
}

func (r *run) createTile(req tiles.Request) error {
	if compose.Exists(req.TilePath()) {
		return nil
	}
	pruned, err := r.prune(req)
	if err != nil {
		return err
	}
	if len(pruned.Sources) == 0 {
		return nil
	}
	return r.dispatch(pruned)
}

func (r *run) dispatch(req tiles.Request) error {
	if req.Coord.Z >= req.DirectZoom {
		return r.direct(req)
	}
	return r.children(req)
}

//prune drops the sources without data at the tile
func (r *run) prune(req tiles.Request) (tiles.Request, error) {
	out := req.At(req.Coord)
	out.Sources = out.Sources[:0]
	for _, s := range req.Sources {
		empty, err := r.rasters.IsEmpty(req.Coord, req.RasterPath(s), req.Origin, s.Resampling)
		if err != nil {
			return req, err
		}
		if !empty {
			out.Sources = append(out.Sources, s)
		}
	}
	return out, nil
}

//emptyAt reports whether none of sources has data at c
func (r *run) emptyAt(c tiles.Coord, sources []tiles.Source) (bool, error) {
	for _, s := range sources {
		empty, err := r.rasters.IsEmpty(c, r.base.RasterPath(s), r.base.Origin, s.Resampling)
		if err != nil || !empty {
			return false, err
		}
	}
	return true, nil
}

func (r *run) direct(req tiles.Request) error {
	for _, s := range req.Sources {
		partial := req.PartialPath(s)
		if compose.Exists(partial) {
			continue
		}
		if r.exhausted() {
			r.log.Debugf("quota spent, %s deferred", partial)
			return nil
		}
		if err := r.sample(req, s, partial); err != nil {
			return err
		}
	}
	done, err := r.composeLayers(req)
	if err != nil || !done {
		return err
	}
	return r.cascade(req)
}

func (r *run) sample(req tiles.Request, s tiles.Source, partial string) error {
	err := r.rasters.With(req.RasterPath(s), s.Resampling, func(h *raster.Handle) error {
		img, err := h.SampleTile(req.Coord, req.Origin, s.Resampling)
		if err != nil {
			return err
		}
		return compose.Save(partial, img)
	})
	if err != nil {
		return err
	}
	r.sampled++
	metrics.TilesSampled.Inc()
	r.log.Debugf("sampled %s from %s", partial, s.Name)
	return nil
}

//composeLayers stacks the partial tiles once every source has one
func (r *run) composeLayers(req tiles.Request) (bool, error) {
	final := req.TilePath()
	if compose.Exists(final) {
		return false, nil
	}
	layers := make([]image.Image, 0, len(req.Sources))
	partials := make([]string, 0, len(req.Sources))
	for _, s := range req.Sources {
		p := req.PartialPath(s)
		if !compose.Exists(p) {
			return false, nil
		}
		img, err := compose.Load(p)
		if err != nil {
			return false, err
		}
		layers = append(layers, img)
		partials = append(partials, p)
	}
	if err := compose.Save(final, compose.FromLayers(layers)); err != nil {
		return false, err
	}
	if err := compose.Remove(partials...); err != nil {
		r.log.Warnf("remove partial tiles of %s: %v", final, err)
	}
	r.composed++
	metrics.TilesComposed.WithLabelValues(metrics.KindLayers).Inc()
	r.log.Debugf("created tile from layers: %s", final)
	return true, nil
}

func (r *run) children(req tiles.Request) error {
	if compose.Exists(req.TilePath()) || len(req.Sources) == 0 {
		return nil
	}
	kids := req.Children()
	var errs error
	for _, i := range r.order() {
		if r.exhausted() {
			break
		}
		if err := r.createTile(kids[i]); err != nil {
			errs = multierr.Append(errs, err)
			if errors.Is(err, raster.ErrSourceUnavailable) {
				return errs
			}
		}
	}
	done, err := r.composeChildren(req)
	if err != nil {
		return multierr.Append(errs, err)
	}
	if done {
		errs = multierr.Append(errs, r.cascade(req))
	}
	return errs
}

//composeChildren merges the four children of req once each of them is on
//disk or has no data at all.
func (r *run) composeChildren(req tiles.Request) (bool, error) {
	final := req.TilePath()
	if compose.Exists(final) {
		return false, nil
	}
	var imgs [4]image.Image
	found := false
	for i, c := range req.Coord.Children() {
		path := tiles.FinalPath(req.Dir, req.Pattern, c)
		if compose.Exists(path) {
			img, err := compose.Load(path)
			if err != nil {
				return false, err
			}
			imgs[i] = img
			found = true
			continue
		}
		empty, err := r.emptyAt(c, r.base.Sources)
		if err != nil || !empty {
			return false, err
		}
	}
	if !found {
		return false, nil
	}
	if err := compose.Save(final, compose.FromChildren(imgs, req.Origin, req.Resampling)); err != nil {
		return false, err
	}
	r.composed++
	metrics.TilesComposed.WithLabelValues(metrics.KindChildren).Inc()
	r.log.Debugf("created tile by children: %s", final)
	return true, nil
}

//cascade merges ancestors of a freshly written tile while their children
//are all ready.
func (r *run) cascade(req tiles.Request) error {
	for p, ok := r.base.At(req.Coord).Parent(); ok; p, ok = p.Parent() {
		done, err := r.composeChildren(p)
		if err != nil || !done {
			return err
		}
	}
	return nil
}
