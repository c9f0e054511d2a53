// Package service turns queue messages into tile builds and raster info
// lookups. Handlers never ask for a redelivery: a failed message is logged
// and dropped, the sender resends if it still needs the tile.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"

	"rtiler/metrics"
	"rtiler/raster"
	"rtiler/synth"
	"rtiler/tiles"
)

//ErrInvalidRequest the message cannot be decoded or fails validation
var ErrInvalidRequest = errors.New("invalid request")

//Service handles tile and info requests
type Service struct {
	engine         *synth.Engine
	rasters        *raster.Cache
	dirs           Dirs
	defaultPattern string
	validate       *validator.Validate
	log            *log.Entry
}

//New service over engine and the raster cache it reads through
func New(engine *synth.Engine, rasters *raster.Cache, dirs Dirs, defaultPattern string) *Service {
	return &Service{
		engine:         engine,
		rasters:        rasters,
		dirs:           dirs,
		defaultPattern: defaultPattern,
		validate:       validator.New(),
		log:            log.WithField("component", "service"),
	}
}

//DecodeTileCreate parses and validates a tile request body
func (s *Service) DecodeTileCreate(body []byte) (tiles.Request, error) {
	var m TileCreateRequest
	if err := json.Unmarshal(body, &m); err != nil {
		return tiles.Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.validate.Struct(m); err != nil {
		return tiles.Request{}, fmt.Errorf("%w: %s", ErrInvalidRequest, validationMessage(err))
	}
	req, err := m.toRequest(s.dirs, s.defaultPattern)
	if err != nil {
		return tiles.Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}

//CreateTile runs one engine call for req
func (s *Service) CreateTile(ctx context.Context, req tiles.Request) (synth.Result, error) {
	if err := ctx.Err(); err != nil {
		return synth.Result{}, err
	}
	start := time.Now()
	res, err := s.engine.CreateTile(req)
	metrics.RequestDuration.WithLabelValues("tile").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues("tile", "error").Inc()
		return res, err
	}
	metrics.Requests.WithLabelValues("tile", "ok").Inc()
	s.log.WithFields(log.Fields{
		"tile":     req.Coord.String(),
		"sampled":  res.Sampled,
		"composed": res.Composed,
	}).Debugf("tile request done, complete=%v empty=%v", res.Complete, res.Empty)
	return res, nil
}

//HandleTileCreate handles a TILE_CREATE_REQUEST body
func (s *Service) HandleTileCreate(ctx context.Context, body []byte) error {
	req, err := s.DecodeTileCreate(body)
	if err != nil {
		metrics.Requests.WithLabelValues("tile", "invalid").Inc()
		s.log.Errorf("invalid tile request %s: %v", body, err)
		return err
	}
	s.log.Debugf("receive TILE_CREATE_REQUEST: %s", body)
	if _, err := s.CreateTile(ctx, req); err != nil {
		s.log.Errorf("create tile %s with request %s: %v", req.Coord, body, err)
		return err
	}
	return nil
}

//Info looks up the zoom window and extent of a raster
func (s *Service) Info(ctx context.Context, ir InfoRequest) (InfoResponse, error) {
	if err := ctx.Err(); err != nil {
		return InfoResponse{}, err
	}
	if ir.ID == "" {
		ir.ID = shortid.MustGenerate()
	}
	if ir.File == "" {
		ir.File = DefaultRasterFile
	}
	start := time.Now()
	info, err := s.rasters.Info(tiles.RasterPath(s.dirs.Resolve(ir.Directory), ir.File))
	metrics.RequestDuration.WithLabelValues("info").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Requests.WithLabelValues("info", "error").Inc()
		return InfoResponse{}, err
	}
	metrics.Requests.WithLabelValues("info", "ok").Inc()
	return newInfoResponse(ir.ID, ir.File, info), nil
}

//HandleInfo handles an INFO_REQUEST body and returns the response body
func (s *Service) HandleInfo(ctx context.Context, body []byte) ([]byte, error) {
	var ir InfoRequest
	if err := json.Unmarshal(body, &ir); err != nil {
		metrics.Requests.WithLabelValues("info", "invalid").Inc()
		s.log.Errorf("invalid info request %s: %v", body, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	s.log.Debugf("receive INFO_REQUEST: %s", body)
	resp, err := s.Info(ctx, ir)
	if err != nil {
		s.log.Errorf("raster info for %s: %v", body, err)
		return nil, err
	}
	return json.Marshal(resp)
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: is required", fe.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of %s", fe.Namespace(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}
