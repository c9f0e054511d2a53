package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"rtiler/raster"
	"rtiler/service"
	"rtiler/synth"
	"rtiler/tiles"
)

//Service what the admin endpoints call into
type Service interface {
	DecodeTileCreate(body []byte) (tiles.Request, error)
	CreateTile(ctx context.Context, req tiles.Request) (synth.Result, error)
	Info(ctx context.Context, ir service.InfoRequest) (service.InfoResponse, error)
}

//Handler admin endpoints
type Handler struct {
	svc Service
}

//NewRouter gin engine serving health, metrics, info lookups and tile builds
func NewRouter(svc Service) *gin.Engine {
	h := &Handler{svc: svc}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger())

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", h.Healthz)
	v1.GET("/info", h.Info)
	v1.POST("/tile", h.Tile)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"ip":      c.ClientIP(),
			"latency": time.Since(start),
		}).Info("request")
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *Handler) Info(c *gin.Context) {
	ir := service.InfoRequest{
		ID:        c.Query("id"),
		File:      c.Query("file"),
		Directory: c.Query("directory"),
	}
	resp, err := h.svc.Info(c.Request.Context(), ir)
	if err != nil {
		c.JSON(status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Tile(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.svc.DecodeTileCreate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.CreateTile(c.Request.Context(), req)
	if err != nil {
		c.JSON(status(err), gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": req.TilePath(), "result": res})
}

func status(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, raster.ErrSourceUnavailable):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
