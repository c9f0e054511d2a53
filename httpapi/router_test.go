package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtiler/raster"
	"rtiler/service"
	"rtiler/synth"
	"rtiler/tiles"
)

type stubService struct {
	created []tiles.Request
}

func (s *stubService) DecodeTileCreate(body []byte) (tiles.Request, error) {
	if !strings.HasPrefix(string(body), "{") {
		return tiles.Request{}, fmt.Errorf("%w: not json", service.ErrInvalidRequest)
	}
	return tiles.Request{Coord: tiles.Coord{Z: 1}, Dir: "/t", Pattern: tiles.DefaultPattern}, nil
}

func (s *stubService) CreateTile(_ context.Context, req tiles.Request) (synth.Result, error) {
	s.created = append(s.created, req)
	return synth.Result{Sampled: 1, Complete: true}, nil
}

func (s *stubService) Info(_ context.Context, ir service.InfoRequest) (service.InfoResponse, error) {
	if ir.File == "missing.tif" {
		return service.InfoResponse{}, fmt.Errorf("%w: missing.tif", raster.ErrSourceUnavailable)
	}
	return service.InfoResponse{ID: "x", File: ir.File, MinZoom: 3, MaxZoom: 9}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(NewRouter(&stubService{}), http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(NewRouter(&stubService{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestInfo(t *testing.T) {
	r := NewRouter(&stubService{})
	w := do(r, http.MethodGet, "/api/v1/info?file=a.tif&directory=/d", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp service.InfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a.tif", resp.File)
	assert.Equal(t, 9, resp.MaxZoom)

	w = do(r, http.MethodGet, "/api/v1/info?file=missing.tif", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTile(t *testing.T) {
	svc := &stubService{}
	r := NewRouter(svc)
	w := do(r, http.MethodPost, "/api/v1/tile", `{"z":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.created, 1)

	var body struct {
		Path   string       `json:"path"`
		Result synth.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/t/1/0/0.png", body.Path)
	assert.True(t, body.Result.Complete)

	w = do(r, http.MethodPost, "/api/v1/tile", `nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, svc.created, 1)
}
