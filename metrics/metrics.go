package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtiler_tiles_sampled_total",
		Help: "Total number of per-source tiles sampled straight from a raster",
	})

	TilesComposed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtiler_tiles_composed_total",
		Help: "Total number of final tiles written, by how they were built",
	}, []string{"kind"})

	TilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtiler_tiles_skipped_total",
		Help: "Total number of requested tiles that already existed",
	})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtiler_requests_total",
		Help: "Total number of handled requests by kind and result",
	}, []string{"kind", "result"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtiler_request_duration_seconds",
		Help:    "Time spent handling one request",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	RasterOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtiler_raster_open",
		Help: "Rasters currently held open by the cache",
	})
)

// Composition kinds
const (
	KindLayers   = "layers"
	KindChildren = "children"
)
