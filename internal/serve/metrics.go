package serve

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chunkplan/internal/chunkorder"
)

// Metrics holds the Prometheus collectors for the chunk order endpoint.
// Each instance owns its registry so several apps can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	filesReturned   *prometheus.HistogramVec
	manifestMisses  prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chunkplan",
				Name:      "chunk_requests_total",
				Help:      "Chunk order requests by asset kind and status",
			},
			[]string{"kind", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chunkplan",
				Name:      "chunk_request_duration_seconds",
				Help:      "Chunk order request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		filesReturned: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chunkplan",
				Name:      "chunk_files_returned",
				Help:      "Number of files in a chunk order response",
				Buckets:   prometheus.LinearBuckets(1, 2, 8),
			},
			[]string{"kind"},
		),
		manifestMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkplan",
			Name:      "manifest_unavailable_total",
			Help:      "Public path requests answered without a manifest",
		}),
	}
}

// Middleware records request count and latency for /chunks routes.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		kind := "invalid"
		if k, kerr := chunkorder.ParseKind(c.Query("kind")); kerr == nil {
			kind = string(k)
		}
		status := c.Response().StatusCode()
		if err != nil {
			// ErrorHandler has not run yet
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		m.requestsTotal.WithLabelValues(kind, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) observeFiles(kind string, n int) {
	if m == nil {
		return
	}
	m.filesReturned.WithLabelValues(kind).Observe(float64(n))
}

func (m *Metrics) manifestMiss() {
	if m == nil {
		return
	}
	m.manifestMisses.Inc()
}
