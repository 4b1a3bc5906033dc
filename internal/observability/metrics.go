package observability

import (
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the executor loop.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	batchesCreatedTotal    *prometheus.CounterVec
	batchesStoppedTotal    *prometheus.CounterVec
	periodsExecutedTotal   *prometheus.CounterVec
	distributedAmountTotal *prometheus.CounterVec
	executionDuration      prometheus.Histogram
	activeBatches          prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bribe_batcher",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bribe_batcher",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		batchesCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bribe_batcher",
				Name:      "batches_created_total",
				Help:      "Total number of batches created, by reward token.",
			},
			[]string{"token"},
		),
		batchesStoppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bribe_batcher",
				Name:      "batches_stopped_total",
				Help:      "Total number of batches stopped by an admin, by reward token.",
			},
			[]string{"token"},
		),
		periodsExecutedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bribe_batcher",
				Name:      "periods_executed_total",
				Help:      "Total number of distribution periods executed, by reward token.",
			},
			[]string{"token"},
		),
		distributedAmountTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bribe_batcher",
				Name:      "distributed_amount_total",
				Help:      "Cumulative distributed amount in base units, by reward token.",
			},
			[]string{"token"},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "bribe_batcher",
				Name:      "execution_duration_seconds",
				Help:      "Duration of one executeBatches call in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		activeBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bribe_batcher",
				Name:      "active_batches",
				Help:      "Current number of batches in the active set.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.batchesCreatedTotal,
		m.batchesStoppedTotal,
		m.periodsExecutedTotal,
		m.distributedAmountTotal,
		m.executionDuration,
		m.activeBatches,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncBatchCreated(token string) {
	if m == nil {
		return
	}
	m.batchesCreatedTotal.WithLabelValues(normalizeToken(token)).Inc()
}

func (m *Metrics) IncBatchStopped(token string) {
	if m == nil {
		return
	}
	m.batchesStoppedTotal.WithLabelValues(normalizeToken(token)).Inc()
}

func (m *Metrics) IncPeriodExecuted(token string) {
	if m == nil {
		return
	}
	m.periodsExecutedTotal.WithLabelValues(normalizeToken(token)).Inc()
}

// AddDistributedAmount accumulates base units as a float counter; precision
// loss above 2^53 is acceptable for dashboards, the journal stays exact.
func (m *Metrics) AddDistributedAmount(token string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.distributedAmountTotal.WithLabelValues(normalizeToken(token)).Add(value)
}

func (m *Metrics) ObserveExecutionDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.executionDuration.Observe(seconds)
}

func (m *Metrics) SetActiveBatches(count int) {
	if m == nil {
		return
	}
	m.activeBatches.Set(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeToken(token string) string {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
