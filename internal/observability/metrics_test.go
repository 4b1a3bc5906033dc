package observability

import (
	"errors"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsBatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncBatchCreated("0xHYDX")
	metrics.IncBatchStopped("0xhydx")
	metrics.IncPeriodExecuted("0xhydx")
	metrics.IncPeriodExecuted("0xhydx")
	metrics.AddDistributedAmount("0xhydx", big.NewInt(2_000))
	metrics.ObserveExecutionDuration(120 * time.Millisecond)
	metrics.SetActiveBatches(3)

	if got := testutil.ToFloat64(metrics.batchesCreatedTotal.WithLabelValues("0xhydx")); got != 1 {
		t.Fatalf("batches_created_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchesStoppedTotal.WithLabelValues("0xhydx")); got != 1 {
		t.Fatalf("batches_stopped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.periodsExecutedTotal.WithLabelValues("0xhydx")); got != 2 {
		t.Fatalf("periods_executed_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.distributedAmountTotal.WithLabelValues("0xhydx")); got != 2_000 {
		t.Fatalf("distributed_amount_total = %v, want 2000", got)
	}
	if got := testutil.ToFloat64(metrics.activeBatches); got != 3 {
		t.Fatalf("active_batches = %v, want 3", got)
	}
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncBatchCreated("0xhydx")
	metrics.AddDistributedAmount("0xhydx", nil)
	metrics.SetActiveBatches(1)
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
