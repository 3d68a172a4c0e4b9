package telemetry

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freekieb7/grafana-provisioner/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.SlogHandler(slog.LevelInfo))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNewConnection(t *testing.T) {
	t.Run("local_collector", func(t *testing.T) {
		conn, err := newConnection(config.TelemetryConfig{ExporterURL: "http://alloy:4317"})
		require.NoError(t, err)
		assert.Equal(t, "alloy:4317", conn.endpoint)
		assert.Empty(t, conn.dialOpts)
	})

	t.Run("grafana_cloud_requires_credentials", func(t *testing.T) {
		_, err := newConnection(config.TelemetryConfig{ExporterURL: "https://otlp.grafana.net:443"})
		assert.Error(t, err)
	})

	t.Run("grafana_cloud", func(t *testing.T) {
		conn, err := newConnection(config.TelemetryConfig{
			ExporterURL: "https://otlp.grafana.net:443",
			APIKey:      "key",
			InstanceID:  "123",
		})
		require.NoError(t, err)
		assert.Equal(t, "otlp.grafana.net:443", conn.endpoint)
		assert.Len(t, conn.dialOpts, 1)
	})
}

func TestMetrics_RecordProvisioning(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	metrics, err := NewMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordProvisioning(ctx, OutcomeSucceeded, 150*time.Millisecond)
	metrics.RecordProvisioning(ctx, OutcomeSucceeded, 50*time.Millisecond)
	metrics.RecordProvisioning(ctx, OutcomeFailed, 10*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	counts := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != "provisioner_requests_total" {
			continue
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		for _, dp := range sum.DataPoints {
			outcome, _ := dp.Attributes.Value("outcome")
			counts[outcome.AsString()] = dp.Value
		}
	}

	assert.Equal(t, map[string]int64{"succeeded": 2, "failed": 1}, counts)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordProvisioning(context.Background(), OutcomeSkipped, time.Second)
	})
}

func TestFiberMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(FiberMiddleware())
	app.Get("/health", func(c *fiber.Ctx) error {
		assert.True(t, trace.SpanFromContext(c.UserContext()).SpanContext().IsValid())
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusBadGateway)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /health", spans[0].Name())
	assert.Equal(t, "GET /boom", spans[1].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}

func TestOTelHandler_GroupsAndLevels(t *testing.T) {
	h := NewOTelHandler(&slog.HandlerOptions{Level: slog.LevelWarn})
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))

	grouped := h.WithGroup("request").WithAttrs([]slog.Attr{slog.String("id", "abc")}).(*OTelHandler)
	require.Len(t, grouped.attrs, 1)
	assert.Equal(t, "request.id", grouped.attrs[0].Key)
	assert.Empty(t, h.attrs, "parent handler must not be mutated")

	assert.Equal(t, log.SeverityError, convertSlogLevel(slog.LevelError))
	assert.Equal(t, log.SeverityWarn, convertSlogLevel(slog.LevelWarn))
	assert.Equal(t, log.SeverityInfo, convertSlogLevel(slog.LevelInfo))
	assert.Equal(t, log.SeverityDebug, convertSlogLevel(slog.LevelDebug))

	kv := convertSlogAttr(slog.Int("count", 3))
	assert.Equal(t, "count", kv.Key)
	assert.Equal(t, int64(3), kv.Value.AsInt64())
}
