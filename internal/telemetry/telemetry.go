package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/freekieb7/grafana-provisioner/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const instrumentationName = "github.com/freekieb7/grafana-provisioner"

type Telemetry struct {
	tracerProvider *trace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
	meterProvider  *sdkmetric.MeterProvider
	config         config.TelemetryConfig
}

// New creates a telemetry instance with OTLP gRPC exporters for traces, logs and metrics.
// When disabled the global no-op providers stay in place.
func New(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	if !cfg.Enabled || cfg.ExporterURL == "" {
		return &Telemetry{config: cfg}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	conn, err := newConnection(cfg)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(conn.endpoint),
		otlptracegrpc.WithTLSCredentials(conn.creds),
		otlptracegrpc.WithDialOption(conn.dialOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(conn.endpoint),
		otlploggrpc.WithTLSCredentials(conn.creds),
		otlploggrpc.WithDialOption(conn.dialOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(conn.endpoint),
		otlpmetricgrpc.WithTLSCredentials(conn.creds),
		otlpmetricgrpc.WithDialOption(conn.dialOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SamplingRatio))),
	)

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		tracerProvider: tp,
		loggerProvider: lp,
		meterProvider:  mp,
		config:         cfg,
	}, nil
}

type connection struct {
	endpoint string
	creds    credentials.TransportCredentials
	dialOpts []grpc.DialOption
}

// newConnection derives the exporter endpoint. Anything outside grafana.net is treated as a
// local collector (Alloy) without TLS; Grafana Cloud needs TLS and the instance credentials.
func newConnection(cfg config.TelemetryConfig) (connection, error) {
	endpoint := strings.TrimPrefix(cfg.ExporterURL, "grpc://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	if !strings.Contains(endpoint, "grafana.net") {
		return connection{endpoint: endpoint, creds: insecure.NewCredentials()}, nil
	}

	if cfg.APIKey == "" || cfg.InstanceID == "" {
		return connection{}, errors.New("grafana cloud API key and instance ID are required for remote endpoint")
	}

	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.InstanceID+":"+cfg.APIKey))
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})

	return connection{
		endpoint: endpoint,
		creds:    creds,
		dialOpts: []grpc.DialOption{
			grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", auth)
				return invoker(ctx, method, req, reply, cc, opts...)
			}),
		},
	}, nil
}

// Shutdown flushes and stops every provider that was started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}

	if t.loggerProvider != nil {
		if err := t.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("log provider shutdown: %w", err))
		}
	}

	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// IsEnabled returns whether exporters are running.
func (t *Telemetry) IsEnabled() bool {
	return t.config.Enabled && t.tracerProvider != nil
}

// SlogHandler bridges slog records into the OTel log pipeline, or returns nil when disabled.
func (t *Telemetry) SlogHandler(level slog.Leveler) slog.Handler {
	if !t.IsEnabled() {
		return nil
	}
	return NewOTelHandler(&slog.HandlerOptions{Level: level, AddSource: true})
}

// Tracer returns the tracer used for provisioning spans.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName)
}
