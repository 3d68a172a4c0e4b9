package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	OutcomeInvalid   Outcome = "invalid"
)

// Metrics holds the provisioning instruments. Instruments created before telemetry starts
// are no-ops and begin recording once a meter provider is installed.
type Metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter(
		"provisioner_requests_total",
		metric.WithDescription("Total number of provisioning requests by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"provisioner_duration_seconds",
		metric.WithDescription("Time spent provisioning a folder, including Grafana calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Metrics{requests: requests, duration: duration}, nil
}

func (m *Metrics) RecordProvisioning(ctx context.Context, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
