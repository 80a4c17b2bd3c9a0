// Package telemetry wires OpenTelemetry metrics for the agent.
//
// Metrics are off by default; Init installs a no-op provider unless enabled.
// When enabled, counters are written to stdout every 30 seconds.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const instrumentationScope = "github.com/ukydev/carbuddy"

// Init configures the global meter provider and returns its shutdown hook.
func Init(ctx context.Context, enabled bool, serviceName string) (func(context.Context) error, error) {
	if !enabled {
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Meter returns a meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationScope)
}

// Metrics holds the agent's counters.
type Metrics struct {
	vehicles      metric.Int64Counter
	notifications metric.Int64Counter
	jobs          metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	vehicles, err := meter.Int64Counter("carbuddy.vehicles.analyzed",
		metric.WithDescription("Vehicles processed by the daily check"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: vehicles counter: %w", err)
	}
	notifications, err := meter.Int64Counter("carbuddy.notifications",
		metric.WithDescription("Notification attempts by channel and status"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: notifications counter: %w", err)
	}
	jobs, err := meter.Int64Counter("carbuddy.jobs.runs",
		metric.WithDescription("Scheduled job runs by outcome"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: jobs counter: %w", err)
	}
	return &Metrics{vehicles: vehicles, notifications: notifications, jobs: jobs}, nil
}

// VehicleAnalyzed counts one vehicle with outcome "ok" or "failed".
func (m *Metrics) VehicleAnalyzed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.vehicles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Notification counts one delivery attempt.
func (m *Metrics) Notification(ctx context.Context, channel, status string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	))
}

// JobRun counts one scheduled job execution.
func (m *Metrics) JobRun(ctx context.Context, job, outcome string) {
	if m == nil {
		return
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
	))
}
