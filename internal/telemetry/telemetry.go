// Package telemetry instruments the run loop with OpenTelemetry
// counters and histograms for dispatch latency, queue depth, and
// dropped packets. There is no collector on the other end of this
// standalone core, so metrics are periodically exported to the
// process's own log stream via the stdout exporter rather than OTLP.
package telemetry

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the run loop's instruments. The run loop records to
// DispatchLatency, PacketsHandled, TimersFired and PacketsDropped;
// EventsDrained and QueueDepth are registered but nothing records to them.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	DispatchLatency metric.Float64Histogram
	PacketsHandled  metric.Int64Counter
	TimersFired     metric.Int64Counter
	EventsDrained   metric.Int64Counter
	PacketsDropped  metric.Int64Counter
	QueueDepth      metric.Int64UpDownCounter
}

// New builds a Metrics bound to a meter provider that exports to w
// every interval.
func New(w io.Writer, interval time.Duration) (*Metrics, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	meter := provider.Meter("wireloop/runloop")

	m := &Metrics{provider: provider}

	if m.DispatchLatency, err = meter.Float64Histogram(
		"wireloop.dispatch.latency_seconds",
		metric.WithDescription("wall-clock seconds spent in dispatch_packet"),
	); err != nil {
		return nil, err
	}
	if m.PacketsHandled, err = meter.Int64Counter(
		"wireloop.packets.handled",
		metric.WithDescription("packets handed to the session layer"),
	); err != nil {
		return nil, err
	}
	if m.TimersFired, err = meter.Int64Counter(
		"wireloop.timers.fired",
		metric.WithDescription("timer callbacks fired by timer.Manager.Advance"),
	); err != nil {
		return nil, err
	}
	if m.EventsDrained, err = meter.Int64Counter(
		"wireloop.events.drained",
		metric.WithDescription("event handlers run by event.Manager.Drain"),
	); err != nil {
		return nil, err
	}
	if m.PacketsDropped, err = meter.Int64Counter(
		"wireloop.packets.dropped",
		metric.WithDescription("packets dropped by a packet source"),
	); err != nil {
		return nil, err
	}
	if m.QueueDepth, err = meter.Int64UpDownCounter(
		"wireloop.events.queue_depth",
		metric.WithDescription("events currently queued awaiting drain"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
