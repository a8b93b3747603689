package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kitchenlens/highlighter/internal/dispatcher"

type metrics struct {
	processed metric.Int64Counter
	failed    metric.Int64Counter
	dropped   metric.Int64Counter
}

// newMetrics registers the dispatcher instruments; lengths is sampled for the
// per-command queue gauge.
func newMetrics(lengths func() map[string]int) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	if out.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Buffered events handled")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if out.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Buffered events whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	if out.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Events rejected by a full queue")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	gauge, err := m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting per buffered command"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range lengths() {
			o.ObserveInt64(gauge, int64(n), metric.WithAttributes(attribute.String("command", cmd)))
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}
	return out, nil
}

func (m *metrics) handled(command string, err error) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	m.processed.Add(context.Background(), 1, attrs)
	if err != nil {
		m.failed.Add(context.Background(), 1, attrs)
	}
}

func (m *metrics) droppedOne(command string) {
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("command", command)))
}
