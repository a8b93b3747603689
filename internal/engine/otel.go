package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/kitchenlens/highlighter/internal/engine"

type instruments struct {
	detections metric.Int64Counter
	bindings   metric.Int64Counter
	highlights metric.Int64Counter
	queueDepth metric.Int64ObservableGauge
}

func newInstruments(depth func() int) (*instruments, error) {
	m := otel.Meter(instrumentationName)
	ins := &instruments{}

	var err error
	ins.detections, err = m.Int64Counter(
		"engine.detections",
		metric.WithDescription("Detection events processed, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating detections counter: %w", err)
	}

	ins.bindings, err = m.Int64Counter(
		"engine.bindings",
		metric.WithDescription("Anchors created"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bindings counter: %w", err)
	}

	ins.highlights, err = m.Int64Counter(
		"engine.highlight.requests",
		metric.WithDescription("SetVisible calls, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating highlight counter: %w", err)
	}

	ins.queueDepth, err = m.Int64ObservableGauge(
		"engine.loop.queue",
		metric.WithDescription("Closures waiting for the engine loop"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(ins.queueDepth, int64(depth()))
			return nil
		},
		ins.queueDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	return ins, nil
}

func (i *instruments) countDetections(res detectionCounts) {
	ctx := context.Background()
	for outcome, n := range res {
		if n > 0 {
			i.detections.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}
}

func (i *instruments) countHighlight(outcome string) {
	i.highlights.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

type detectionCounts map[string]int
