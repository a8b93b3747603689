package worker

import (
	"context"
	"fmt"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kitchenlens/highlighter/internal/dispatcher"
	"github.com/kitchenlens/highlighter/internal/influx"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// RegisterHandlers registers the journal handlers with the dispatcher. All
// of them are buffered so the engine loop never waits on storage. The
// completion record is written once per session, so a full queue blocks
// for it instead of dropping it.
func (j *Journal) RegisterHandlers(d *dispatcher.Dispatcher) {
	size := j.deps.BufferSize
	d.Register(CmdBinding, j.handleBinding, dispatcher.Buffered(size), dispatcher.Logged())
	d.Register(CmdHighlight, j.handleHighlight, dispatcher.Buffered(size), dispatcher.Logged())
	d.Register(CmdCompletion, j.handleCompletion, dispatcher.Buffered(size), dispatcher.Blocking(), dispatcher.Logged())
	d.Register(CmdUnrecognized, j.handleUnrecognized, dispatcher.Buffered(size), dispatcher.Logged())
}

func payload[T any](e dispatcher.Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		return v, fmt.Errorf("%s: %w: %T", e.Command, ErrBadPayload, e.Payload)
	}
	return v, nil
}

func (j *Journal) handleBinding(e dispatcher.Event) (any, error) {
	r, err := payload[core.BindingRecord](e)
	if err != nil {
		return nil, err
	}
	if err := j.deps.Backend.RecordBinding(&r); err != nil {
		return nil, fmt.Errorf("failed to record binding: %w", err)
	}
	j.writePoint(influx.BindingPoint(r))
	return nil, nil
}

func (j *Journal) handleHighlight(e dispatcher.Event) (any, error) {
	r, err := payload[core.HighlightRecord](e)
	if err != nil {
		return nil, err
	}
	if err := j.deps.Backend.RecordHighlight(&r); err != nil {
		return nil, fmt.Errorf("failed to record highlight: %w", err)
	}
	j.writePoint(influx.HighlightPoint(r))
	return nil, nil
}

func (j *Journal) handleCompletion(e dispatcher.Event) (any, error) {
	r, err := payload[core.CompletionRecord](e)
	if err != nil {
		return nil, err
	}
	if err := j.deps.Backend.RecordCompletion(&r); err != nil {
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}
	j.writePoint(influx.CompletionPoint(r))
	return nil, nil
}

func (j *Journal) handleUnrecognized(e dispatcher.Event) (any, error) {
	r, err := payload[core.UnrecognizedRecord](e)
	if err != nil {
		return nil, err
	}
	if err := j.deps.Backend.RecordUnrecognized(&r); err != nil {
		return nil, fmt.Errorf("failed to record unrecognized code: %w", err)
	}
	j.writePoint(influx.UnrecognizedPoint(r))
	return nil, nil
}

// writePoint is best effort; influx failures never fail the record.
func (j *Journal) writePoint(p *influxdb2_write.Point) {
	if j.deps.Influx == nil {
		return
	}
	if err := j.deps.Influx.WritePoint(context.Background(), "", p); err != nil {
		j.log.Warn("influx write failed", "measurement", p.Name(), "error", err)
	}
}
