// Package detection routes tracker detection batches to the anchor binder.
package detection

import (
	"errors"

	"github.com/kitchenlens/highlighter/internal/anchor"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/registry"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Binder is the part of anchor.Binder the dispatcher uses.
type Binder interface {
	Bind(e *registry.Entry, pose core.Pose) (*anchor.Binding, error)
}

// Result counts the outcome of one batch.
type Result struct {
	Bound        int `json:"bound"`
	Duplicate    int `json:"duplicate"`
	Unrecognized int `json:"unrecognized"`
	Empty        int `json:"empty"`
	Failed       int `json:"failed"`
}

// Add accumulates r2 into r.
func (r *Result) Add(r2 Result) {
	r.Bound += r2.Bound
	r.Duplicate += r2.Duplicate
	r.Unrecognized += r2.Unrecognized
	r.Empty += r2.Empty
	r.Failed += r2.Failed
}

// Sub returns the counts r gained since earlier.
func (r Result) Sub(earlier Result) Result {
	return Result{
		Bound:        r.Bound - earlier.Bound,
		Duplicate:    r.Duplicate - earlier.Duplicate,
		Unrecognized: r.Unrecognized - earlier.Unrecognized,
		Empty:        r.Empty - earlier.Empty,
		Failed:       r.Failed - earlier.Failed,
	}
}

// Dispatcher filters detections and forwards first sightings to the binder.
// Redelivery is harmless: an already registered entry is skipped.
type Dispatcher struct {
	reg            *registry.Registry
	binder         Binder
	logger         logging.Logger
	onUnrecognized func(core.Code)
}

// New returns a dispatcher. onUnrecognized may be nil.
func New(reg *registry.Registry, binder Binder, logger logging.Logger, onUnrecognized func(core.Code)) *Dispatcher {
	return &Dispatcher{
		reg:            reg,
		binder:         binder,
		logger:         logging.OrNop(logger),
		onUnrecognized: onUnrecognized,
	}
}

// OnDetections processes one batch in order. A failure on one event never
// stops the rest of the batch.
func (d *Dispatcher) OnDetections(events []core.DetectionEvent) Result {
	var res Result
	for _, ev := range events {
		e, err := d.reg.Lookup(ev.Code)
		switch {
		case errors.Is(err, registry.ErrEmptyCode):
			res.Empty++
			continue
		case errors.Is(err, registry.ErrUnrecognized):
			res.Unrecognized++
			d.logger.Warn("unrecognized code", "code", string(ev.Code))
			if d.onUnrecognized != nil {
				d.onUnrecognized(ev.Code)
			}
			continue
		case err != nil:
			res.Failed++
			d.logger.Error("lookup failed", "code", string(ev.Code), "error", err)
			continue
		}

		if d.reg.Registered(e) {
			res.Duplicate++
			continue
		}

		if _, err := d.binder.Bind(e, ev.Pose); err != nil {
			res.Failed++
			d.logger.Error("bind failed", "name", e.Name, "error", err)
			continue
		}
		res.Bound++
	}

	if res.Bound > 0 || res.Unrecognized > 0 || res.Failed > 0 {
		d.logger.Debug("detection batch processed",
			"events", len(events),
			"bound", res.Bound,
			"duplicate", res.Duplicate,
			"unrecognized", res.Unrecognized,
			"failed", res.Failed,
		)
	}
	return res
}
