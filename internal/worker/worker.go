// Package worker journals engine records asynchronously. The engine calls
// Journal from its loop goroutine; records are queued on the dispatcher and
// written to the storage backend and influx by its buffered workers.
package worker

import (
	"context"
	"errors"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kitchenlens/highlighter/internal/dispatcher"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Journal commands.
const (
	CmdBinding      = ":JOURNAL:BINDING:"
	CmdHighlight    = ":JOURNAL:HIGHLIGHT:"
	CmdCompletion   = ":JOURNAL:COMPLETION:"
	CmdUnrecognized = ":JOURNAL:UNRECOGNIZED:"
)

// ErrBadPayload is returned by a handler whose event carries the wrong type.
var ErrBadPayload = errors.New("unexpected journal payload")

// PointWriter is the influx sink. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the journal
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	Backend    storage.Backend
	// Influx is optional.
	Influx PointWriter
	Logger logging.Logger
	// BufferSize is the per-command queue length; 0 means 1024.
	BufferSize int
}

// Journal implements the engine's record sink on top of the dispatcher.
type Journal struct {
	deps Dependencies
	log  logging.Logger
}

// NewJournal creates a journal and registers its handlers.
func NewJournal(deps Dependencies) *Journal {
	if deps.Backend == nil {
		deps.Backend = storage.Discard{}
	}
	if deps.BufferSize <= 0 {
		deps.BufferSize = 1024
	}
	j := &Journal{deps: deps, log: logging.OrNop(deps.Logger)}
	j.RegisterHandlers(deps.Dispatcher)
	return j
}

// RecordBinding queues a binding record.
func (j *Journal) RecordBinding(r core.BindingRecord) {
	j.dispatch(CmdBinding, r)
}

// RecordHighlight queues a highlight record.
func (j *Journal) RecordHighlight(r core.HighlightRecord) {
	j.dispatch(CmdHighlight, r)
}

// RecordCompletion queues the completion record.
func (j *Journal) RecordCompletion(r core.CompletionRecord) {
	j.dispatch(CmdCompletion, r)
}

// RecordUnrecognized queues an unrecognized sighting.
func (j *Journal) RecordUnrecognized(r core.UnrecognizedRecord) {
	j.dispatch(CmdUnrecognized, r)
}

// dispatch never blocks: a full queue drops the record and says so.
func (j *Journal) dispatch(cmd string, payload any) {
	if _, err := j.deps.Dispatcher.Dispatch(dispatcher.Event{Command: cmd, Payload: payload}); err != nil {
		j.log.Warn("journal record dropped", "command", cmd, "error", err)
	}
}
