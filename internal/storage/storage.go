// Package storage defines the journal backends engine records are written to.
//
// Backends are write-only: nothing in the engine reads a journal back.
package storage

import (
	"errors"

	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrNoSession is returned when a record arrives before StartSession.
var ErrNoSession = errors.New("no session started")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Record writing
	RecordBinding(r *core.BindingRecord) error
	RecordHighlight(r *core.HighlightRecord) error
	RecordCompletion(r *core.CompletionRecord) error
	RecordUnrecognized(r *core.UnrecognizedRecord) error
}

// Exportable is an optional interface for backends that produce a file at
// the end of a session.
type Exportable interface {
	ExportedFilePath() string
}

// Discard is the backend used when journaling is disabled.
type Discard struct{}

func (Discard) Init() error                                       { return nil }
func (Discard) Close() error                                      { return nil }
func (Discard) StartSession(*core.Session) error                  { return nil }
func (Discard) EndSession() error                                 { return nil }
func (Discard) RecordBinding(*core.BindingRecord) error           { return nil }
func (Discard) RecordHighlight(*core.HighlightRecord) error       { return nil }
func (Discard) RecordCompletion(*core.CompletionRecord) error     { return nil }
func (Discard) RecordUnrecognized(*core.UnrecognizedRecord) error { return nil }
