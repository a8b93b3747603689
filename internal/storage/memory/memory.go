// Package memory keeps a session's journal in memory and exports it as JSON
// when the session ends.
package memory

import (
	"sync"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Backend stores session records in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	bindings       []core.BindingRecord
	highlights     []core.HighlightRecord
	completion     *core.CompletionRecord
	unrecognized   []core.UnrecognizedRecord
	idCounter      uint
	lastExportPath string

	mu sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops anything recorded
// for the previous one.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.bindings = nil
	b.highlights = nil
	b.completion = nil
	b.unrecognized = nil
	b.idCounter = 0
	return nil
}

// EndSession writes the export file.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	return b.exportJSON()
}

// RecordBinding assigns the record an ID and stores it.
func (b *Backend) RecordBinding(r *core.BindingRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.idCounter++
	r.ID = b.idCounter
	b.bindings = append(b.bindings, *r)
	return nil
}

// RecordHighlight stores a highlight request.
func (b *Backend) RecordHighlight(r *core.HighlightRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.highlights = append(b.highlights, *r)
	return nil
}

// RecordCompletion stores the completion record. Only the first one counts.
func (b *Backend) RecordCompletion(r *core.CompletionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	if b.completion == nil {
		cp := *r
		b.completion = &cp
	}
	return nil
}

// RecordUnrecognized stores an unrecognized code sighting.
func (b *Backend) RecordUnrecognized(r *core.UnrecognizedRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return storage.ErrNoSession
	}
	b.unrecognized = append(b.unrecognized, *r)
	return nil
}

// Bindings returns a copy of the bindings recorded so far.
func (b *Backend) Bindings() []core.BindingRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.BindingRecord(nil), b.bindings...)
}

// Highlights returns a copy of the highlight requests recorded so far.
func (b *Backend) Highlights() []core.HighlightRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.HighlightRecord(nil), b.highlights...)
}

// Completion returns the completion record, if any.
func (b *Backend) Completion() (core.CompletionRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.completion == nil {
		return core.CompletionRecord{}, false
	}
	return *b.completion, true
}

// Unrecognized returns a copy of the unrecognized sightings.
func (b *Backend) Unrecognized() []core.UnrecognizedRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.UnrecognizedRecord(nil), b.unrecognized...)
}

// ExportedFilePath is the file written by the last EndSession.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
