// Package gormjournal implements storage.Backend on top of any gorm
// connection, with in-memory queues drained by a background writer.
package gormjournal

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kitchenlens/highlighter/internal/database"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/model"
	"github.com/kitchenlens/highlighter/internal/queue"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// ErrNoDB is returned by Init when no connection was supplied.
var ErrNoDB = errors.New("gormjournal: no database connection")

// DefaultFlushInterval is used when Config.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// DefaultQueueLimit caps each queue when Config.QueueLimit is zero.
const DefaultQueueLimit = 10_000

// Config tunes the background writer.
type Config struct {
	FlushInterval time.Duration
	QueueLimit    int
}

// Dependencies holds all dependencies for the GORM journal backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger logging.Logger
	// ZLog receives the schema migration logs.
	ZLog zerolog.Logger
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Bindings     *queue.Queue[model.Binding]
	Highlights   *queue.Queue[model.HighlightEvent]
	Completions  *queue.Queue[model.CompletionEvent]
	Unrecognized *queue.Queue[model.UnrecognizedEvent]
}

func newQueues(limit int) *queues {
	return &queues{
		Bindings:     queue.NewBounded[model.Binding](limit),
		Highlights:   queue.NewBounded[model.HighlightEvent](limit),
		Completions:  queue.NewBounded[model.CompletionEvent](limit),
		Unrecognized: queue.NewBounded[model.UnrecognizedEvent](limit),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	cfg    Config
	log    logging.Logger
	queues *queues

	session atomic.Pointer[model.Session]

	flushMu   sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   bool
}

// New creates a new GORM journal backend.
func New(deps Dependencies, cfg Config) *Backend {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}
	return &Backend{
		deps:   deps,
		cfg:    cfg,
		log:    logging.OrNop(deps.Logger),
		queues: newQueues(cfg.QueueLimit),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// DB returns the connection the backend writes to.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB supplies the connection for embedding backends that open their own
// before calling Init.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init migrates the schema and starts the writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDB
	}

	m := database.NewManager(b.deps.ZLog)
	m.DB = b.deps.DB
	if err := m.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.started = true
	go b.writeLoop()
	return nil
}

// Close stops the writer after a final flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
	})
	if b.started {
		<-b.done
	}
	if pending, dropped := b.Pending(), b.Dropped(); pending > 0 || dropped > 0 {
		b.log.Warn("Journal closed with unwritten records", "pending", pending, "dropped", dropped)
	}
	return nil
}

// StartSession inserts the session row synchronously.
func (b *Backend) StartSession(s *core.Session) error {
	row := model.SessionFromCore(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.session.Store(&row)
	return nil
}

// EndSession flushes everything pending and stamps the session's end time.
func (b *Backend) EndSession() error {
	row := b.session.Load()
	if row == nil {
		return storage.ErrNoSession
	}
	b.Flush()

	now := time.Now()
	err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", row.ID).
		Update("ended_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	b.session.Store(nil)
	return nil
}

// RecordBinding converts and queues a binding.
func (b *Backend) RecordBinding(r *core.BindingRecord) error {
	if b.session.Load() == nil {
		return storage.ErrNoSession
	}
	b.queues.Bindings.Push(model.BindingFromCore(*r))
	return nil
}

// RecordHighlight converts and queues a highlight request.
func (b *Backend) RecordHighlight(r *core.HighlightRecord) error {
	if b.session.Load() == nil {
		return storage.ErrNoSession
	}
	b.queues.Highlights.Push(model.HighlightFromCore(*r))
	return nil
}

// RecordCompletion converts and queues the completion record.
func (b *Backend) RecordCompletion(r *core.CompletionRecord) error {
	if b.session.Load() == nil {
		return storage.ErrNoSession
	}
	b.queues.Completions.Push(model.CompletionFromCore(*r))
	return nil
}

// RecordUnrecognized converts and queues an unrecognized sighting.
func (b *Backend) RecordUnrecognized(r *core.UnrecognizedRecord) error {
	if b.session.Load() == nil {
		return storage.ErrNoSession
	}
	b.queues.Unrecognized.Push(model.UnrecognizedFromCore(*r))
	return nil
}

// Pending is the number of queued records not yet written.
func (b *Backend) Pending() int {
	return b.queues.Bindings.Len() + b.queues.Highlights.Len() +
		b.queues.Completions.Len() + b.queues.Unrecognized.Len()
}

// Dropped is the number of records discarded because a queue was full.
func (b *Backend) Dropped() uint64 {
	return b.queues.Bindings.Dropped() + b.queues.Highlights.Dropped() +
		b.queues.Completions.Dropped() + b.queues.Unrecognized.Dropped()
}

// Flush writes every queue to the database now.
func (b *Backend) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	db := b.deps.DB
	writeQueue(db, b.queues.Bindings, "bindings", b.log)
	writeQueue(db, b.queues.Highlights, "highlight events", b.log)
	writeQueue(db, b.queues.Completions, "completion events", b.log)
	writeQueue(db, b.queues.Unrecognized, "unrecognized events", b.log)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Failed batches go back on the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log logging.Logger) {
	if q.Empty() {
		return
	}
	items := q.Drain(0)

	start := time.Now()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error writing journal batch", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Push(items...)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing journal batch", "table", name, "error", err)
		q.Push(items...)
		return
	}
	log.Debug("Wrote journal batch", "table", name, "count", len(items), "duration", time.Since(start))
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
