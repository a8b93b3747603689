// Package sqlitestorage keeps the journal in an in-memory SQLite database and
// snapshots it to disk with VACUUM INTO. Writing is delegated to the gorm
// journal backend; this package only owns the connection and the dump
// schedule.
package sqlitestorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/kitchenlens/highlighter/internal/database"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/storage/gormjournal"
	"github.com/rs/zerolog"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpPath     string // VACUUM INTO target, empty disables dumps
	// DSN overrides the shared in-memory database, mostly for tests.
	DSN string
}

// Backend is a gorm journal over in-memory SQLite.
type Backend struct {
	*gormjournal.Backend
	cfg     Config
	log     logging.Logger
	manager *database.Manager

	stop     chan struct{}
	stopOnce sync.Once
	dumping  sync.WaitGroup
}

// New creates a new SQLite storage backend. The database is opened in Init.
func New(cfg Config, logger logging.Logger, zlog zerolog.Logger) *Backend {
	m := database.NewManager(zlog)
	m.SqliteFilePath = cfg.DumpPath
	return &Backend{
		Backend: gormjournal.New(gormjournal.Dependencies{Logger: logger, ZLog: zlog}, gormjournal.Config{}),
		cfg:     cfg,
		log:     logging.OrNop(logger),
		manager: m,
		stop:    make(chan struct{}),
	}
}

// Init connects, migrates through the embedded backend and starts the dump
// schedule when one is configured.
func (b *Backend) Init() error {
	if err := b.manager.ConnectSQLite(b.cfg.DSN); err != nil {
		return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	b.SetDB(b.manager.DB)

	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.dumping.Add(1)
		go b.dumpEvery(b.cfg.DumpInterval)
	}
	return nil
}

// EndSession flushes the session and dumps it immediately.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	return b.Dump()
}

// Dump snapshots the database to DumpPath. Without a path it is a no-op.
func (b *Backend) Dump() error {
	if b.cfg.DumpPath == "" || b.manager.DB == nil {
		return nil
	}
	return b.manager.DumpMemoryToDisk()
}

// Close stops the dump schedule, drains the embedded backend, writes a last
// snapshot and closes the connection.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.dumping.Wait()

	if err := b.Backend.Close(); err != nil {
		return err
	}
	if err := b.Dump(); err != nil {
		return err
	}
	return b.manager.Close()
}

// dumpEvery flushes pending records and snapshots them each interval.
// VACUUM INTO reads a consistent view, so writers are never paused.
func (b *Backend) dumpEvery(interval time.Duration) {
	defer b.dumping.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.Flush()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping journal to disk", "error", err)
			}
		}
	}
}
