// Package postgres implements the storage.Backend interface on PostgreSQL
// with PostGIS, reusing the gorm journal's queues and background writer.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/database"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/storage/gormjournal"
)

// Dependencies holds all dependencies for the Postgres backend.
type Dependencies struct {
	// DB, when set, is used instead of connecting with Config.
	DB     *gorm.DB
	Config config.DBConfig
	Logger logging.Logger
	ZLog   zerolog.Logger
}

// Backend implements storage.Backend on Postgres.
type Backend struct {
	*gormjournal.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a new Postgres backend. It connects in Init.
func New(deps Dependencies) *Backend {
	return &Backend{
		Backend: gormjournal.New(gormjournal.Dependencies{
			DB:     deps.DB,
			Logger: deps.Logger,
			ZLog:   deps.ZLog,
		}, gormjournal.Config{}),
		deps:    deps,
		manager: database.NewManager(deps.ZLog),
	}
}

// Init connects when no DB was injected, then migrates and starts the
// writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		if err := b.manager.ConnectPostgres(b.deps.Config); err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.SetDB(b.manager.DB)
	}
	return b.Backend.Init()
}

// Close stops the writer and closes a connection this backend opened.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.manager.Close()
}
