// Package factory builds the journal backend named by configuration.
package factory

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/logging"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/internal/storage/memory"
	"github.com/kitchenlens/highlighter/internal/storage/postgres"
	sqlitestorage "github.com/kitchenlens/highlighter/internal/storage/sqlite"
	"github.com/kitchenlens/highlighter/internal/storage/websocket"
)

// Storage type names accepted in storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
	TypeNone      = "none"
)

// Dependencies are the loggers handed to the backend.
type Dependencies struct {
	Logger logging.Logger
	ZLog   zerolog.Logger
}

// NewBackend creates a storage backend based on configuration. The backend
// is not initialised.
func NewBackend(cfg config.StorageConfig, db config.DBConfig, deps Dependencies) (storage.Backend, error) {
	switch cfg.Type {
	case TypeMemory:
		return memory.New(cfg.Memory), nil
	case TypeSQLite:
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.Path,
		}, deps.Logger, deps.ZLog), nil
	case TypePostgres:
		return postgres.New(postgres.Dependencies{
			Config: db,
			Logger: deps.Logger,
			ZLog:   deps.ZLog,
		}), nil
	case TypeWebSocket:
		if cfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("websocket storage needs storage.websocket.url")
		}
		return websocket.New(websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, deps.Logger), nil
	case TypeNone, "":
		return storage.Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
