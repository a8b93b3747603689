package main

import (
	"context"
	"time"

	"github.com/kitchenlens/highlighter/internal/api"
	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/internal/storage/factory"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// newBackend creates and initialises the configured journal backend, falling
// back to discarding records when that fails.
func (a *app) newBackend() storage.Backend {
	storageCfg := config.GetStorageConfig()

	backend, err := factory.NewBackend(storageCfg, config.GetDBConfig(), factory.Dependencies{
		Logger: a.logger,
		ZLog:   a.zlog,
	})
	if err != nil {
		a.logger.Error("Failed to create storage backend", "error", err, "type", storageCfg.Type)
		return storage.Discard{}
	}
	if err := backend.Init(); err != nil {
		a.logger.Error("Failed to initialize storage backend", "error", err, "type", storageCfg.Type)
		return storage.Discard{}
	}
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend
}

// uploadExport sends the file the backend wrote at session end to the recipe
// server, when configured to.
func (a *app) uploadExport() {
	cfg := config.GetProcedureConfig()
	if !cfg.UploadExports {
		return
	}
	exp, ok := a.backend.(storage.Exportable)
	if !ok {
		a.logger.Debug("Storage backend produces no export to upload")
		return
	}
	path := exp.ExportedFilePath()
	if path == "" {
		return
	}

	sess := a.sessCtx.Get()
	meta := core.UploadMetadata{
		SessionName: sess.Name,
		RecipeID:    cfg.RecipeID,
		Duration:    a.sessCtx.Elapsed().Seconds(),
		Tag:         sess.ID,
	}
	client := api.New(cfg.URL, cfg.APIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := client.Healthcheck(ctx); err != nil {
		a.logger.Warn("Recipe server unreachable, export not uploaded", "error", err, "path", path)
		return
	}
	if err := client.Upload(ctx, path, meta); err != nil {
		a.logger.Warn("Failed to upload journal export", "error", err, "path", path)
		return
	}
	a.logger.Info("Journal export uploaded", "path", path, "url", cfg.URL)
}
