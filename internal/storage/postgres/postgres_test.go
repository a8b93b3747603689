package postgres

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/database"
	"github.com/kitchenlens/highlighter/internal/model"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func TestInit_ConnectFailure(t *testing.T) {
	b := New(Dependencies{
		Config: config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "d"},
		ZLog:   zerolog.Nop(),
	})
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to postgres")
	assert.NoError(t, b.Close())
}

func TestInjectedDB(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pg.db"))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, ZLog: zerolog.Nop()})
	require.NoError(t, b.Init())

	require.NoError(t, b.StartSession(&core.Session{ID: "s1", Name: "prep", StartedAt: time.Now()}))
	require.NoError(t, b.RecordBinding(&core.BindingRecord{SessionID: "s1", Name: "Salt", Code: "Q1"}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	var n int64
	require.NoError(t, db.Model(&model.Binding{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
