package gormjournal

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kitchenlens/highlighter/internal/database"
	"github.com/kitchenlens/highlighter/internal/model"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newBackend(t *testing.T, interval time.Duration) *Backend {
	t.Helper()
	b := New(Dependencies{DB: openDB(t), ZLog: zerolog.Nop()}, Config{FlushInterval: interval})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func session(id string) *core.Session {
	return &core.Session{ID: id, Name: "prep", StartedAt: time.Now(), Objects: 2}
}

func count[T any](t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(new(T)).Count(&n).Error)
	return n
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{}, Config{})
	assert.ErrorIs(t, b.Init(), ErrNoDB)
	assert.NoError(t, b.Close())
}

func TestRecordWithoutSession(t *testing.T) {
	b := newBackend(t, time.Hour)

	assert.ErrorIs(t, b.RecordBinding(&core.BindingRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordHighlight(&core.HighlightRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordCompletion(&core.CompletionRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordUnrecognized(&core.UnrecognizedRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), storage.ErrNoSession)
}

func TestFlushWritesAllTables(t *testing.T) {
	b := newBackend(t, time.Hour)
	require.NoError(t, b.StartSession(session("s1")))

	require.NoError(t, b.RecordBinding(&core.BindingRecord{
		SessionID: "s1", Time: time.Now(), Code: "Q1", Name: "Salt", AnchorID: "a1",
		Pose: core.Pose{Position: core.Position3D{X: 1, Y: 2, Z: 3}, Rotation: core.IdentityRotation},
	}))
	require.NoError(t, b.RecordHighlight(&core.HighlightRecord{SessionID: "s1", Time: time.Now(), Name: "Salt", Show: true, Outcome: core.OutcomeOK}))
	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{SessionID: "s1", Time: time.Now(), Registered: 2}))
	require.NoError(t, b.RecordUnrecognized(&core.UnrecognizedRecord{SessionID: "s1", Time: time.Now(), Code: "ZZ"}))
	assert.Equal(t, 4, b.Pending())

	b.Flush()
	assert.Equal(t, 0, b.Pending())

	db := b.DB()
	assert.Equal(t, int64(1), count[model.Session](t, db))
	assert.Equal(t, int64(1), count[model.Binding](t, db))
	assert.Equal(t, int64(1), count[model.HighlightEvent](t, db))
	assert.Equal(t, int64(1), count[model.CompletionEvent](t, db))
	assert.Equal(t, int64(1), count[model.UnrecognizedEvent](t, db))

	var stored model.Binding
	require.NoError(t, db.First(&stored).Error)
	var pose core.Pose
	require.NoError(t, json.Unmarshal(stored.Pose, &pose))
	assert.Equal(t, core.Position3D{X: 1, Y: 2, Z: 3}, pose.Position)
	assert.Equal(t, "Salt", stored.Name)
}

func TestBackgroundWriter(t *testing.T) {
	b := newBackend(t, 10*time.Millisecond)
	require.NoError(t, b.StartSession(session("s2")))
	require.NoError(t, b.RecordHighlight(&core.HighlightRecord{SessionID: "s2", Name: "Sugar"}))

	assert.Eventually(t, func() bool {
		return b.Pending() == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), count[model.HighlightEvent](t, b.DB()))
}

func TestEndSessionFlushesAndStamps(t *testing.T) {
	b := newBackend(t, time.Hour)
	require.NoError(t, b.StartSession(session("s3")))
	require.NoError(t, b.RecordUnrecognized(&core.UnrecognizedRecord{SessionID: "s3", Code: "Q9"}))

	require.NoError(t, b.EndSession())
	assert.Equal(t, int64(1), count[model.UnrecognizedEvent](t, b.DB()))

	var row model.Session
	require.NoError(t, b.DB().Where("session_id = ?", "s3").First(&row).Error)
	assert.NotNil(t, row.EndedAt)

	assert.ErrorIs(t, b.RecordUnrecognized(&core.UnrecognizedRecord{}), storage.ErrNoSession)
}

func TestCloseFlushes(t *testing.T) {
	db := openDB(t)
	b := New(Dependencies{DB: db, ZLog: zerolog.Nop()}, Config{FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(session("s4")))
	require.NoError(t, b.RecordHighlight(&core.HighlightRecord{SessionID: "s4", Name: "Salt"}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, int64(1), count[model.HighlightEvent](t, db))
}

func TestFailedBatchIsRequeued(t *testing.T) {
	b := newBackend(t, time.Hour)
	require.NoError(t, b.StartSession(session("s5")))

	// completion_events.session_id is unique
	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{SessionID: "s5"}))
	b.Flush()
	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{SessionID: "s5"}))
	b.Flush()

	assert.Equal(t, 1, b.Pending())
	assert.Equal(t, int64(1), count[model.CompletionEvent](t, b.DB()))
}
