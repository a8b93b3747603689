package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenlens/highlighter/internal/config"
	"github.com/kitchenlens/highlighter/internal/storage"
	"github.com/kitchenlens/highlighter/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Exportable interface
var _ storage.Exportable = (*Backend)(nil)

func testSession() *core.Session {
	return &core.Session{
		ID:        "0b7d6a3e-5f2c-4c1e-9a53-3f1c1f7d2a10",
		Name:      "morning prep",
		StartedAt: time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
		Objects:   2,
	}
}

func TestRecordBeforeStart(t *testing.T) {
	b := New(config.MemoryConfig{})

	assert.ErrorIs(t, b.RecordBinding(&core.BindingRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordHighlight(&core.HighlightRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordCompletion(&core.CompletionRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordUnrecognized(&core.UnrecognizedRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), storage.ErrNoSession)
}

func TestRecordBinding_AssignsIDs(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	r1 := &core.BindingRecord{Name: "Salt"}
	r2 := &core.BindingRecord{Name: "Sugar"}
	require.NoError(t, b.RecordBinding(r1))
	require.NoError(t, b.RecordBinding(r2))

	assert.Equal(t, uint(1), r1.ID)
	assert.Equal(t, uint(2), r2.ID)
	assert.Len(t, b.Bindings(), 2)
}

func TestStartSession_Resets(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordBinding(&core.BindingRecord{Name: "Salt"}))
	require.NoError(t, b.RecordHighlight(&core.HighlightRecord{Name: "Salt"}))
	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{Registered: 1}))

	require.NoError(t, b.StartSession(testSession()))
	assert.Empty(t, b.Bindings())
	assert.Empty(t, b.Highlights())
	_, ok := b.Completion()
	assert.False(t, ok)

	r := &core.BindingRecord{}
	require.NoError(t, b.RecordBinding(r))
	assert.Equal(t, uint(1), r.ID)
}

func TestRecordCompletion_FirstWins(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{Registered: 2}))
	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{Registered: 3}))

	c, ok := b.Completion()
	require.True(t, ok)
	assert.Equal(t, 2, c.Registered)
}

func TestConcurrentRecords(t *testing.T) {
	b := New(config.MemoryConfig{})
	require.NoError(t, b.StartSession(testSession()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.RecordHighlight(&core.HighlightRecord{Name: "Salt", Show: true})
			_ = b.RecordUnrecognized(&core.UnrecognizedRecord{Code: "X"})
		}()
	}
	wg.Wait()

	assert.Len(t, b.Highlights(), 50)
	assert.Len(t, b.Unrecognized(), 50)
}

func TestEndSession_Export(t *testing.T) {
	tests := []struct {
		name     string
		compress bool
		suffix   string
	}{
		{"plain", false, ".json"},
		{"gzip", true, ".json.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: tt.compress})
			require.NoError(t, b.StartSession(testSession()))

			require.NoError(t, b.RecordBinding(&core.BindingRecord{
				Name: "Salt", Code: "Q1",
				Pose: core.Pose{Position: core.Position3D{X: 1}, Rotation: core.IdentityRotation},
			}))
			require.NoError(t, b.RecordHighlight(&core.HighlightRecord{Name: "Pepper", Outcome: core.OutcomeNotFound}))
			require.NoError(t, b.RecordUnrecognized(&core.UnrecognizedRecord{Code: "ZZZ"}))

			require.NoError(t, b.EndSession())

			path := b.ExportedFilePath()
			assert.Equal(t, dir, filepath.Dir(path))
			assert.Equal(t, "morning_prep_20261019_083000"+tt.suffix, filepath.Base(path))
			assert.True(t, strings.HasSuffix(path, tt.suffix))

			export, err := readExport(path)
			require.NoError(t, err)
			assert.Equal(t, "morning prep", export.Session.Name)
			assert.False(t, export.Complete)
			assert.Nil(t, export.Completion)
			require.Len(t, export.Bindings, 1)
			assert.Equal(t, core.Code("Q1"), export.Bindings[0].Code)
			assert.Equal(t, 1.0, export.Bindings[0].Pose.Position.X)
			require.Len(t, export.Highlights, 1)
			assert.Equal(t, core.OutcomeNotFound, export.Highlights[0].Outcome)
			assert.Len(t, export.Unrecognized, 1)
		})
	}
}

func TestEndSession_EmptyExportHasArrays(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordCompletion(&core.CompletionRecord{Registered: 0}))
	require.NoError(t, b.EndSession())

	raw, err := os.ReadFile(b.ExportedFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"bindings":[]`)
	assert.Contains(t, string(raw), `"complete":true`)
}

func TestEndSession_BadOutputDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	b := New(config.MemoryConfig{OutputDir: filepath.Join(blocker, "sub")})
	require.NoError(t, b.StartSession(testSession()))
	assert.Error(t, b.EndSession())
	assert.Empty(t, b.ExportedFilePath())
}

// readExport reads a file written by EndSession, compressed or not.
func readExport(path string) (Export, error) {
	var export Export

	f, err := os.Open(path)
	if err != nil {
		return export, err
	}
	defer f.Close()

	var dec *json.Decoder
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to open gzip reader: %w", err)
		}
		defer gz.Close()
		dec = json.NewDecoder(gz)
	} else {
		dec = json.NewDecoder(f)
	}

	if err := dec.Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}
