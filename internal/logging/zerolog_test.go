package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestZerologReporter_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(r *ZerologReporter)
	}{
		{"debug", func(r *ZerologReporter) { r.Debug("msg", "k", "v") }},
		{"info", func(r *ZerologReporter) { r.Info("msg", "k", "v") }},
		{"warn", func(r *ZerologReporter) { r.Warn("msg", "k", "v") }},
		{"error", func(r *ZerologReporter) { r.Error("msg", "k", "v") }},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewZerologReporter(zerolog.New(&buf).Level(zerolog.DebugLevel))

			tt.log(r)

			entry := decodeLine(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "msg", entry["message"])
			assert.Equal(t, "v", entry["k"])
		})
	}
}

func TestZerologReporter_ErrorValue(t *testing.T) {
	var buf bytes.Buffer
	r := NewZerologReporter(zerolog.New(&buf))

	r.Error("bind failed", "error", errors.New("boom"), "count", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestZerologReporter_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	r := NewZerologReporter(zerolog.New(&buf))

	r.Info("odd", "dangling", 42, "ignored")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "odd", entry["message"])
	assert.NotContains(t, entry, "ignored")
	assert.NotContains(t, entry, "42")
}

func TestNewZerologConsole(t *testing.T) {
	var console, file bytes.Buffer
	r := NewZerologConsole(&console, &file, "warn")

	r.Info("filtered")
	r.Warn("kept", "name", "Salt")

	assert.NotContains(t, file.String(), "filtered")
	assert.Contains(t, file.String(), `"name":"Salt"`)
	assert.Contains(t, console.String(), "kept")
}

func TestZerologReporter_SatisfiesLogger(t *testing.T) {
	var _ Logger = NewZerologReporter(zerolog.Nop())
	var _ Logger = Nop()
}
