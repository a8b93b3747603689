package statusserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kitchenlens/highlighter/internal/engine"
	"github.com/kitchenlens/highlighter/internal/monitor"
	"github.com/kitchenlens/highlighter/internal/timer"
	"github.com/kitchenlens/highlighter/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReporter struct{ report monitor.Report }

func (s staticReporter) Collect() monitor.Report { return s.report }

func newServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Dependencies{
		Reporter: staticReporter{monitor.Report{
			Time: time.Unix(1792396800, 0).UTC(),
			Engine: engine.Status{
				State:      "running",
				Session:    core.Session{ID: "s1"},
				Registered: 2,
				Total:      3,
			},
			Timer: &timer.Snapshot{Minutes: 3, Remaining: 90, Running: true},
		}},
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew_RequiresReporter(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	rec := get(t, newServer(t).Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatus(t *testing.T) {
	rec := get(t, newServer(t).Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got monitor.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "running", got.Engine.State)
	assert.Equal(t, 2, got.Engine.Registered)
	require.NotNil(t, got.Timer)
	assert.Equal(t, 90, got.Timer.Remaining)
}

func TestMetrics(t *testing.T) {
	s := newServer(t)
	h := s.Handler()
	get(t, h, "/healthz")
	get(t, h, "/nope")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "highlighter_objects_registered 2")
	assert.Contains(t, body, "highlighter_objects_total 3")
	assert.Contains(t, body, "highlighter_timer_remaining_seconds 90")
	assert.Contains(t, body, `highlighter_http_requests_total{code="200",route="/healthz"} 1`)
	assert.Contains(t, body, `highlighter_http_requests_total{code="404",route="unmatched"} 1`)
}

func TestStartShutdown(t *testing.T) {
	s := newServer(t)
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestShutdown_NotStarted(t *testing.T) {
	assert.NoError(t, newServer(t).Shutdown(context.Background()))
}
