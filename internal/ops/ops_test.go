package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hifzlab/coach-engine/internal/coach"
	"github.com/hifzlab/coach-engine/internal/ingest"
)

type stubDB struct{ err error }

func (s stubDB) HealthCheck(context.Context) error { return s.err }

type stubQueue struct{ stats coach.QueueStats }

func (s stubQueue) Stats() coach.QueueStats { return s.stats }

type stubWatcher struct{ status ingest.Status }

func (s stubWatcher) Stats() ingest.Status { return s.status }

func getHealth(t *testing.T, h http.Handler) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v\nbody: %s", err, rec.Body.String())
	}
	return rec.Code, resp
}

func TestHealthzAllHealthy(t *testing.T) {
	h := NewHealthHandler(
		stubDB{},
		stubQueue{stats: coach.QueueStats{Pending: 2, Completed: 7}},
		stubWatcher{status: ingest.Status{Status: "watching", WatchDir: "/recordings"}},
		map[string]bool{"gemini": true, "whisper": true},
		"v1.2.3", time.Now(),
	)

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want %d", code, http.StatusOK)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.Version != "v1.2.3" {
		t.Errorf("Version = %q, want v1.2.3", resp.Version)
	}
	for check, want := range map[string]string{
		"database":     "ok",
		"gemini":       "ok",
		"whisper":      "ok",
		"queue":        "ok",
		"file_watcher": "watching",
	} {
		if got := resp.Checks[check]; got != want {
			t.Errorf("Checks[%q] = %q, want %q", check, got, want)
		}
	}
	if resp.Queue == nil || resp.Queue.Pending != 2 || resp.Queue.Completed != 7 {
		t.Errorf("Queue = %+v, want pending 2 completed 7", resp.Queue)
	}
	if resp.Watcher == nil || resp.Watcher.WatchDir != "/recordings" {
		t.Errorf("Watcher = %+v, want watch dir /recordings", resp.Watcher)
	}
}

func TestHealthzDatabaseDown(t *testing.T) {
	h := NewHealthHandler(stubDB{err: errors.New("connection refused")}, nil, nil, nil, "dev", time.Now())

	code, resp := getHealth(t, h)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", resp.Status)
	}
	if resp.Checks["database"] != "error" {
		t.Errorf("Checks[database] = %q, want error", resp.Checks["database"])
	}
}

func TestHealthzNothingConfigured(t *testing.T) {
	h := NewHealthHandler(nil, nil, nil, nil, "dev", time.Now())

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want %d", code, http.StatusOK)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
	if resp.Checks["database"] != "not_configured" {
		t.Errorf("Checks[database] = %q, want not_configured", resp.Checks["database"])
	}
	if resp.Queue != nil || resp.Watcher != nil {
		t.Errorf("Queue = %+v, Watcher = %+v, want both omitted", resp.Queue, resp.Watcher)
	}
}

func TestHealthzStoppedWatcherDegrades(t *testing.T) {
	h := NewHealthHandler(stubDB{}, nil, stubWatcher{status: ingest.Status{Status: "stopped"}}, nil, "dev", time.Now())

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want %d", code, http.StatusOK)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
}

func TestHealthzUnconfiguredProvider(t *testing.T) {
	h := NewHealthHandler(stubDB{}, nil, nil, map[string]bool{"whisper": false}, "dev", time.Now())

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Errorf("status code = %d, want %d", code, http.StatusOK)
	}
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy (missing provider is not a failure)", resp.Status)
	}
	if resp.Checks["whisper"] != "not_configured" {
		t.Errorf("Checks[whisper] = %q, want not_configured", resp.Checks["whisper"])
	}
}

func newTestServer(health http.Handler) *Server {
	return NewServer(ServerOptions{
		Addr:   ":0",
		Health: health,
		Log:    zerolog.Nop(),
	})
}

func TestServerServesHealthAndMetrics(t *testing.T) {
	srv := newTestServer(NewHealthHandler(nil, nil, nil, nil, "dev", time.Now()))

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("healthz Content-Type = %q, want application/json", ct)
	}

	rec = httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "coach_engine_http_requests_total") {
		t.Error("metrics output missing coach_engine_http_requests_total")
	}

	rec = httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServerEchoesRequestID(t *testing.T) {
	srv := newTestServer(NewHealthHandler(nil, nil, nil, nil, "dev", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}

	rec = httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated when absent")
	}
}

func TestServerRecoversFromPanic(t *testing.T) {
	srv := newTestServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rec.Body.String(), "internal server error") {
		t.Errorf("body = %q, want internal server error message", rec.Body.String())
	}
}
