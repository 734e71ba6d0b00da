package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hifzlab/coach-engine/internal/coach"
	"github.com/hifzlab/coach-engine/internal/ingest"
)

// DB is the slice of the store the health endpoint needs.
type DB interface {
	HealthCheck(ctx context.Context) error
}

// Queue reports live worker pool counters.
type Queue interface {
	Stats() coach.QueueStats
}

// Watcher reports live recording watcher state.
type Watcher interface {
	Stats() ingest.Status
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Queue         *coach.QueueStats `json:"queue,omitempty"`
	Watcher       *ingest.Status    `json:"watcher,omitempty"`
}

// HealthHandler serves GET /healthz. Any dependency may be nil; it is then
// reported as not_configured rather than failing the check.
type HealthHandler struct {
	db        DB
	queue     Queue
	watcher   Watcher
	providers map[string]bool
	version   string
	startTime time.Time
}

func NewHealthHandler(db DB, queue Queue, watcher Watcher, providers map[string]bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		queue:     queue,
		watcher:   watcher,
		providers: providers,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	for name, configured := range h.providers {
		if configured {
			checks[name] = "ok"
		} else {
			checks[name] = "not_configured"
		}
	}

	var queue *coach.QueueStats
	if h.queue != nil {
		qs := h.queue.Stats()
		queue = &qs
		checks["queue"] = "ok"
	}

	var watcher *ingest.Status
	if h.watcher != nil {
		ws := h.watcher.Stats()
		watcher = &ws
		checks["file_watcher"] = ws.Status
		if ws.Status == "stopped" && status == "healthy" {
			status = "degraded"
		}
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Queue:         queue,
		Watcher:       watcher,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
