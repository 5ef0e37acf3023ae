package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/queue"
)

// StatusHandler handles health and version requests
type StatusHandler struct {
	storage   interfaces.StorageManager
	loop      *queue.Loop
	qaService interfaces.QAService
	startTime time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(storage interfaces.StorageManager, loop *queue.Loop, qaService interfaces.QAService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		storage:   storage,
		loop:      loop,
		qaService: qaService,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthHandler reports service health. Storage is always probed; the LLM
// probe costs a real API call, so it only runs with ?probe=llm.
// GET /health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "healthy"
	checks := map[string]string{}

	if _, err := h.storage.JobStorage().CountJobs(ctx, nil); err != nil {
		status = "unhealthy"
		checks["storage"] = err.Error()
	} else {
		checks["storage"] = "ok"
	}

	if r.URL.Query().Get("probe") == "llm" && h.qaService != nil {
		if err := h.qaService.HealthCheck(ctx); err != nil {
			status = "degraded"
			checks["llm"] = err.Error()
		} else {
			checks["llm"] = "ok"
		}
	}

	guardState := h.loop.GuardState()

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"version": common.GetFullVersion(),
		"uptime":  time.Since(h.startTime).String(),
		"checks":  checks,
		"queue": map[string]interface{}{
			"active":     guardState.Active,
			"session_id": guardState.SessionID,
			"started_at": guardState.StartedAt,
		},
	})
}

// VersionHandler returns build version information
// GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// NotFoundHandler returns a JSON 404 for unmatched API routes
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}
