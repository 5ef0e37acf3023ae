package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	jobManager *jobs.Manager
	logger     arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobManager *jobs.Manager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobManager: jobManager,
		logger:     logger,
	}
}

// ListJobsHandler returns a paginated list of jobs
// GET /api/jobs?limit=50&offset=0&status=completed&type=url_fetch&parent_id=job_x&bookmark_id=bm_x
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil {
			offset = parsed
		}
	}

	opts := &interfaces.JobListOptions{
		Status:     models.JobStatus(r.URL.Query().Get("status")),
		Type:       models.JobType(r.URL.Query().Get("type")),
		ParentID:   r.URL.Query().Get("parent_id"),
		BookmarkID: r.URL.Query().Get("bookmark_id"),
		Limit:      limit,
		Offset:     offset,
	}

	jobList, err := h.jobManager.ListJobs(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		writeError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	totalCount, err := h.jobManager.CountJobs(ctx, opts)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count jobs")
		totalCount = len(jobList)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobList,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetJobHandler returns a single job by ID, with its children when the job
// is a batch parent.
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := jobIDFromPath(r.URL.Path)
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.jobManager.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	response := map[string]interface{}{"job": job}

	if job.Type == models.JobTypeBulkUrlImport || job.Type == models.JobTypeFileImport {
		children, err := h.jobManager.GetJobsByParent(ctx, job.ID)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to load child jobs")
		} else {
			response["children"] = children
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// CancelJobHandler cancels a pending or in-progress job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	jobID := jobIDFromPath(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.jobManager.CancelJob(ctx, jobID); err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, jobs.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "Job is already finished")
		default:
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
			writeError(w, http.StatusInternalServerError, "Failed to cancel job")
		}
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "job_id": jobID})
}

// jobIDFromPath extracts the job ID from /api/jobs/{id} style paths.
func jobIDFromPath(path string) string {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathParts) < 3 {
		return ""
	}
	return pathParts[2]
}
