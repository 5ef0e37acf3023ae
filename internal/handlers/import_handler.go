package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/fetcher"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// ImportRequest is the payload for a bulk URL import
type ImportRequest struct {
	URLs []string `json:"urls"`
}

// ImportHandler handles bulk URL import requests
type ImportHandler struct {
	jobManager *jobs.Manager
	batch      *fetcher.BatchFetcher
	logger     arbor.ILogger
}

// NewImportHandler creates a new import handler
func NewImportHandler(jobManager *jobs.Manager, batch *fetcher.BatchFetcher, logger arbor.ILogger) *ImportHandler {
	return &ImportHandler{
		jobManager: jobManager,
		batch:      batch,
		logger:     logger,
	}
}

// ImportURLsHandler accepts a JSON list of URLs and starts a batch fetch.
// The response returns immediately with the parent job ID; progress is
// visible through the jobs API.
// POST /api/import/urls
func (h *ImportHandler) ImportURLsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.startImport(w, r, models.JobTypeBulkUrlImport, req.URLs)
}

// ImportFileHandler accepts a newline-delimited URL list as the request
// body and starts a batch fetch. Lines starting with # are ignored.
// POST /api/import/file
func (h *ImportHandler) ImportFileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	urls, err := parseURLList(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read URL list")
		return
	}

	h.startImport(w, r, models.JobTypeFileImport, urls)
}

// startImport validates the URL set, creates the parent job, and launches
// the batch in the background.
func (h *ImportHandler) startImport(w http.ResponseWriter, r *http.Request, jobType models.JobType, urls []string) {
	ctx := r.Context()

	accepted, rejected := fetcher.NormalizeURLs(urls)

	rejectedList := make([]map[string]string, 0, len(rejected))
	for url, reason := range rejected {
		rejectedList = append(rejectedList, map[string]string{
			"url":   url,
			"error": reason.Error(),
		})
	}

	if len(accepted) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    "No valid URLs in request",
			"rejected": rejectedList,
		})
		return
	}

	parent, err := h.jobManager.CreateJob(ctx, jobType, "", "", map[string]interface{}{
		models.MetaTotalURLs: len(accepted),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create import job")
		writeError(w, http.StatusInternalServerError, "Failed to create import job")
		return
	}

	h.logger.Info().
		Str("job_id", parent.ID).
		Str("type", string(jobType)).
		Int("accepted", len(accepted)).
		Int("rejected", len(rejectedList)).
		Msg("Bulk import started")

	// The batch outlives the HTTP request; it runs under its own context.
	batchCtx := context.Background()
	common.SafeGoWithContext(batchCtx, h.logger, "batch-import", func() {
		if _, err := h.batch.RunBatch(batchCtx, parent.ID, accepted); err != nil {
			h.logger.Error().Err(err).Str("job_id", parent.ID).Msg("Batch import failed")
		}
	})

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   parent.ID,
		"accepted": len(accepted),
		"rejected": rejectedList,
	})
}

// parseURLList reads a newline-delimited URL list, skipping blanks and
// comment lines.
func parseURLList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
