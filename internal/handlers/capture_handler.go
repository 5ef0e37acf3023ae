package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/fetcher"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// CaptureRequest is the payload for a single page capture. HTML is optional:
// capture clients that already hold the rendered page post it directly,
// otherwise the server fetches the URL itself.
type CaptureRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
}

// CaptureHandler handles single-page capture requests
type CaptureHandler struct {
	jobManager *jobs.Manager
	bookmarks  interfaces.BookmarkStorage
	content    interfaces.ContentStorage
	fetcher    interfaces.Fetcher
	logger     arbor.ILogger
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(jobManager *jobs.Manager, bookmarks interfaces.BookmarkStorage, content interfaces.ContentStorage, pageFetcher interfaces.Fetcher, logger arbor.ILogger) *CaptureHandler {
	return &CaptureHandler{
		jobManager: jobManager,
		bookmarks:  bookmarks,
		content:    content,
		fetcher:    pageFetcher,
		logger:     logger,
	}
}

// CaptureHandler accepts a page capture and queues the bookmark for the
// content pipeline. The capture job itself completes immediately; the
// heavy stages run from the queue loop.
// POST /api/capture
func (h *CaptureHandler) CaptureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := fetcher.ValidateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	html := req.HTML
	sizeBytes := len(html)
	if html == "" {
		fetched, err := h.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			classified := jobs.Classify(err)
			h.logger.Warn().
				Err(err).
				Str("url", req.URL).
				Msg("Capture fetch failed")
			writeError(w, http.StatusBadGateway, classified.Error())
			return
		}
		html = fetched.Body
		sizeBytes = fetched.SizeBytes
	}

	now := time.Now()
	bookmark := &models.Bookmark{
		ID:        common.NewBookmarkID(),
		URL:       req.URL,
		Title:     req.Title,
		Status:    models.BookmarkStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.bookmarks.SaveBookmark(ctx, bookmark); err != nil {
		h.logger.Error().Err(err).Str("url", req.URL).Msg("Failed to save bookmark")
		writeError(w, http.StatusInternalServerError, "Failed to save bookmark")
		return
	}

	capture := &models.CaptureRecord{
		ID:         common.NewCaptureID(),
		BookmarkID: bookmark.ID,
		SourceURL:  req.URL,
		HTML:       html,
		SizeBytes:  sizeBytes,
		CapturedAt: now,
	}
	if err := h.content.SaveCapture(ctx, capture); err != nil {
		h.logger.Error().Err(err).Str("bookmark_id", bookmark.ID).Msg("Failed to save capture")
		writeError(w, http.StatusInternalServerError, "Failed to save capture")
		return
	}

	// The capture stage is already done by the time the request lands, so
	// its job goes straight to completed for the audit trail.
	job, err := h.jobManager.CreateJob(ctx, models.JobTypeCaptureAdd, "", bookmark.ID, map[string]interface{}{
		models.MetaURL:      req.URL,
		models.MetaHTMLSize: sizeBytes,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("bookmark_id", bookmark.ID).Msg("Failed to create capture job")
		writeError(w, http.StatusInternalServerError, "Failed to create capture job")
		return
	}
	if err := h.jobManager.MarkInProgress(ctx, job.ID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to claim capture job")
	} else if err := h.jobManager.CompleteJob(ctx, job.ID, nil); err != nil {
		h.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to complete capture job")
	}

	h.logger.Info().
		Str("bookmark_id", bookmark.ID).
		Str("url", req.URL).
		Int("html_size", sizeBytes).
		Msg("Page captured")

	writeJSON(w, http.StatusCreated, map[string]string{
		"bookmark_id": bookmark.ID,
		"job_id":      job.ID,
	})
}
