package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// BookmarkHandler handles bookmark-related API requests
type BookmarkHandler struct {
	bookmarks interfaces.BookmarkStorage
	content   interfaces.ContentStorage
	markdown  goldmark.Markdown
	logger    arbor.ILogger
}

// NewBookmarkHandler creates a new bookmark handler
func NewBookmarkHandler(bookmarks interfaces.BookmarkStorage, content interfaces.ContentStorage, logger arbor.ILogger) *BookmarkHandler {
	return &BookmarkHandler{
		bookmarks: bookmarks,
		content:   content,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
		logger: logger,
	}
}

// GetBookmarkHandler returns a bookmark with its pipeline jobs
// GET /api/bookmarks/{id}
func (h *BookmarkHandler) GetBookmarkHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	bookmarkID := bookmarkIDFromPath(r.URL.Path)
	if bookmarkID == "" {
		writeError(w, http.StatusBadRequest, "Bookmark ID is required")
		return
	}

	bookmark, err := h.bookmarks.GetBookmark(ctx, bookmarkID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Bookmark not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"bookmark": bookmark})
}

// GetContentHandler returns the extracted content for a bookmark. The
// default response carries the markdown plus any Q&A pairs; format=html
// renders the markdown to HTML instead.
// GET /api/bookmarks/{id}/content?format=html
func (h *BookmarkHandler) GetContentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ctx := r.Context()

	bookmarkID := bookmarkIDFromPath(strings.TrimSuffix(r.URL.Path, "/content"))
	if bookmarkID == "" {
		writeError(w, http.StatusBadRequest, "Bookmark ID is required")
		return
	}

	pageContent, err := h.content.GetPageContentByBookmark(ctx, bookmarkID)
	if err != nil {
		writeError(w, http.StatusNotFound, "No content for bookmark")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(pageContent.Markdown), &buf); err != nil {
			h.logger.Error().Err(err).Str("bookmark_id", bookmarkID).Msg("Failed to render markdown")
			writeError(w, http.StatusInternalServerError, "Failed to render content")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}

	response := map[string]interface{}{"content": pageContent}

	// Q&A pairs are optional; the pipeline may not have reached that stage.
	if qaRecord, err := h.content.GetQARecordByBookmark(ctx, bookmarkID); err == nil {
		response["qa_pairs"] = qaRecord.Pairs
		response["qa_model"] = qaRecord.Model
	}

	writeJSON(w, http.StatusOK, response)
}

// bookmarkIDFromPath extracts the bookmark ID from /api/bookmarks/{id} paths.
func bookmarkIDFromPath(path string) string {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathParts) < 3 {
		return ""
	}
	return pathParts[2]
}
