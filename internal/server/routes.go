package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Capture (single page)
	mux.HandleFunc("/api/capture", s.app.CaptureHandler.CaptureHandler) // POST - capture a page

	// API routes - Bulk import
	mux.HandleFunc("/api/import/urls", s.app.ImportHandler.ImportURLsHandler) // POST - JSON URL list
	mux.HandleFunc("/api/import/file", s.app.ImportHandler.ImportFileHandler) // POST - newline-delimited list

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler) // GET - list with filters
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)               // GET /{id}, POST /{id}/cancel

	// API routes - Bookmarks
	mux.HandleFunc("/api/bookmarks/", s.handleBookmarkRoutes) // GET /{id}, GET /{id}/content

	// API routes - System
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes routes job-related requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// POST /api/jobs/{id}/cancel
	if strings.HasSuffix(path, "/cancel") {
		s.app.JobHandler.CancelJobHandler(w, r)
		return
	}

	// GET /api/jobs/{id}
	if r.Method == http.MethodGet {
		s.app.JobHandler.GetJobHandler(w, r)
		return
	}

	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleBookmarkRoutes routes bookmark-related requests to the appropriate handler
func (s *Server) handleBookmarkRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /api/bookmarks/{id}/content
	if strings.HasSuffix(path, "/content") {
		s.app.BookmarkHandler.GetContentHandler(w, r)
		return
	}

	// GET /api/bookmarks/{id}
	s.app.BookmarkHandler.GetBookmarkHandler(w, r)
}
