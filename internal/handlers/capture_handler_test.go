package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*interfaces.FetchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &interfaces.FetchResult{
		Body:       f.body,
		SizeBytes:  len(f.body),
		StatusCode: 200,
	}, nil
}

func newCaptureHarness(t *testing.T, pageFetcher interfaces.Fetcher) (*CaptureHandler, *jobs.Manager, interfaces.StorageManager) {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.StorageConfig{
		Path: filepath.Join(t.TempDir(), "capture-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	jobManager := jobs.NewManager(storage.JobStorage(), logger)
	handler := NewCaptureHandler(jobManager, storage.BookmarkStorage(), storage.ContentStorage(), pageFetcher, logger)
	return handler, jobManager, storage
}

func postCapture(t *testing.T, handler *CaptureHandler, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/capture", bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.CaptureHandler(recorder, req)
	return recorder
}

func TestCaptureHandler_PostedHTML(t *testing.T) {
	handler, jobManager, storage := newCaptureHarness(t, &fakeFetcher{})
	ctx := context.Background()

	recorder := postCapture(t, handler, CaptureRequest{
		URL:  "https://example.com/article",
		HTML: "<html><body>posted by the client</body></html>",
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.NotEmpty(t, response["bookmark_id"])
	require.NotEmpty(t, response["job_id"])

	bookmark, err := storage.BookmarkStorage().GetBookmark(ctx, response["bookmark_id"])
	require.NoError(t, err)
	require.Equal(t, models.BookmarkStatusPending, bookmark.Status)

	capture, err := storage.ContentStorage().GetCaptureByBookmark(ctx, bookmark.ID)
	require.NoError(t, err)
	require.Contains(t, capture.HTML, "posted by the client")

	// The capture job runs to completion inside the request, never stuck
	// pending for the queue loop to trip over.
	job, err := jobManager.GetJob(ctx, response["job_id"])
	require.NoError(t, err)
	require.Equal(t, models.JobTypeCaptureAdd, job.Type)
	require.Equal(t, models.JobStatusCompleted, job.Status)
	require.Equal(t, 100, job.Progress)
}

func TestCaptureHandler_ServerSideFetch(t *testing.T) {
	handler, _, storage := newCaptureHarness(t, &fakeFetcher{
		body: "<html><body>fetched by the server</body></html>",
	})
	ctx := context.Background()

	recorder := postCapture(t, handler, CaptureRequest{URL: "https://example.com/page"})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))

	capture, err := storage.ContentStorage().GetCaptureByBookmark(ctx, response["bookmark_id"])
	require.NoError(t, err)
	require.Contains(t, capture.HTML, "fetched by the server")
}

func TestCaptureHandler_FetchFailure(t *testing.T) {
	handler, jobManager, _ := newCaptureHarness(t, &fakeFetcher{
		err: jobs.NewError(jobs.ErrorKindTimeout, "fetch timed out"),
	})

	recorder := postCapture(t, handler, CaptureRequest{URL: "https://example.com/hanging"})
	require.Equal(t, http.StatusBadGateway, recorder.Code)

	// Nothing was persisted for the failed capture.
	count, err := jobManager.CountJobs(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestCaptureHandler_InvalidURL(t *testing.T) {
	handler, _, _ := newCaptureHarness(t, &fakeFetcher{})

	recorder := postCapture(t, handler, CaptureRequest{URL: "javascript:alert(1)"})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}
