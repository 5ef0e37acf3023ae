package fetcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// stubFetcher fails URLs containing "fail" and times out URLs containing
// "slow"; everything else succeeds. It also tracks peak concurrency.
type stubFetcher struct {
	mu      sync.Mutex
	current int32
	peak    int32
	calls   int32
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*interfaces.FetchResult, error) {
	atomic.AddInt32(&f.calls, 1)

	f.mu.Lock()
	f.current++
	if f.current > f.peak {
		f.peak = f.current
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.current--
		f.mu.Unlock()
	}()

	switch {
	case strings.Contains(url, "slow"):
		return nil, jobs.NewError(jobs.ErrorKindTimeout, "fetch timed out for %s", url)
	case strings.Contains(url, "fail"):
		return nil, jobs.NewHTTPError(404, "not found: %s", url)
	default:
		body := "<html><body>content for " + url + "</body></html>"
		return &interfaces.FetchResult{
			Body:       body,
			SizeBytes:  len(body),
			StatusCode: 200,
		}, nil
	}
}

func newBatchHarness(t *testing.T, concurrency int) (*BatchFetcher, *jobs.Manager, interfaces.StorageManager, *stubFetcher) {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.StorageConfig{
		Path: filepath.Join(t.TempDir(), "batch-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	jobManager := jobs.NewManager(storage.JobStorage(), logger)
	stub := &stubFetcher{}
	batch := NewBatchFetcher(jobManager, storage.BookmarkStorage(), storage.ContentStorage(), stub, concurrency, logger)
	return batch, jobManager, storage, stub
}

func TestBatchFetcher_AllSucceed(t *testing.T) {
	batch, jobManager, storage, stub := newBatchHarness(t, 2)
	ctx := context.Background()

	parent, err := jobManager.CreateJob(ctx, models.JobTypeBulkUrlImport, "", "", map[string]interface{}{
		models.MetaTotalURLs: 3,
	})
	require.NoError(t, err)

	urls := []string{
		"https://example.com/one",
		"https://example.com/two",
		"https://example.com/three",
	}
	stats, err := batch.RunBatch(ctx, parent.ID, urls)
	require.NoError(t, err)
	require.Equal(t, 3, stats.SuccessCount)
	require.Equal(t, 0, stats.FailureCount)

	loaded, err := jobManager.GetJob(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, loaded.Status)
	require.Equal(t, 100, loaded.Progress)
	require.Equal(t, 3, loaded.GetMetaInt(models.MetaSuccessCount, 0))

	children, err := jobManager.GetJobsByParent(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)
	for _, child := range children {
		require.Equal(t, models.JobStatusCompleted, child.Status)
		require.Equal(t, models.JobTypeUrlFetch, child.Type)
	}

	// Every successful fetch leaves a pending bookmark with captured HTML.
	pending, err := storage.BookmarkStorage().GetBookmarksByStatus(ctx, models.BookmarkStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	capture, err := storage.ContentStorage().GetCaptureByBookmark(ctx, pending[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, capture.HTML)

	// Waves of 2 then 1: never more than the configured concurrency.
	require.LessOrEqual(t, stub.peak, int32(2))
	require.Equal(t, int32(3), stub.calls)
}

func TestBatchFetcher_PartialFailure(t *testing.T) {
	batch, jobManager, _, _ := newBatchHarness(t, 2)
	ctx := context.Background()

	parent, err := jobManager.CreateJob(ctx, models.JobTypeBulkUrlImport, "", "", map[string]interface{}{
		models.MetaTotalURLs: 3,
	})
	require.NoError(t, err)

	urls := []string{
		"https://example.com/good",
		"https://example.com/fail",
		"https://example.com/slow",
	}
	stats, err := batch.RunBatch(ctx, parent.ID, urls)
	require.NoError(t, err)
	require.Equal(t, 1, stats.SuccessCount)
	require.Equal(t, 2, stats.FailureCount)

	loaded, err := jobManager.GetJob(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.GetMetaInt(models.MetaSuccessCount, 0))
	require.Equal(t, 2, loaded.GetMetaInt(models.MetaFailureCount, 0))

	children, err := jobManager.GetJobsByParent(ctx, parent.ID)
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, child := range children {
		url := child.GetMetaString(models.MetaURL, "")
		kinds[url] = child.GetMetaString(models.MetaErrorKind, "")
		if strings.Contains(url, "good") {
			require.Equal(t, models.JobStatusCompleted, child.Status)
		} else {
			require.Equal(t, models.JobStatusFailed, child.Status)
		}
	}
	require.Equal(t, string(jobs.ErrorKindTimeout), kinds["https://example.com/slow"])
	require.Equal(t, string(jobs.ErrorKindHttpError), kinds["https://example.com/fail"])
}

func TestBatchFetcher_ParentCompletesOnTotalFailure(t *testing.T) {
	batch, jobManager, _, _ := newBatchHarness(t, 5)
	ctx := context.Background()

	parent, err := jobManager.CreateJob(ctx, models.JobTypeBulkUrlImport, "", "", map[string]interface{}{
		models.MetaTotalURLs: 2,
	})
	require.NoError(t, err)

	stats, err := batch.RunBatch(ctx, parent.ID, []string{
		"https://example.com/fail/a",
		"https://example.com/fail/b",
	})
	require.NoError(t, err)
	require.Equal(t, 0, stats.SuccessCount)
	require.Equal(t, 2, stats.FailureCount)

	// A batch where every child failed is still a finished batch.
	loaded, err := jobManager.GetJob(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, loaded.Status)
	require.Equal(t, 100, loaded.Progress)
	require.Equal(t, 2, loaded.GetMetaInt(models.MetaFailureCount, 0))
}

func TestSplitIntoWaves(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	waves := splitIntoWaves(ids, 2)
	if len(waves) != 3 {
		t.Fatalf("Expected 3 waves, got %d", len(waves))
	}
	if len(waves[0]) != 2 || len(waves[1]) != 2 || len(waves[2]) != 1 {
		t.Errorf("Unexpected wave sizes: %v", waves)
	}

	if waves := splitIntoWaves(nil, 3); len(waves) != 0 {
		t.Errorf("Expected no waves for empty input, got %v", waves)
	}

	if waves := splitIntoWaves(ids, 0); len(waves) != 5 {
		t.Errorf("Zero size should fall back to one per wave, got %v", waves)
	}
}
