package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// BatchStats summarizes a completed batch run.
type BatchStats struct {
	TotalURLs    int           `json:"total_urls"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	BytesFetched int64         `json:"bytes_fetched"`
	Duration     time.Duration `json:"duration"`
}

// BatchFetcher downloads a list of URLs for a parent job with bounded
// concurrency and partial-failure isolation. Fetches run in sequential
// waves of the configured concurrency: predictable resource usage and
// simple accounting instead of streaming pipelining.
type BatchFetcher struct {
	jobManager  *jobs.Manager
	bookmarks   interfaces.BookmarkStorage
	content     interfaces.ContentStorage
	fetcher     interfaces.Fetcher
	concurrency int
	logger      arbor.ILogger
}

// NewBatchFetcher creates a batch fetcher.
func NewBatchFetcher(jobManager *jobs.Manager, bookmarks interfaces.BookmarkStorage, content interfaces.ContentStorage, fetcher interfaces.Fetcher, concurrency int, logger arbor.ILogger) *BatchFetcher {
	if concurrency < 1 {
		concurrency = 5
	}
	return &BatchFetcher{
		jobManager:  jobManager,
		bookmarks:   bookmarks,
		content:     content,
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// childResult is one settled fetch within a wave.
type childResult struct {
	jobID   string
	url     string
	success bool
	bytes   int
}

// RunBatch fetches every URL as a url_fetch child of the parent job. URLs
// must already be validated and deduplicated (see NormalizeURLs). The
// parent reaches completed regardless of how many children failed; a batch
// with partial failures is still a finished batch, with the failures
// visible on the child jobs and the aggregate counters.
func (bf *BatchFetcher) RunBatch(ctx context.Context, parentJobID string, urls []string) (*BatchStats, error) {
	startTime := time.Now()

	stats := &BatchStats{
		TotalURLs: len(urls),
	}

	if err := bf.jobManager.MarkInProgress(ctx, parentJobID); err != nil {
		return nil, err
	}

	// One pending child job per URL, created up front so a crash mid-batch
	// leaves a complete picture for recovery.
	childIDs := make([]string, 0, len(urls))
	childURLs := make(map[string]string, len(urls))
	for _, rawURL := range urls {
		child, err := bf.jobManager.CreateJob(ctx, models.JobTypeUrlFetch, parentJobID, "",
			map[string]interface{}{models.MetaURL: rawURL})
		if err != nil {
			return nil, err
		}
		childIDs = append(childIDs, child.ID)
		childURLs[child.ID] = rawURL
	}

	bf.logger.Info().
		Str("parent_id", parentJobID).
		Int("total_urls", len(urls)).
		Int("concurrency", bf.concurrency).
		Msg("Batch fetch started")

	// Sequential waves: launch up to `concurrency` fetches, wait for the
	// wave to fully settle, then start the next.
	for _, wave := range splitIntoWaves(childIDs, bf.concurrency) {
		results := make(chan childResult, len(wave))
		var wg sync.WaitGroup

		for _, jobID := range wave {
			wg.Add(1)
			go func(jobID, rawURL string) {
				defer wg.Done()
				results <- bf.fetchOne(ctx, jobID, rawURL)
			}(jobID, childURLs[jobID])
		}

		wg.Wait()
		close(results)

		for result := range results {
			// The increment and recomputed progress go to the store in one
			// write per child, so every terminal child outcome is counted
			// exactly once even across restarts.
			if err := bf.jobManager.RecordChildResult(ctx, parentJobID, result.success); err != nil {
				bf.logger.Error().Err(err).Str("parent_id", parentJobID).Msg("Failed to record child result")
			}
			if result.success {
				stats.SuccessCount++
				stats.BytesFetched += int64(result.bytes)
			} else {
				stats.FailureCount++
			}
		}
	}

	stats.Duration = time.Since(startTime)

	if err := bf.jobManager.CompleteJob(ctx, parentJobID, map[string]interface{}{
		models.MetaElapsedMs: stats.Duration.Milliseconds(),
	}); err != nil {
		return stats, err
	}

	bf.logger.Info().
		Str("parent_id", parentJobID).
		Int("success", stats.SuccessCount).
		Int("failures", stats.FailureCount).
		Int64("bytes", stats.BytesFetched).
		Dur("duration", stats.Duration).
		Msg("Batch fetch complete")

	return stats, nil
}

// fetchOne claims one child job, performs the fetch, and settles the job.
// On success it also creates the pending bookmark the queue loop will pick
// up later.
func (bf *BatchFetcher) fetchOne(ctx context.Context, jobID, rawURL string) childResult {
	result := childResult{jobID: jobID, url: rawURL}

	if err := bf.jobManager.MarkInProgress(ctx, jobID); err != nil {
		bf.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to claim fetch job")
		return result
	}

	fetchStart := time.Now()
	fetched, err := bf.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		classified := jobs.Classify(err)
		if failErr := bf.jobManager.FailJob(ctx, jobID, classified.Kind, classified.Message); failErr != nil {
			bf.logger.Error().Err(failErr).Str("job_id", jobID).Msg("Failed to record fetch failure")
		}
		return result
	}

	now := time.Now()
	bookmark := &models.Bookmark{
		ID:        common.NewBookmarkID(),
		URL:       rawURL,
		Status:    models.BookmarkStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := bf.bookmarks.SaveBookmark(ctx, bookmark); err != nil {
		if failErr := bf.jobManager.FailJob(ctx, jobID, jobs.ErrorKindApiError, "failed to save bookmark: "+err.Error()); failErr != nil {
			bf.logger.Error().Err(failErr).Str("job_id", jobID).Msg("Failed to record bookmark save failure")
		}
		return result
	}

	capture := &models.CaptureRecord{
		ID:         common.NewCaptureID(),
		BookmarkID: bookmark.ID,
		SourceURL:  rawURL,
		HTML:       fetched.Body,
		SizeBytes:  fetched.SizeBytes,
		CapturedAt: now,
	}
	if err := bf.content.SaveCapture(ctx, capture); err != nil {
		if failErr := bf.jobManager.FailJob(ctx, jobID, jobs.ErrorKindApiError, "failed to save capture: "+err.Error()); failErr != nil {
			bf.logger.Error().Err(failErr).Str("job_id", jobID).Msg("Failed to record capture save failure")
		}
		return result
	}

	if err := bf.jobManager.CompleteJob(ctx, jobID, map[string]interface{}{
		models.MetaHTMLSize:    fetched.SizeBytes,
		models.MetaFetchTimeMs: time.Since(fetchStart).Milliseconds(),
	}); err != nil {
		bf.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to complete fetch job")
		return result
	}

	result.success = true
	result.bytes = fetched.SizeBytes
	return result
}

// splitIntoWaves partitions job IDs into chunks of the wave size.
func splitIntoWaves(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var waves [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		waves = append(waves, ids[start:end])
	}
	return waves
}
