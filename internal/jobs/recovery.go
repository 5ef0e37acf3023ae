package jobs

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Recovery reconciles jobs left inconsistent by a prior crash. It runs
// exactly once per process lifetime, before the queue loop's first tick.
//
// The host can kill the process at any suspension point with no shutdown
// hook, so the only crash signal is a job claiming to be in progress that
// has not been touched in longer than any real stage could take.
type Recovery struct {
	jobStorage      interfaces.JobStorage
	bookmarkStorage interfaces.BookmarkStorage
	logger          arbor.ILogger
	staleThreshold  time.Duration
	maxRetries      int
}

// RecoveryResult summarizes what a recovery pass did.
type RecoveryResult struct {
	Requeued          int
	FailedPermanently int
	BookmarksReset    int
	BookmarksErrored  int
}

// NewRecovery creates a recovery manager.
func NewRecovery(jobStorage interfaces.JobStorage, bookmarkStorage interfaces.BookmarkStorage, staleThreshold time.Duration, maxRetries int, logger arbor.ILogger) *Recovery {
	return &Recovery{
		jobStorage:      jobStorage,
		bookmarkStorage: bookmarkStorage,
		logger:          logger,
		staleThreshold:  staleThreshold,
		maxRetries:      maxRetries,
	}
}

// Run performs one recovery pass. Running it twice with no intervening
// work is a no-op: requeued jobs are pending afterwards, so the stale
// in-progress query finds nothing on the second pass.
func (r *Recovery) Run(ctx context.Context) (*RecoveryResult, error) {
	result := &RecoveryResult{}

	inProgress, err := r.jobStorage.GetInProgressJobs(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-r.staleThreshold)
	for _, job := range inProgress {
		if job.UpdatedAt.After(cutoff) {
			// Recently touched; assume a live worker owns it.
			continue
		}

		retryCount := job.RetryCount() + 1
		if retryCount > r.maxRetries {
			if err := r.failExhausted(ctx, job); err != nil {
				r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark exhausted job")
				continue
			}
			result.FailedPermanently++
			continue
		}

		if err := r.requeue(ctx, job, retryCount); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue orphaned job")
			continue
		}
		result.Requeued++
	}

	reset, errored, err := r.reconcileBookmarks(ctx)
	if err != nil {
		return nil, err
	}
	result.BookmarksReset = reset
	result.BookmarksErrored = errored

	r.logger.Info().
		Int("requeued", result.Requeued).
		Int("failed_permanently", result.FailedPermanently).
		Int("bookmarks_reset", result.BookmarksReset).
		Int("bookmarks_errored", result.BookmarksErrored).
		Msg("Startup recovery completed")

	return result, nil
}

// requeue resets an orphaned job to pending. This is the only backward
// transition in the state machine; live workers never take it.
func (r *Recovery) requeue(ctx context.Context, job *models.Job, retryCount int) error {
	job.Status = models.JobStatusPending
	job.SetMeta(models.MetaRetryCount, retryCount)
	job.UpdatedAt = time.Now()

	if err := r.jobStorage.SaveJob(ctx, job); err != nil {
		return err
	}

	r.logger.Warn().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("retry_count", retryCount).
		Msg("Orphaned job requeued")

	return nil
}

// failExhausted marks a job that has been requeued too many times.
func (r *Recovery) failExhausted(ctx context.Context, job *models.Job) error {
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.SetMeta(models.MetaErrorKind, string(ErrorKindMaxRetriesExceeded))
	job.SetMeta(models.MetaErrorMessage, "job was interrupted too many times without completing")
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := r.jobStorage.SaveJob(ctx, job); err != nil {
		return err
	}

	r.logger.Warn().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("retry_count", job.RetryCount()).
		Msg("Orphaned job exceeded max retries")

	return nil
}

// reconcileBookmarks resets bookmarks stuck in processing whose pipeline
// jobs are no longer running: back to pending when the jobs were requeued,
// to error when retries are exhausted.
func (r *Recovery) reconcileBookmarks(ctx context.Context) (reset, errored int, err error) {
	processing, err := r.bookmarkStorage.GetBookmarksByStatus(ctx, models.BookmarkStatusProcessing)
	if err != nil {
		return 0, 0, err
	}

	for _, bookmark := range processing {
		bookmarkJobs, err := r.jobStorage.GetJobsByBookmark(ctx, bookmark.ID)
		if err != nil {
			r.logger.Error().Err(err).Str("bookmark_id", bookmark.ID).Msg("Failed to load bookmark jobs")
			continue
		}

		stillRunning := false
		exhausted := false
		for _, job := range bookmarkJobs {
			if job.Status == models.JobStatusInProgress {
				stillRunning = true
				break
			}
			if job.Status == models.JobStatusFailed &&
				job.GetMetaString(models.MetaErrorKind, "") == string(ErrorKindMaxRetriesExceeded) {
				exhausted = true
			}
		}
		if stillRunning {
			continue
		}

		target := models.BookmarkStatusPending
		if exhausted {
			target = models.BookmarkStatusError
		}

		if err := r.bookmarkStorage.UpdateBookmarkStatus(ctx, bookmark.ID, target); err != nil {
			r.logger.Error().Err(err).Str("bookmark_id", bookmark.ID).Msg("Failed to reset bookmark status")
			continue
		}

		if target == models.BookmarkStatusError {
			errored++
		} else {
			reset++
		}
	}

	return reset, errored, nil
}
