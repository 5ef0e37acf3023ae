package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Manager provides CRUD and lifecycle transitions over the job store.
// It is pure bookkeeping: no operation here triggers pipeline logic.
type Manager struct {
	storage interfaces.JobStorage
	logger  arbor.ILogger

	// Guards read-modify-write of parent aggregate counters. Badger gives
	// per-record write atomicity but not compare-and-swap across reads.
	counterMu sync.Mutex
}

// NewManager creates a new job manager.
func NewManager(storage interfaces.JobStorage, logger arbor.ILogger) *Manager {
	return &Manager{
		storage: storage,
		logger:  logger,
	}
}

// CreateJob inserts a new job in pending state with zero progress.
func (m *Manager) CreateJob(ctx context.Context, jobType models.JobType, parentID, bookmarkID string, metadataSeed map[string]interface{}) (*models.Job, error) {
	now := time.Now()
	job := &models.Job{
		ID:         common.NewJobID(),
		Type:       jobType,
		Status:     models.JobStatusPending,
		ParentID:   parentID,
		BookmarkID: bookmarkID,
		Progress:   0,
		Metadata:   metadataSeed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	m.logger.Debug().
		Str("job_id", job.ID).
		Str("type", string(jobType)).
		Str("parent_id", parentID).
		Str("bookmark_id", bookmarkID).
		Msg("Job created")

	return job, nil
}

// MarkInProgress claims a pending job for execution.
func (m *Manager) MarkInProgress(ctx context.Context, jobID string) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransitionTo(models.JobStatusInProgress) {
		return fmt.Errorf("%w: %s -> %s for job %s", ErrInvalidTransition, job.Status, models.JobStatusInProgress, jobID)
	}

	job.Status = models.JobStatusInProgress
	job.UpdatedAt = time.Now()

	return m.storage.SaveJob(ctx, job)
}

// UpdateProgress advances a job's progress and merges metadata. Progress is
// monotonic within a job's lifetime: values lower than the stored one are
// rejected.
func (m *Manager) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string, metadataPatch map[string]interface{}) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if progress < job.Progress {
		return fmt.Errorf("%w: job %s has progress %d, got %d", ErrProgressRegression, jobID, job.Progress, progress)
	}
	if progress > 100 {
		progress = 100
	}

	job.Progress = progress
	if currentStep != "" {
		job.CurrentStep = currentStep
	}
	for k, v := range metadataPatch {
		job.SetMeta(k, v)
	}
	job.UpdatedAt = time.Now()

	return m.storage.SaveJob(ctx, job)
}

// CompleteJob moves a job to completed with full progress.
func (m *Manager) CompleteJob(ctx context.Context, jobID string, metadataPatch map[string]interface{}) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransitionTo(models.JobStatusCompleted) {
		return fmt.Errorf("%w: %s -> %s for job %s", ErrInvalidTransition, job.Status, models.JobStatusCompleted, jobID)
	}

	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	for k, v := range metadataPatch {
		job.SetMeta(k, v)
	}
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return err
	}

	m.logger.Debug().
		Str("job_id", jobID).
		Str("type", string(job.Type)).
		Msg("Job completed")

	return nil
}

// FailJob moves a job to failed, recording the classified error kind and a
// human-readable message in metadata.
func (m *Manager) FailJob(ctx context.Context, jobID string, errorKind ErrorKind, errorMessage string) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransitionTo(models.JobStatusFailed) {
		return fmt.Errorf("%w: %s -> %s for job %s", ErrInvalidTransition, job.Status, models.JobStatusFailed, jobID)
	}

	now := time.Now()
	job.Status = models.JobStatusFailed
	job.SetMeta(models.MetaErrorKind, string(errorKind))
	job.SetMeta(models.MetaErrorMessage, errorMessage)
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return err
	}

	m.logger.Warn().
		Str("job_id", jobID).
		Str("type", string(job.Type)).
		Str("error_kind", string(errorKind)).
		Str("error", errorMessage).
		Msg("Job failed")

	return nil
}

// CancelJob cancels a pending or in-progress job. Cancellation is explicit
// only, never automatic, and observed cooperatively between stages.
func (m *Manager) CancelJob(ctx context.Context, jobID string) error {
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if !job.CanTransitionTo(models.JobStatusCancelled) {
		return fmt.Errorf("%w: %s -> %s for job %s", ErrInvalidTransition, job.Status, models.JobStatusCancelled, jobID)
	}

	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.UpdatedAt = now
	job.CompletedAt = &now

	if err := m.storage.SaveJob(ctx, job); err != nil {
		return err
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("type", string(job.Type)).
		Msg("Job cancelled")

	return nil
}

// RecordChildResult increments a batch parent's success or failure counter
// and recomputes its progress. The increment and the new progress value go
// to the store in a single write so a restart cannot lose one of them.
// A missing parent is logged and ignored: children never depend on the
// parent staying alive.
func (m *Manager) RecordChildResult(ctx context.Context, parentID string, success bool) error {
	m.counterMu.Lock()
	defer m.counterMu.Unlock()

	parent, err := m.storage.GetJob(ctx, parentID)
	if err != nil {
		m.logger.Warn().
			Str("parent_id", parentID).
			Err(err).
			Msg("Parent job missing while recording child result")
		return nil
	}

	successCount := parent.GetMetaInt(models.MetaSuccessCount, 0)
	failureCount := parent.GetMetaInt(models.MetaFailureCount, 0)
	totalURLs := parent.GetMetaInt(models.MetaTotalURLs, 0)

	if success {
		successCount++
	} else {
		failureCount++
	}

	parent.SetMeta(models.MetaSuccessCount, successCount)
	parent.SetMeta(models.MetaFailureCount, failureCount)

	if totalURLs > 0 {
		progress := (successCount + failureCount) * 100 / totalURLs
		if progress > parent.Progress {
			parent.Progress = progress
		}
	}
	parent.UpdatedAt = time.Now()

	return m.storage.SaveJob(ctx, parent)
}

// GetJob returns a single job by ID.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return m.storage.GetJob(ctx, jobID)
}

// GetJobs batch-fetches jobs by ID set in one query.
func (m *Manager) GetJobs(ctx context.Context, ids []string) ([]*models.Job, error) {
	return m.storage.GetJobs(ctx, ids)
}

// GetJobsByParent returns all children of a parent job.
func (m *Manager) GetJobsByParent(ctx context.Context, parentID string) ([]*models.Job, error) {
	return m.storage.GetJobsByParent(ctx, parentID)
}

// GetJobsByBookmark returns all jobs associated with a bookmark.
func (m *Manager) GetJobsByBookmark(ctx context.Context, bookmarkID string) ([]*models.Job, error) {
	return m.storage.GetJobsByBookmark(ctx, bookmarkID)
}

// GetActiveJobs returns jobs that are pending or in progress.
func (m *Manager) GetActiveJobs(ctx context.Context) ([]*models.Job, error) {
	return m.storage.GetActiveJobs(ctx)
}

// ListJobs returns jobs matching the filter options.
func (m *Manager) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return m.storage.ListJobs(ctx, opts)
}

// CountJobs returns the number of jobs matching the filter options.
func (m *Manager) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	return m.storage.CountJobs(ctx, opts)
}
