package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJobs fetches many jobs in one query, keyed by ID set.
func (s *JobStorage) GetJobs(ctx context.Context, ids []string) ([]*models.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = id
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").In(keys...)); err != nil {
		return nil, fmt.Errorf("failed to get jobs by ids: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if opts.ParentID != "" {
			query = query.And("ParentID").Eq(opts.ParentID)
		}
		if opts.BookmarkID != "" {
			query = query.And("BookmarkID").Eq(opts.BookmarkID)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetJobsByParent(ctx context.Context, parentID string) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ParentID").Eq(parentID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to get jobs by parent: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetJobsByBookmark(ctx context.Context, bookmarkID string) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("BookmarkID").Eq(bookmarkID).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to get jobs by bookmark: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// GetActiveJobs returns jobs that are pending or in progress.
func (s *JobStorage) GetActiveJobs(ctx context.Context) ([]*models.Job, error) {
	var jobs []models.Job
	err := s.db.Store().Find(&jobs,
		badgerhold.Where("Status").In(models.JobStatusPending, models.JobStatusInProgress).SortBy("CreatedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to get active jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) GetInProgressJobs(ctx context.Context) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusInProgress)); err != nil {
		return nil, fmt.Errorf("failed to get in-progress jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return err
	}
	return nil
}

// DeleteCompletedBefore removes completed jobs whose CompletedAt is older
// than the cutoff. Failed jobs are never removed automatically.
func (s *JobStorage) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusCompleted)); err != nil {
		return 0, fmt.Errorf("failed to query completed jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		if jobs[i].CompletedAt == nil || jobs[i].CompletedAt.After(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(jobs[i].ID, &models.Job{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to delete expired job")
			continue
		}
		count++
	}
	return count, nil
}

func (s *JobStorage) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if opts.ParentID != "" {
			query = query.And("ParentID").Eq(opts.ParentID)
		}
		if opts.BookmarkID != "" {
			query = query.And("BookmarkID").Eq(opts.BookmarkID)
		}
	}

	count, err := s.db.Store().Count(&models.Job{}, query)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
