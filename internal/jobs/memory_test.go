package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// memJobStorage is an in-memory JobStorage for tests.
type memJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func newMemJobStorage() *memJobStorage {
	return &memJobStorage{jobs: make(map[string]*models.Job)}
}

func copyJob(job *models.Job) *models.Job {
	clone := *job
	if job.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(job.Metadata))
		for k, v := range job.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func (s *memJobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *memJobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return copyJob(job), nil
}

func (s *memJobStorage) GetJobs(ctx context.Context, ids []string) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Job
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok {
			result = append(result, copyJob(job))
		}
	}
	return result, nil
}

func (s *memJobStorage) matching(filter func(*models.Job) bool) []*models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Job
	for _, job := range s.jobs {
		if filter(job) {
			result = append(result, copyJob(job))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (s *memJobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return s.matching(func(j *models.Job) bool {
		if opts == nil {
			return true
		}
		if opts.Status != "" && j.Status != opts.Status {
			return false
		}
		if opts.Type != "" && j.Type != opts.Type {
			return false
		}
		if opts.ParentID != "" && j.ParentID != opts.ParentID {
			return false
		}
		if opts.BookmarkID != "" && j.BookmarkID != opts.BookmarkID {
			return false
		}
		return true
	}), nil
}

func (s *memJobStorage) GetJobsByParent(ctx context.Context, parentID string) ([]*models.Job, error) {
	return s.matching(func(j *models.Job) bool { return j.ParentID == parentID }), nil
}

func (s *memJobStorage) GetJobsByBookmark(ctx context.Context, bookmarkID string) ([]*models.Job, error) {
	return s.matching(func(j *models.Job) bool { return j.BookmarkID == bookmarkID }), nil
}

func (s *memJobStorage) GetActiveJobs(ctx context.Context) ([]*models.Job, error) {
	return s.matching(func(j *models.Job) bool { return j.IsActive() }), nil
}

func (s *memJobStorage) GetInProgressJobs(ctx context.Context) ([]*models.Job, error) {
	return s.matching(func(j *models.Job) bool { return j.Status == models.JobStatusInProgress }), nil
}

func (s *memJobStorage) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *memJobStorage) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, job := range s.jobs {
		if job.Status == models.JobStatusCompleted && job.CompletedAt != nil && !job.CompletedAt.After(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memJobStorage) CountJobs(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	list, _ := s.ListJobs(ctx, opts)
	return len(list), nil
}

// memBookmarkStorage is an in-memory BookmarkStorage for tests.
type memBookmarkStorage struct {
	mu        sync.Mutex
	bookmarks map[string]*models.Bookmark
}

func newMemBookmarkStorage() *memBookmarkStorage {
	return &memBookmarkStorage{bookmarks: make(map[string]*models.Bookmark)}
}

func (s *memBookmarkStorage) SaveBookmark(ctx context.Context, bookmark *models.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *bookmark
	s.bookmarks[bookmark.ID] = &clone
	return nil
}

func (s *memBookmarkStorage) GetBookmark(ctx context.Context, id string) (*models.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bookmark, ok := s.bookmarks[id]
	if !ok {
		return nil, fmt.Errorf("bookmark not found: %s", id)
	}
	clone := *bookmark
	return &clone, nil
}

func (s *memBookmarkStorage) GetBookmarksByStatus(ctx context.Context, status models.BookmarkStatus) ([]*models.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.Bookmark
	for _, bookmark := range s.bookmarks {
		if bookmark.Status == status {
			clone := *bookmark
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *memBookmarkStorage) NextPendingBookmark(ctx context.Context) (*models.Bookmark, error) {
	pending, err := s.GetBookmarksByStatus(ctx, models.BookmarkStatusPending)
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	return pending[0], nil
}

func (s *memBookmarkStorage) UpdateBookmarkStatus(ctx context.Context, id string, status models.BookmarkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bookmark, ok := s.bookmarks[id]
	if !ok {
		return fmt.Errorf("bookmark not found: %s", id)
	}
	bookmark.Status = status
	bookmark.UpdatedAt = time.Now()
	return nil
}

func (s *memBookmarkStorage) DeleteBookmark(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookmarks, id)
	return nil
}
