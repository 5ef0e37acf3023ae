package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// JobListOptions filters job queries. Zero values mean "no filter".
type JobListOptions struct {
	Status     models.JobStatus
	Type       models.JobType
	ParentID   string
	BookmarkID string
	Limit      int
	Offset     int
}

// JobStorage is the durable keyed store for job records.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobs(ctx context.Context, ids []string) ([]*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	GetJobsByParent(ctx context.Context, parentID string) ([]*models.Job, error)
	GetJobsByBookmark(ctx context.Context, bookmarkID string) ([]*models.Job, error)
	GetActiveJobs(ctx context.Context) ([]*models.Job, error)
	GetInProgressJobs(ctx context.Context) ([]*models.Job, error)
	DeleteJob(ctx context.Context, id string) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountJobs(ctx context.Context, opts *JobListOptions) (int, error)
}

// BookmarkStorage is the durable store for bookmarks.
type BookmarkStorage interface {
	SaveBookmark(ctx context.Context, bookmark *models.Bookmark) error
	GetBookmark(ctx context.Context, id string) (*models.Bookmark, error)
	GetBookmarksByStatus(ctx context.Context, status models.BookmarkStatus) ([]*models.Bookmark, error)
	NextPendingBookmark(ctx context.Context) (*models.Bookmark, error)
	UpdateBookmarkStatus(ctx context.Context, id string, status models.BookmarkStatus) error
	DeleteBookmark(ctx context.Context, id string) error
}

// ContentStorage persists captured HTML, extracted markdown and Q&A
// records per bookmark.
type ContentStorage interface {
	SaveCapture(ctx context.Context, capture *models.CaptureRecord) error
	GetCaptureByBookmark(ctx context.Context, bookmarkID string) (*models.CaptureRecord, error)
	SavePageContent(ctx context.Context, content *models.PageContent) error
	GetPageContentByBookmark(ctx context.Context, bookmarkID string) (*models.PageContent, error)
	SaveQARecord(ctx context.Context, record *models.QARecord) error
	GetQARecordByBookmark(ctx context.Context, bookmarkID string) (*models.QARecord, error)
	DeleteContentByBookmark(ctx context.Context, bookmarkID string) error
}

// StorageManager aggregates the storage interfaces behind one lifecycle.
type StorageManager interface {
	JobStorage() JobStorage
	BookmarkStorage() BookmarkStorage
	ContentStorage() ContentStorage
	RunGC() error
	Close() error
}
