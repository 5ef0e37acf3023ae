package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BookmarkStorage implements the BookmarkStorage interface for Badger
type BookmarkStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBookmarkStorage creates a new BookmarkStorage instance
func NewBookmarkStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BookmarkStorage {
	return &BookmarkStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BookmarkStorage) SaveBookmark(ctx context.Context, bookmark *models.Bookmark) error {
	if bookmark == nil {
		return fmt.Errorf("bookmark is required")
	}
	if bookmark.ID == "" {
		return fmt.Errorf("bookmark ID is required")
	}

	if err := s.db.Store().Upsert(bookmark.ID, bookmark); err != nil {
		return fmt.Errorf("failed to save bookmark: %w", err)
	}
	return nil
}

func (s *BookmarkStorage) GetBookmark(ctx context.Context, id string) (*models.Bookmark, error) {
	var bookmark models.Bookmark
	if err := s.db.Store().Get(id, &bookmark); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("bookmark not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return &bookmark, nil
}

func (s *BookmarkStorage) GetBookmarksByStatus(ctx context.Context, status models.BookmarkStatus) ([]*models.Bookmark, error) {
	var bookmarks []models.Bookmark
	if err := s.db.Store().Find(&bookmarks, badgerhold.Where("Status").Eq(status).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to get bookmarks by status: %w", err)
	}

	result := make([]*models.Bookmark, len(bookmarks))
	for i := range bookmarks {
		result[i] = &bookmarks[i]
	}
	return result, nil
}

// NextPendingBookmark returns the oldest pending bookmark, or nil when the
// queue is empty. FIFO by creation time.
func (s *BookmarkStorage) NextPendingBookmark(ctx context.Context) (*models.Bookmark, error) {
	var bookmarks []models.Bookmark
	err := s.db.Store().Find(&bookmarks,
		badgerhold.Where("Status").Eq(models.BookmarkStatusPending).SortBy("CreatedAt").Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending bookmarks: %w", err)
	}
	if len(bookmarks) == 0 {
		return nil, nil
	}
	return &bookmarks[0], nil
}

func (s *BookmarkStorage) UpdateBookmarkStatus(ctx context.Context, id string, status models.BookmarkStatus) error {
	var bookmark models.Bookmark
	if err := s.db.Store().Get(id, &bookmark); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("bookmark not found: %s", id)
		}
		return fmt.Errorf("failed to get bookmark: %w", err)
	}

	bookmark.Status = status
	bookmark.UpdatedAt = time.Now()

	return s.SaveBookmark(ctx, &bookmark)
}

func (s *BookmarkStorage) DeleteBookmark(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Bookmark{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return err
	}
	return nil
}
