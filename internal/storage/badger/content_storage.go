package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ContentStorage implements the ContentStorage interface for Badger
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) SaveCapture(ctx context.Context, capture *models.CaptureRecord) error {
	if capture == nil || capture.ID == "" {
		return fmt.Errorf("capture record with ID is required")
	}

	if err := s.db.Store().Upsert(capture.ID, capture); err != nil {
		return fmt.Errorf("failed to save capture record: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetCaptureByBookmark(ctx context.Context, bookmarkID string) (*models.CaptureRecord, error) {
	var captures []models.CaptureRecord
	if err := s.db.Store().Find(&captures, badgerhold.Where("BookmarkID").Eq(bookmarkID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get capture record: %w", err)
	}
	if len(captures) == 0 {
		return nil, fmt.Errorf("capture record not found for bookmark: %s", bookmarkID)
	}
	return &captures[0], nil
}

func (s *ContentStorage) SavePageContent(ctx context.Context, content *models.PageContent) error {
	if content == nil || content.ID == "" {
		return fmt.Errorf("page content with ID is required")
	}

	if err := s.db.Store().Upsert(content.ID, content); err != nil {
		return fmt.Errorf("failed to save page content: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetPageContentByBookmark(ctx context.Context, bookmarkID string) (*models.PageContent, error) {
	var contents []models.PageContent
	if err := s.db.Store().Find(&contents, badgerhold.Where("BookmarkID").Eq(bookmarkID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("page content not found for bookmark: %s", bookmarkID)
	}
	return &contents[0], nil
}

func (s *ContentStorage) SaveQARecord(ctx context.Context, record *models.QARecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("qa record with ID is required")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save qa record: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetQARecordByBookmark(ctx context.Context, bookmarkID string) (*models.QARecord, error) {
	var records []models.QARecord
	if err := s.db.Store().Find(&records, badgerhold.Where("BookmarkID").Eq(bookmarkID).Limit(1)); err != nil {
		return nil, fmt.Errorf("failed to get qa record: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("qa record not found for bookmark: %s", bookmarkID)
	}
	return &records[0], nil
}

func (s *ContentStorage) DeleteContentByBookmark(ctx context.Context, bookmarkID string) error {
	if err := s.db.Store().DeleteMatching(&models.CaptureRecord{}, badgerhold.Where("BookmarkID").Eq(bookmarkID)); err != nil {
		return fmt.Errorf("failed to delete capture records: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.PageContent{}, badgerhold.Where("BookmarkID").Eq(bookmarkID)); err != nil {
		return fmt.Errorf("failed to delete page content: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.QARecord{}, badgerhold.Where("BookmarkID").Eq(bookmarkID)); err != nil {
		return fmt.Errorf("failed to delete qa records: %w", err)
	}
	return nil
}
