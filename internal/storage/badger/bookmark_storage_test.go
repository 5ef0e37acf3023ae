package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func newBookmark(status models.BookmarkStatus, createdAt time.Time) *models.Bookmark {
	return &models.Bookmark{
		ID:        common.NewBookmarkID(),
		URL:       "https://example.com/" + common.NewSessionID(),
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestBookmarkStorage_SaveAndGet(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.BookmarkStorage()
	ctx := context.Background()

	bookmark := newBookmark(models.BookmarkStatusPending, time.Now())
	require.NoError(t, storage.SaveBookmark(ctx, bookmark))

	loaded, err := storage.GetBookmark(ctx, bookmark.ID)
	require.NoError(t, err)
	require.Equal(t, bookmark.URL, loaded.URL)
	require.Equal(t, models.BookmarkStatusPending, loaded.Status)
}

func TestBookmarkStorage_NextPendingBookmark(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.BookmarkStorage()
	ctx := context.Background()

	t.Run("Empty queue returns nil without error", func(t *testing.T) {
		next, err := storage.NextPendingBookmark(ctx)
		require.NoError(t, err)
		require.Nil(t, next)
	})

	base := time.Now().Add(-time.Hour)
	older := newBookmark(models.BookmarkStatusPending, base)
	newer := newBookmark(models.BookmarkStatusPending, base.Add(time.Minute))
	processing := newBookmark(models.BookmarkStatusProcessing, base.Add(-time.Minute))

	require.NoError(t, storage.SaveBookmark(ctx, newer))
	require.NoError(t, storage.SaveBookmark(ctx, older))
	require.NoError(t, storage.SaveBookmark(ctx, processing))

	t.Run("Oldest pending wins", func(t *testing.T) {
		next, err := storage.NextPendingBookmark(ctx)
		require.NoError(t, err)
		require.NotNil(t, next)
		require.Equal(t, older.ID, next.ID)
	})
}

func TestBookmarkStorage_UpdateStatus(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.BookmarkStorage()
	ctx := context.Background()

	bookmark := newBookmark(models.BookmarkStatusPending, time.Now().Add(-time.Minute))
	require.NoError(t, storage.SaveBookmark(ctx, bookmark))

	require.NoError(t, storage.UpdateBookmarkStatus(ctx, bookmark.ID, models.BookmarkStatusProcessing))

	loaded, err := storage.GetBookmark(ctx, bookmark.ID)
	require.NoError(t, err)
	require.Equal(t, models.BookmarkStatusProcessing, loaded.Status)
	require.True(t, loaded.UpdatedAt.After(bookmark.UpdatedAt))
}

func TestBookmarkStorage_GetBookmarksByStatus(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.BookmarkStorage()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, storage.SaveBookmark(ctx, newBookmark(models.BookmarkStatusProcessing, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, storage.SaveBookmark(ctx, newBookmark(models.BookmarkStatusComplete, base)))

	processing, err := storage.GetBookmarksByStatus(ctx, models.BookmarkStatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 3)
}

func TestContentStorage_RoundTrip(t *testing.T) {
	manager := newTestManager(t)
	content := manager.ContentStorage()
	ctx := context.Background()

	bookmarkID := common.NewBookmarkID()
	now := time.Now()

	capture := &models.CaptureRecord{
		ID:         common.NewCaptureID(),
		BookmarkID: bookmarkID,
		SourceURL:  "https://example.com",
		HTML:       "<html><body>hello</body></html>",
		SizeBytes:  31,
		CapturedAt: now,
	}
	require.NoError(t, content.SaveCapture(ctx, capture))

	page := &models.PageContent{
		ID:         common.NewContentID(),
		BookmarkID: bookmarkID,
		SourceURL:  "https://example.com",
		Markdown:   "hello",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, content.SavePageContent(ctx, page))

	record := &models.QARecord{
		ID:         common.NewContentID(),
		BookmarkID: bookmarkID,
		Pairs:      []models.QAPair{{Question: "q", Answer: "a"}},
		Embeddings: [][]float32{{0.1, 0.2}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, content.SaveQARecord(ctx, record))

	loadedCapture, err := content.GetCaptureByBookmark(ctx, bookmarkID)
	require.NoError(t, err)
	require.Equal(t, capture.HTML, loadedCapture.HTML)

	loadedPage, err := content.GetPageContentByBookmark(ctx, bookmarkID)
	require.NoError(t, err)
	require.Equal(t, "hello", loadedPage.Markdown)

	loadedRecord, err := content.GetQARecordByBookmark(ctx, bookmarkID)
	require.NoError(t, err)
	require.Len(t, loadedRecord.Pairs, 1)
	require.Len(t, loadedRecord.Embeddings, 1)

	require.NoError(t, content.DeleteContentByBookmark(ctx, bookmarkID))

	_, err = content.GetCaptureByBookmark(ctx, bookmarkID)
	require.Error(t, err)
	_, err = content.GetPageContentByBookmark(ctx, bookmarkID)
	require.Error(t, err)
	_, err = content.GetQARecordByBookmark(ctx, bookmarkID)
	require.Error(t, err)
}
