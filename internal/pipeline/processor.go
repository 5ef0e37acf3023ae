package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// Processor runs one bookmark through the content pipeline: captured HTML
// becomes markdown, markdown becomes Q&A pairs, pairs get embedding vectors.
// Each stage is tracked by its own job and committed to the store before the
// next stage starts, so a crash at any point leaves enough state for
// recovery to resume without redoing finished stages.
type Processor struct {
	jobManager *jobs.Manager
	bookmarks  interfaces.BookmarkStorage
	content    interfaces.ContentStorage
	extractor  interfaces.Extractor
	qaService  interfaces.QAService
	embedder   interfaces.EmbeddingService
	embedModel string
	logger     arbor.ILogger
}

// NewProcessor creates a pipeline processor.
func NewProcessor(jobManager *jobs.Manager, bookmarks interfaces.BookmarkStorage, content interfaces.ContentStorage, extractor interfaces.Extractor, qaService interfaces.QAService, embedder interfaces.EmbeddingService, embedModel string, logger arbor.ILogger) *Processor {
	return &Processor{
		jobManager: jobManager,
		bookmarks:  bookmarks,
		content:    content,
		extractor:  extractor,
		qaService:  qaService,
		embedder:   embedder,
		embedModel: embedModel,
		logger:     logger,
	}
}

// ProcessBookmark advances one bookmark through its remaining stages.
// Already-completed stages are skipped, so the method is safe to call again
// after a crash or a recovery requeue. Any stage failure marks the bookmark
// as errored and stops the pipeline; later stages never run on top of a
// failed one.
func (p *Processor) ProcessBookmark(ctx context.Context, bookmark *models.Bookmark) error {
	p.logger.Info().
		Str("bookmark_id", bookmark.ID).
		Str("url", bookmark.URL).
		Msg("Processing bookmark")

	if err := p.bookmarks.UpdateBookmarkStatus(ctx, bookmark.ID, models.BookmarkStatusProcessing); err != nil {
		return fmt.Errorf("failed to claim bookmark: %w", err)
	}

	if err := p.runMarkdownStage(ctx, bookmark); err != nil {
		return err
	}

	if cancelled, err := p.checkCancelled(ctx, bookmark.ID); err != nil {
		return err
	} else if cancelled {
		p.logger.Info().Str("bookmark_id", bookmark.ID).Msg("Bookmark processing cancelled")
		return p.bookmarks.UpdateBookmarkStatus(ctx, bookmark.ID, models.BookmarkStatusError)
	}

	if err := p.runQAStage(ctx, bookmark); err != nil {
		return err
	}

	if err := p.bookmarks.UpdateBookmarkStatus(ctx, bookmark.ID, models.BookmarkStatusComplete); err != nil {
		return fmt.Errorf("failed to complete bookmark: %w", err)
	}

	p.logger.Info().
		Str("bookmark_id", bookmark.ID).
		Msg("Bookmark processing complete")

	return nil
}

// runMarkdownStage converts the captured HTML into markdown. Skipped when
// the bookmark already has page content from an earlier run.
func (p *Processor) runMarkdownStage(ctx context.Context, bookmark *models.Bookmark) error {
	if existing, err := p.content.GetPageContentByBookmark(ctx, bookmark.ID); err == nil && existing != nil {
		p.logger.Debug().
			Str("bookmark_id", bookmark.ID).
			Msg("Page content already exists, skipping markdown stage")
		return nil
	}

	job, err := p.claimStageJob(ctx, bookmark.ID, models.JobTypeMarkdownGeneration)
	if err != nil {
		return err
	}

	capture, err := p.content.GetCaptureByBookmark(ctx, bookmark.ID)
	if err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID,
			jobs.NewError(jobs.ErrorKindExtractionError, "no captured HTML for bookmark %s: %v", bookmark.ID, err))
	}

	result, err := p.extractor.Extract(capture.HTML, capture.SourceURL)
	if err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID, err)
	}

	now := time.Now()
	pageContent := &models.PageContent{
		ID:             common.NewContentID(),
		BookmarkID:     bookmark.ID,
		SourceURL:      capture.SourceURL,
		Title:          result.Title,
		Markdown:       result.Markdown,
		CharacterCount: result.CharacterCount,
		WordCount:      result.WordCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.content.SavePageContent(ctx, pageContent); err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID, jobs.WrapError(jobs.ErrorKindApiError, err))
	}

	if result.Title != "" && bookmark.Title == "" {
		bookmark.Title = result.Title
		bookmark.UpdatedAt = now
		if err := p.bookmarks.SaveBookmark(ctx, bookmark); err != nil {
			p.logger.Warn().Err(err).Str("bookmark_id", bookmark.ID).Msg("Failed to save bookmark title")
		}
	}

	return p.jobManager.CompleteJob(ctx, job.ID, map[string]interface{}{
		models.MetaCharCount: result.CharacterCount,
		models.MetaWordCount: result.WordCount,
		models.MetaTitle:     result.Title,
	})
}

// runQAStage generates Q&A pairs from the page markdown and then embeds
// them. Embedding is the tail of this stage rather than a stage of its own:
// a Q&A record is only useful with its vectors, so the two commit together.
func (p *Processor) runQAStage(ctx context.Context, bookmark *models.Bookmark) error {
	if existing, err := p.content.GetQARecordByBookmark(ctx, bookmark.ID); err == nil && existing != nil {
		p.logger.Debug().
			Str("bookmark_id", bookmark.ID).
			Msg("Q&A record already exists, skipping Q&A stage")
		return nil
	}

	job, err := p.claimStageJob(ctx, bookmark.ID, models.JobTypeQaGeneration)
	if err != nil {
		return err
	}

	startTime := time.Now()

	pageContent, err := p.content.GetPageContentByBookmark(ctx, bookmark.ID)
	if err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID,
			jobs.NewError(jobs.ErrorKindExtractionError, "no page content for bookmark %s: %v", bookmark.ID, err))
	}

	pairs, err := p.qaService.GenerateQAPairs(ctx, pageContent.Markdown)
	if err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID, err)
	}

	if err := p.jobManager.UpdateProgress(ctx, job.ID, 75, "generating embeddings", map[string]interface{}{
		models.MetaPairCount: len(pairs),
	}); err != nil {
		return err
	}

	texts := make([]string, len(pairs))
	for i, pair := range pairs {
		texts[i] = pair.Question + "\n" + pair.Answer
	}

	embeddings, err := p.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID, err)
	}

	now := time.Now()
	record := &models.QARecord{
		ID:         common.NewContentID(),
		BookmarkID: bookmark.ID,
		Pairs:      pairs,
		Embeddings: embeddings,
		Model:      p.embedModel,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.content.SaveQARecord(ctx, record); err != nil {
		return p.failStage(ctx, job.ID, bookmark.ID, jobs.WrapError(jobs.ErrorKindApiError, err))
	}

	return p.jobManager.CompleteJob(ctx, job.ID, map[string]interface{}{
		models.MetaPairCount: len(pairs),
		models.MetaElapsedMs: time.Since(startTime).Milliseconds(),
	})
}

// claimStageJob marks a stage job in progress, reusing a pending job of the
// same type when one exists. Recovery requeues interrupted stage jobs to
// pending; claiming them here keeps their retry count alive, so a bookmark
// that keeps getting interrupted eventually exhausts its retries instead of
// accumulating duplicate jobs.
func (p *Processor) claimStageJob(ctx context.Context, bookmarkID string, jobType models.JobType) (*models.Job, error) {
	existing, err := p.jobManager.GetJobsByBookmark(ctx, bookmarkID)
	if err != nil {
		return nil, err
	}

	var job *models.Job
	for _, candidate := range existing {
		if candidate.Type == jobType && candidate.Status == models.JobStatusPending {
			job = candidate
			break
		}
	}
	if job == nil {
		if job, err = p.jobManager.CreateJob(ctx, jobType, "", bookmarkID, nil); err != nil {
			return nil, err
		}
	}

	if err := p.jobManager.MarkInProgress(ctx, job.ID); err != nil {
		return nil, err
	}
	return job, nil
}

// checkCancelled reports whether any pipeline job for the bookmark was
// cancelled while a stage was running.
func (p *Processor) checkCancelled(ctx context.Context, bookmarkID string) (bool, error) {
	jobList, err := p.jobManager.GetJobsByBookmark(ctx, bookmarkID)
	if err != nil {
		return false, err
	}
	for _, job := range jobList {
		if job.Status == models.JobStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

// failStage records a stage failure on both the job and the bookmark.
// The classified kind and message land in the job metadata; the bookmark
// goes to error so the queue loop stops picking it up.
func (p *Processor) failStage(ctx context.Context, jobID, bookmarkID string, stageErr error) error {
	classified := jobs.Classify(stageErr)

	if err := p.jobManager.FailJob(ctx, jobID, classified.Kind, classified.Message); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to record stage failure")
	}
	if err := p.bookmarks.UpdateBookmarkStatus(ctx, bookmarkID, models.BookmarkStatusError); err != nil {
		p.logger.Error().Err(err).Str("bookmark_id", bookmarkID).Msg("Failed to mark bookmark as errored")
	}

	return stageErr
}
