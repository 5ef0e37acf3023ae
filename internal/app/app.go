package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/extractor"
	"github.com/ternarybob/colligo/internal/fetcher"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/pipeline"
	"github.com/ternarybob/colligo/internal/queue"
	"github.com/ternarybob/colligo/internal/services/llm"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	JobManager     *jobs.Manager
	Recovery       *jobs.Recovery
	Sweeper        *jobs.Sweeper

	Extractor        interfaces.Extractor
	QAService        interfaces.QAService
	EmbeddingService interfaces.EmbeddingService

	Fetcher      interfaces.Fetcher
	BatchFetcher *fetcher.BatchFetcher
	Processor    *pipeline.Processor
	Loop         *queue.Loop

	// HTTP handlers
	CaptureHandler  *handlers.CaptureHandler
	ImportHandler   *handlers.ImportHandler
	JobHandler      *handlers.JobHandler
	BookmarkHandler *handlers.BookmarkHandler
	StatusHandler   *handlers.StatusHandler
}

// New initializes the application with all dependencies. Crash recovery
// runs before the queue loop starts, so stale jobs from a previous run are
// requeued or failed before any new work is picked up.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.JobManager = jobs.NewManager(storageManager.JobStorage(), logger)

	app.Recovery = jobs.NewRecovery(
		storageManager.JobStorage(),
		storageManager.BookmarkStorage(),
		common.Duration(cfg.Queue.StaleThreshold),
		cfg.Queue.MaxRetries,
		logger,
	)
	result, err := app.Recovery.Run(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("startup recovery failed: %w", err)
	}
	logger.Info().
		Int("requeued", result.Requeued).
		Int("failed_permanently", result.FailedPermanently).
		Int("bookmarks_reset", result.BookmarksReset).
		Int("bookmarks_errored", result.BookmarksErrored).
		Msg("Startup recovery complete")

	app.Extractor = extractor.NewService(logger)

	qaService, err := llm.NewClaudeService(&cfg.Claude, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize Q&A service: %w", err)
	}
	app.QAService = qaService

	embedder, err := llm.NewGeminiService(&cfg.Gemini, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	app.EmbeddingService = embedder

	app.Fetcher = fetcher.NewHTTPFetcher(&cfg.Fetcher, logger)
	app.BatchFetcher = fetcher.NewBatchFetcher(
		app.JobManager,
		storageManager.BookmarkStorage(),
		storageManager.ContentStorage(),
		app.Fetcher,
		cfg.Fetcher.Concurrency,
		logger,
	)

	app.Processor = pipeline.NewProcessor(
		app.JobManager,
		storageManager.BookmarkStorage(),
		storageManager.ContentStorage(),
		app.Extractor,
		app.QAService,
		app.EmbeddingService,
		cfg.Gemini.EmbedModelName,
		logger,
	)

	guard := queue.NewGuard("bookmark-pipeline", common.Duration(cfg.Queue.GuardTimeout), logger)
	app.Loop = queue.NewLoop(
		guard,
		storageManager.BookmarkStorage(),
		app.Processor,
		common.Duration(cfg.Queue.PollInterval),
		logger,
	)
	common.SafeGoWithContext(ctx, logger, "queue-loop", func() {
		app.Loop.Start(ctx)
	})

	app.Sweeper = jobs.NewSweeper(storageManager.JobStorage(), cfg.Queue.RetentionDays, cfg.Queue.SweepSchedule, storageManager.RunGC, logger)
	if err := app.Sweeper.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start retention sweeper")
	}

	app.CaptureHandler = handlers.NewCaptureHandler(app.JobManager, storageManager.BookmarkStorage(), storageManager.ContentStorage(), app.Fetcher, logger)
	app.ImportHandler = handlers.NewImportHandler(app.JobManager, app.BatchFetcher, logger)
	app.JobHandler = handlers.NewJobHandler(app.JobManager, logger)
	app.BookmarkHandler = handlers.NewBookmarkHandler(storageManager.BookmarkStorage(), storageManager.ContentStorage(), logger)
	app.StatusHandler = handlers.NewStatusHandler(storageManager, app.Loop, app.QAService, logger)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Close shuts down application components in reverse dependency order.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	a.cancelCtx()

	if a.Loop != nil {
		a.Loop.Stop()
	}
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.QAService != nil {
		if err := a.QAService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Q&A service")
		}
	}
	if a.EmbeddingService != nil {
		if err := a.EmbeddingService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close embedding service")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
