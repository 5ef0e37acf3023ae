package queue

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Processor advances one bookmark through the capture pipeline.
type Processor interface {
	ProcessBookmark(ctx context.Context, bookmark *models.Bookmark) error
}

// Loop is the top-level driver: every tick it checks the single-flight
// guard, claims the oldest pending bookmark and hands it to the pipeline
// processor. Bookmarks are processed one at a time in creation order; one
// bookmark's failure never blocks the next.
type Loop struct {
	guard     *Guard
	bookmarks interfaces.BookmarkStorage
	processor Processor
	interval  time.Duration
	logger    arbor.ILogger
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewLoop creates the queue loop.
func NewLoop(guard *Guard, bookmarks interfaces.BookmarkStorage, processor Processor, interval time.Duration, logger arbor.ILogger) *Loop {
	return &Loop{
		guard:     guard,
		bookmarks: bookmarks,
		processor: processor,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the loop until Stop is called or the context is cancelled.
// Blocks; run it in a goroutine.
func (l *Loop) Start(ctx context.Context) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().
		Dur("interval", l.interval).
		Msg("Queue loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Queue loop stopped: context cancelled")
			return
		case <-l.stopCh:
			l.logger.Info().Msg("Queue loop stopped")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the current tick to finish.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

// GuardState exposes the guard snapshot for the status endpoint.
func (l *Loop) GuardState() GuardState {
	return l.guard.State()
}

// tick processes at most one bookmark. A false guard return means another
// run is still in flight and this tick is skipped.
func (l *Loop) tick(ctx context.Context) {
	sessionID, ok := l.guard.Start()
	if !ok {
		l.logger.Debug().Msg("Queue tick skipped: operation already in flight")
		return
	}
	defer l.guard.Finish(sessionID)

	bookmark, err := l.bookmarks.NextPendingBookmark(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to query pending bookmarks")
		return
	}
	if bookmark == nil {
		return
	}

	l.logger.Debug().
		Str("bookmark_id", bookmark.ID).
		Str("url", bookmark.URL).
		Str("session_id", sessionID).
		Msg("Processing bookmark")

	if err := l.processor.ProcessBookmark(ctx, bookmark); err != nil {
		// Failure is recorded on the bookmark and its jobs by the
		// processor; the loop itself keeps going.
		l.logger.Warn().
			Err(err).
			Str("bookmark_id", bookmark.ID).
			Msg("Bookmark pipeline failed")
	}
}
