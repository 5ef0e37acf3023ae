package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Sweeper removes completed jobs older than the retention window on a cron
// schedule. Failed jobs are never removed automatically; they hold the
// error details users need.
type Sweeper struct {
	jobStorage interfaces.JobStorage
	logger     arbor.ILogger
	cron       *cron.Cron
	retention  time.Duration
	schedule   string
	gcFunc     func() error
}

// NewSweeper creates a retention sweeper. gcFunc is optional; when set it
// runs after each sweep to reclaim store space.
func NewSweeper(jobStorage interfaces.JobStorage, retentionDays int, schedule string, gcFunc func() error, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		jobStorage: jobStorage,
		logger:     logger,
		cron:       cron.New(),
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
		schedule:   schedule,
		gcFunc:     gcFunc,
	}
}

// Start registers the cron entry and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.schedule).
		Dur("retention", s.retention).
		Msg("Retention sweeper started")

	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep deletes completed jobs older than the retention window.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention)

	deleted, err := s.jobStorage.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Expired completed jobs removed")
	}

	if s.gcFunc != nil {
		if err := s.gcFunc(); err != nil {
			s.logger.Warn().Err(err).Msg("Store garbage collection failed after sweep")
		}
	}

	return deleted, nil
}
