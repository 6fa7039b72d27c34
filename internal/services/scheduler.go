package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Scheduler triggers an ingestion run at start and then every interval.
// Failed runs are retried on the next tick only.
type Scheduler struct {
	ingestion IngestionService
	interval  time.Duration
	logger    *zap.Logger
}

func NewScheduler(ingestion IngestionService, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{ingestion: ingestion, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("ingestion scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingestion scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.ingestion.RunOnce(ctx, TriggerSchedule); err != nil {
		if errors.Is(err, ErrIngestionRunning) {
			s.logger.Debug("previous ingestion still running, tick skipped")
			return
		}
		s.logger.Error("scheduled ingestion failed", zap.Error(err))
	}
}
