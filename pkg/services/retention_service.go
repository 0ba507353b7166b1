package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetentionDays is the default retention period for audit entries.
const DefaultRetentionDays = 365

// RetentionService periodically removes expired audit entries.
type RetentionService interface {
	// RunScheduler starts a background goroutine that sweeps on the given interval.
	// It runs immediately on startup, then repeats every interval.
	// Cancel the context to stop the scheduler; Wait blocks until it has stopped.
	RunScheduler(ctx context.Context, interval time.Duration)

	// Wait blocks until a scheduler started by RunScheduler has returned.
	Wait()
}

type retentionService struct {
	audit         AuditService
	retentionDays int
	logger        *zap.Logger
	wg            sync.WaitGroup
}

// NewRetentionService creates a RetentionService that keeps retentionDays of
// audit history. A retentionDays of 0 disables sweeping.
func NewRetentionService(audit AuditService, retentionDays int, logger *zap.Logger) RetentionService {
	return &retentionService{
		audit:         audit,
		retentionDays: retentionDays,
		logger:        logger.Named("retention-service"),
	}
}

var _ RetentionService = (*retentionService)(nil)

func (s *retentionService) RunScheduler(ctx context.Context, interval time.Duration) {
	if s.retentionDays <= 0 {
		s.logger.Info("Retention scheduler disabled")
		return
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("Retention scheduler started",
			zap.Duration("interval", interval),
			zap.Int("retention_days", s.retentionDays))

		// Run immediately on startup, then at each interval
		s.sweep(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Retention scheduler stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *retentionService) Wait() {
	s.wg.Wait()
}

func (s *retentionService) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.audit.Cleanup(ctx, nil, s.retentionDays); err != nil {
		s.logger.Error("Retention sweep failed",
			zap.Int("retention_days", s.retentionDays),
			zap.Error(err))
	}
}
