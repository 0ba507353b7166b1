package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/audit"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/repositories"
	"github.com/plantvision/inspection-api/pkg/scope"
)

// DefaultAuditWriteTimeout bounds a single audit insert when none is configured.
const DefaultAuditWriteTimeout = 5 * time.Second

// AuditService writes and reads the audit trail.
//
// Record is best-effort: it never blocks the caller and never fails the operation
// being audited. Writes run outside any business transaction.
type AuditService interface {
	audit.Recorder

	// Flush waits until every entry handed to Record has been written or has failed.
	Flush(ctx context.Context) error

	// List returns entries matching filter, newest first.
	List(ctx context.Context, filter models.AuditFilter, page models.Page) (*models.ListResult[*models.AuditLogEntry], error)

	// Stats counts entries matching filter grouped by action.
	Stats(ctx context.Context, filter models.AuditFilter) (*models.AuditStats, error)

	// Cleanup deletes entries older than retentionDays and then records a CLEANUP
	// entry attributed to actor. A nil actor marks a system sweep.
	Cleanup(ctx context.Context, actor *models.Caller, retentionDays int) (*models.CleanupResult, error)
}

type auditService struct {
	repo         repositories.AuditRepository
	tx           database.Transactor
	writeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	wg sync.WaitGroup
}

// NewAuditService creates a new AuditService. A non-positive writeTimeout uses
// DefaultAuditWriteTimeout.
func NewAuditService(repo repositories.AuditRepository, tx database.Transactor, writeTimeout time.Duration, logger *zap.Logger) AuditService {
	if writeTimeout <= 0 {
		writeTimeout = DefaultAuditWriteTimeout
	}
	return &auditService{
		repo:         repo,
		tx:           tx,
		writeTimeout: writeTimeout,
		logger:       logger.Named("audit-service"),
		now:          time.Now,
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(ctx context.Context, entry models.AuditLogEntry) {
	entry.Normalize()
	if info, ok := audit.RequestInfoFrom(ctx); ok {
		if entry.IPAddress == nil && info.IPAddress != "" {
			entry.IPAddress = &info.IPAddress
		}
		if entry.UserAgent == nil && info.UserAgent != "" {
			entry.UserAgent = &info.UserAgent
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	writeCtx, cancel := context.WithTimeout(database.WithoutTx(context.WithoutCancel(ctx)), s.writeTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if err := s.repo.Create(writeCtx, &entry); err != nil {
			s.logger.Error("Failed to write audit log entry",
				zap.String("action", string(entry.Action)),
				zap.String("resource_type", string(entry.ResourceType)),
				zap.Stringp("resource_id", entry.ResourceID),
				zap.Error(err))
		}
	}()
}

func (s *auditService) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit flush interrupted: %w", ctx.Err())
	}
}

func (s *auditService) List(ctx context.Context, filter models.AuditFilter, page models.Page) (*models.ListResult[*models.AuditLogEntry], error) {
	pred := scope.AuditEntries(filter)
	result, err := listPage(ctx, s.tx, page,
		func(ctx context.Context) ([]*models.AuditLogEntry, error) { return s.repo.List(ctx, pred, page) },
		func(ctx context.Context) (int, error) { return s.repo.Count(ctx, pred) },
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return result, nil
}

func (s *auditService) Stats(ctx context.Context, filter models.AuditFilter) (*models.AuditStats, error) {
	counts, err := s.repo.CountByAction(ctx, scope.AuditEntries(filter))
	if err != nil {
		return nil, fmt.Errorf("count audit logs: %w", err)
	}

	stats := &models.AuditStats{ActionCounts: counts, Since: filter.StartDate}
	for _, n := range counts {
		stats.TotalActions += n
	}
	return stats, nil
}

func (s *auditService) Cleanup(ctx context.Context, actor *models.Caller, retentionDays int) (*models.CleanupResult, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete old audit logs: %w", err)
	}

	result := &models.CleanupResult{
		DeletedCount:  deleted,
		RetentionDays: retentionDays,
		CutoffDate:    cutoff,
	}

	var userID *uuid.UUID
	if actor != nil {
		userID = callerID(*actor)
	}
	s.Record(ctx, models.AuditLogEntry{
		UserID:       userID,
		Action:       models.AuditActionCleanup,
		ResourceType: models.AuditResourceAuditLogs,
		Metadata: map[string]any{
			"retentionDays": retentionDays,
			"deletedCount":  deleted,
			"cutoffDate":    cutoff.UTC().Format(time.RFC3339),
		},
	})

	s.logger.Info("Audit log cleanup completed",
		zap.Int("retention_days", retentionDays),
		zap.Int64("deleted_count", deleted),
		zap.Time("cutoff", cutoff))

	return result, nil
}
