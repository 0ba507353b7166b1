package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/audit"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/repositories"
	"github.com/plantvision/inspection-api/pkg/scope"
)

// EquipmentService provides read access to plant equipment.
type EquipmentService interface {
	List(ctx context.Context, caller models.Caller, filter models.EquipmentFilter, page models.Page) (*models.ListResult[*models.Equipment], error)
	// Get returns the equipment with its photo and task counts and records the view.
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.EquipmentWithCounts, error)
	// GetByQRCode resolves a scanned QR code and records the scan.
	GetByQRCode(ctx context.Context, caller models.Caller, code string) (*models.EquipmentWithCounts, error)
	Types(ctx context.Context, caller models.Caller) ([]string, error)
	Photos(ctx context.Context, caller models.Caller, id uuid.UUID, page models.Page) (*models.ListResult[*models.Photo], error)
	Tasks(ctx context.Context, caller models.Caller, id uuid.UUID, page models.Page) (*models.ListResult[*models.Task], error)
}

type equipmentService struct {
	equipment repositories.EquipmentRepository
	photos    PhotoService
	tasks     TaskService
	tx        database.Transactor
	audit     audit.Recorder
	logger    *zap.Logger
}

// NewEquipmentService creates a new EquipmentService. Per-equipment photo and task
// listings are delegated to the photo and task services so they share their
// visibility rules and URL signing.
func NewEquipmentService(
	equipment repositories.EquipmentRepository,
	photos PhotoService,
	tasks TaskService,
	tx database.Transactor,
	recorder audit.Recorder,
	logger *zap.Logger,
) EquipmentService {
	return &equipmentService{
		equipment: equipment,
		photos:    photos,
		tasks:     tasks,
		tx:        tx,
		audit:     recorder,
		logger:    logger.Named("equipment-service"),
	}
}

var _ EquipmentService = (*equipmentService)(nil)

func (s *equipmentService) List(ctx context.Context, caller models.Caller, filter models.EquipmentFilter, page models.Page) (*models.ListResult[*models.Equipment], error) {
	pred := scope.Equipment(caller, filter)
	return listPage(ctx, s.tx, page,
		func(ctx context.Context) ([]*models.Equipment, error) { return s.equipment.List(ctx, pred, page) },
		func(ctx context.Context) (int, error) { return s.equipment.Count(ctx, pred) },
	)
}

func (s *equipmentService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.EquipmentWithCounts, error) {
	eq, err := s.withCounts(ctx, scope.EquipmentByID(caller, id), "Equipment not found")
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionView,
		ResourceType: models.AuditResourceEquipment,
		ResourceID:   resourceID(id),
	})
	return eq, nil
}

func (s *equipmentService) GetByQRCode(ctx context.Context, caller models.Caller, code string) (*models.EquipmentWithCounts, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Validation("QR code is required")
	}

	eq, err := s.withCounts(ctx, scope.EquipmentByQRCode(caller, code), "Equipment not found for this QR code")
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionQRScan,
		ResourceType: models.AuditResourceEquipment,
		ResourceID:   resourceID(eq.ID),
		Metadata:     map[string]any{"qrCode": code},
	})

	s.logger.Debug("QR code resolved",
		zap.String("equipment_id", eq.ID.String()),
		zap.String("user_id", caller.ID.String()))
	return eq, nil
}

func (s *equipmentService) Types(ctx context.Context, caller models.Caller) ([]string, error) {
	types, err := s.equipment.Types(ctx, scope.Equipment(caller, models.EquipmentFilter{}))
	if err != nil {
		return nil, err
	}
	if types == nil {
		types = []string{}
	}
	return types, nil
}

func (s *equipmentService) Photos(ctx context.Context, caller models.Caller, id uuid.UUID, page models.Page) (*models.ListResult[*models.Photo], error) {
	if err := s.requireVisible(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.photos.List(ctx, caller, models.PhotoFilter{EquipmentID: &id}, page)
}

func (s *equipmentService) Tasks(ctx context.Context, caller models.Caller, id uuid.UUID, page models.Page) (*models.ListResult[*models.Task], error) {
	if err := s.requireVisible(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.tasks.List(ctx, caller, models.TaskFilter{EquipmentID: &id}, page)
}

func (s *equipmentService) withCounts(ctx context.Context, pred scope.Predicate, notFoundMsg string) (*models.EquipmentWithCounts, error) {
	var result *models.EquipmentWithCounts
	err := s.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		eq, err := s.equipment.Get(ctx, pred)
		if err != nil {
			return err
		}
		photoCount, taskCount, err := s.equipment.Counts(ctx, eq.ID)
		if err != nil {
			return err
		}
		result = &models.EquipmentWithCounts{Equipment: eq, PhotoCount: photoCount, TaskCount: taskCount}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("%s", notFoundMsg)
		}
		return nil, err
	}
	return result, nil
}

func (s *equipmentService) requireVisible(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	if _, err := s.equipment.Get(ctx, scope.EquipmentByID(caller, id)); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NotFound("Equipment not found")
		}
		return err
	}
	return nil
}
