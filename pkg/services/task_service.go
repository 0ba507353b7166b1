package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/audit"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/repositories"
	"github.com/plantvision/inspection-api/pkg/scope"
)

// Task field limits.
const (
	MaxTaskTitleLength       = 255
	MaxTaskDescriptionLength = 1000
	MaxCompletionNotesLength = 1000

	// TaskStatsDays is the window the task completion rate is computed over.
	TaskStatsDays = 30
)

// TaskService manages maintenance tasks and their lifecycle.
type TaskService interface {
	// Create assigns a new pending task. Only managers and admins may create tasks.
	Create(ctx context.Context, caller models.Caller, input models.TaskCreate) (*models.Task, error)

	// List returns the tasks visible to caller, newest first.
	List(ctx context.Context, caller models.Caller, filter models.TaskFilter, page models.Page) (*models.ListResult[*models.Task], error)

	// Get returns a single visible task and records the view.
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Task, error)

	// UpdateStatus applies a lifecycle transition atomically.
	UpdateStatus(ctx context.Context, caller models.Caller, id uuid.UUID, update models.StatusUpdate) (*models.Task, error)

	// Update edits the non-lifecycle fields of a task.
	Update(ctx context.Context, caller models.Caller, id uuid.UUID, input models.TaskUpdate) (*models.Task, error)

	// Delete removes a task that is not completed.
	Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error

	// Stats aggregates the tasks visible to caller.
	Stats(ctx context.Context, caller models.Caller) (*models.TaskStats, error)
}

type taskService struct {
	tasks     repositories.TaskRepository
	equipment repositories.EquipmentRepository
	users     repositories.UserRepository
	photos    repositories.PhotoRepository
	tx        database.Transactor
	audit     audit.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskService creates a new TaskService.
func NewTaskService(
	tasks repositories.TaskRepository,
	equipment repositories.EquipmentRepository,
	users repositories.UserRepository,
	photos repositories.PhotoRepository,
	tx database.Transactor,
	recorder audit.Recorder,
	logger *zap.Logger,
) TaskService {
	return &taskService{
		tasks:     tasks,
		equipment: equipment,
		users:     users,
		photos:    photos,
		tx:        tx,
		audit:     recorder,
		logger:    logger.Named("task-service"),
		now:       time.Now,
	}
}

var _ TaskService = (*taskService)(nil)

func (s *taskService) Create(ctx context.Context, caller models.Caller, input models.TaskCreate) (*models.Task, error) {
	if !caller.Role.IsSupervisor() {
		return nil, apperrors.Forbidden("only managers can create tasks")
	}

	input.Title = strings.TrimSpace(input.Title)
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	if err := validateTaskFields(&input.Title, input.Description, &input.Priority); err != nil {
		return nil, err
	}
	if input.AssignedTo == uuid.Nil {
		return nil, apperrors.Validation("Valid user ID is required")
	}
	if input.EquipmentID == uuid.Nil {
		return nil, apperrors.Validation("Valid equipment ID is required")
	}

	if err := s.requireActiveAssignee(ctx, input.AssignedTo); err != nil {
		return nil, err
	}

	eq, err := s.equipment.Get(ctx, scope.Predicate{}.Where(scope.ColEquipmentID, scope.OpEq, input.EquipmentID))
	if err != nil {
		return nil, err
	}
	if !scope.CanWriteArea(caller, eq.Area()) {
		return nil, apperrors.Forbidden("Access denied to this equipment area")
	}

	task := &models.Task{
		AssignedTo:  input.AssignedTo,
		AssignedBy:  caller.ID,
		EquipmentID: input.EquipmentID,
		Title:       input.Title,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      models.TaskStatusPending,
		DueDate:     input.DueDate,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionCreate,
		ResourceType: models.AuditResourceTask,
		ResourceID:   resourceID(task.ID),
		NewValues: map[string]any{
			"assigned_to":  task.AssignedTo,
			"assigned_by":  task.AssignedBy,
			"equipment_id": task.EquipmentID,
			"title":        task.Title,
			"description":  task.Description,
			"priority":     task.Priority,
			"due_date":     task.DueDate,
			"status":       task.Status,
		},
	})

	s.logger.Info("Task created",
		zap.String("task_id", task.ID.String()),
		zap.String("assigned_to", task.AssignedTo.String()),
		zap.String("created_by", caller.ID.String()))

	return task, nil
}

func (s *taskService) List(ctx context.Context, caller models.Caller, filter models.TaskFilter, page models.Page) (*models.ListResult[*models.Task], error) {
	pred := scope.Tasks(caller, filter)
	return listPage(ctx, s.tx, page,
		func(ctx context.Context) ([]*models.Task, error) { return s.tasks.List(ctx, pred, page) },
		func(ctx context.Context) (int, error) { return s.tasks.Count(ctx, pred) },
	)
}

func (s *taskService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.Get(ctx, scope.TaskByID(caller, id))
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionView,
		ResourceType: models.AuditResourceTask,
		ResourceID:   resourceID(id),
	})
	return task, nil
}

func (s *taskService) UpdateStatus(ctx context.Context, caller models.Caller, id uuid.UUID, update models.StatusUpdate) (*models.Task, error) {
	if !models.IsValidTaskStatus(string(update.Status)) {
		return nil, apperrors.Validation("Invalid status")
	}
	if update.CompletionNotes != nil && len(*update.CompletionNotes) > MaxCompletionNotesLength {
		return nil, apperrors.Validation("Completion notes cannot exceed %d characters", MaxCompletionNotesLength)
	}

	var (
		task      *models.Task
		oldValues map[string]any
		newValues map[string]any
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.tasks.GetForUpdate(ctx, scope.TaskByID(caller, id))
		if err != nil {
			return err
		}

		actor := models.TransitionActor{Role: caller.Role, IsAssignee: task.AssignedTo == caller.ID}
		if err := models.CheckTransition(task.Status, update.Status, actor); err != nil {
			return err
		}

		if update.CompletionPhotoID != nil {
			owned, err := s.photos.IsOwnedBy(ctx, *update.CompletionPhotoID, caller.ID)
			if err != nil {
				return err
			}
			if !owned {
				return apperrors.Validation("Invalid completion photo")
			}
		}

		oldValues = task.LifecycleSnapshot()
		newValues = models.ApplyTransition(task, update, s.now())
		return s.tasks.UpdateLifecycle(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionUpdate,
		ResourceType: models.AuditResourceTask,
		ResourceID:   resourceID(id),
		OldValues:    oldValues,
		NewValues:    newValues,
	})

	s.logger.Info("Task status updated",
		zap.String("task_id", id.String()),
		zap.String("from", fmt.Sprint(oldValues["status"])),
		zap.String("to", string(update.Status)),
		zap.String("user_id", caller.ID.String()))

	return task, nil
}

func (s *taskService) Update(ctx context.Context, caller models.Caller, id uuid.UUID, input models.TaskUpdate) (*models.Task, error) {
	if !caller.Role.IsSupervisor() {
		return nil, apperrors.Forbidden("only managers can edit tasks")
	}
	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		input.Title = &trimmed
	}
	if err := validateTaskFields(input.Title, input.Description, input.Priority); err != nil {
		return nil, err
	}

	var (
		task      *models.Task
		oldValues map[string]any
		newValues = map[string]any{}
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.lockForManagement(ctx, caller, id)
		if err != nil {
			return err
		}
		if task.Status == models.TaskStatusCompleted {
			return apperrors.ErrTaskImmutable
		}

		if input.AssignedTo != nil && *input.AssignedTo != task.AssignedTo {
			if err := s.requireActiveAssignee(ctx, *input.AssignedTo); err != nil {
				return err
			}
		}

		oldValues = map[string]any{
			"title":       task.Title,
			"description": task.Description,
			"priority":    task.Priority,
			"due_date":    task.DueDate,
			"assigned_to": task.AssignedTo,
		}

		if input.Title != nil {
			task.Title = *input.Title
			newValues["title"] = task.Title
		}
		if input.Description != nil {
			task.Description = input.Description
			newValues["description"] = *input.Description
		}
		if input.Priority != nil {
			task.Priority = *input.Priority
			newValues["priority"] = task.Priority
		}
		if input.DueDate != nil {
			task.DueDate = input.DueDate
			newValues["due_date"] = *input.DueDate
		}
		if input.AssignedTo != nil {
			task.AssignedTo = *input.AssignedTo
			newValues["assigned_to"] = task.AssignedTo
		}

		return s.tasks.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionUpdate,
		ResourceType: models.AuditResourceTask,
		ResourceID:   resourceID(id),
		OldValues:    oldValues,
		NewValues:    newValues,
	})
	return task, nil
}

func (s *taskService) Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	if !caller.Role.IsSupervisor() {
		return apperrors.Forbidden("only managers can delete tasks")
	}

	var task *models.Task
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		task, err = s.lockForManagement(ctx, caller, id)
		if err != nil {
			return err
		}
		if task.Status == models.TaskStatusCompleted {
			return apperrors.Conflict("Cannot delete completed tasks")
		}
		return s.tasks.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionDelete,
		ResourceType: models.AuditResourceTask,
		ResourceID:   resourceID(id),
		OldValues: map[string]any{
			"title":        task.Title,
			"status":       task.Status,
			"priority":     task.Priority,
			"assigned_to":  task.AssignedTo,
			"assigned_by":  task.AssignedBy,
			"equipment_id": task.EquipmentID,
			"due_date":     task.DueDate,
		},
	})

	s.logger.Info("Task deleted",
		zap.String("task_id", id.String()),
		zap.String("user_id", caller.ID.String()))
	return nil
}

func (s *taskService) Stats(ctx context.Context, caller models.Caller) (*models.TaskStats, error) {
	since := s.now().AddDate(0, 0, -TaskStatsDays)

	var stats *models.TaskStats
	err := s.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.tasks.Stats(ctx, scope.Tasks(caller, models.TaskFilter{}), since)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	stats.Period.Days = TaskStatsDays
	return stats, nil
}

// lockForManagement locks a task for a manager edit. The lookup is not area
// scoped so that an out-of-area manager is told they are forbidden rather than
// that the task does not exist.
func (s *taskService) lockForManagement(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetForUpdate(ctx, scope.Predicate{}.Where(scope.ColTaskID, scope.OpEq, id))
	if err != nil {
		return nil, err
	}
	area := ""
	if task.LocationArea != nil {
		area = *task.LocationArea
	}
	if !scope.CanWriteArea(caller, area) {
		return nil, apperrors.Forbidden("Access denied to this task")
	}
	return task, nil
}

func (s *taskService) requireActiveAssignee(ctx context.Context, id uuid.UUID) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Validation("Assigned user not found or inactive")
		}
		return err
	}
	if !user.IsActive {
		return apperrors.Validation("Assigned user not found or inactive")
	}
	return nil
}

func validateTaskFields(title, description *string, priority *models.Priority) error {
	if title != nil && (*title == "" || len(*title) > MaxTaskTitleLength) {
		return apperrors.Validation("Title is required and must be less than %d characters", MaxTaskTitleLength)
	}
	if description != nil && len(*description) > MaxTaskDescriptionLength {
		return apperrors.Validation("Description cannot exceed %d characters", MaxTaskDescriptionLength)
	}
	if priority != nil && !models.IsValidPriority(string(*priority)) {
		return apperrors.Validation("Invalid priority level")
	}
	return nil
}
