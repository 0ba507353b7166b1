package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plantvision/inspection-api/pkg/apperrors"
)

// TaskStatus is a task's lifecycle state. The literal values are part of the wire contract.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValidTaskStatus checks if the given status is valid.
func IsValidTaskStatus(s string) bool {
	switch TaskStatus(s) {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

// Priority is a task's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValidPriority checks if the given priority is valid.
func IsValidPriority(s string) bool {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a unit of maintenance work assigned to a worker.
type Task struct {
	ID                uuid.UUID       `json:"id"`
	AssignedTo        uuid.UUID       `json:"assignedTo"`
	AssignedBy        uuid.UUID       `json:"assignedBy"`
	EquipmentID       uuid.UUID       `json:"equipmentId"`
	Title             string          `json:"title"`
	Description       *string         `json:"description,omitempty"`
	Priority          Priority        `json:"priority"`
	Status            TaskStatus      `json:"status"`
	DueDate           *time.Time      `json:"dueDate,omitempty"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	CompletionNotes   *string         `json:"completionNotes,omitempty"`
	CompletionPhotoID *uuid.UUID      `json:"completionPhotoId,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`

	// Joined from equipment and users.
	EquipmentCode  string  `json:"equipmentCode,omitempty"`
	EquipmentName  string  `json:"equipmentName,omitempty"`
	LocationArea   *string `json:"locationArea,omitempty"`
	AssignedToName string  `json:"assignedToName,omitempty"`
	AssignedByName string  `json:"assignedByName,omitempty"`
}

// TaskFilter holds the request filters accepted by task listings.
type TaskFilter struct {
	PlantID     *uuid.UUID
	PlantArea   *string
	EquipmentID *uuid.UUID
	AssignedTo  *uuid.UUID
	Status      *TaskStatus
	Priority    *Priority
	Overdue     bool
}

// TaskCreate is the input for creating a task. Status is not accepted; new tasks
// always start pending.
type TaskCreate struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	EquipmentID uuid.UUID  `json:"equipmentId"`
	AssignedTo  uuid.UUID  `json:"assignedTo"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
}

// TaskUpdate holds the editable, non-lifecycle fields of a task.
type TaskUpdate struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Priority    *Priority  `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	AssignedTo  *uuid.UUID `json:"assignedTo"`
}

// StatusUpdate requests a lifecycle transition.
type StatusUpdate struct {
	Status            TaskStatus `json:"status"`
	CompletionNotes   *string    `json:"completionNotes"`
	CompletionPhotoID *uuid.UUID `json:"completionPhotoId"`
}

// TaskStats aggregates task counts across the caller's scope.
type TaskStats struct {
	StatusCounts   map[TaskStatus]int `json:"statusCounts"`
	PriorityCounts map[Priority]int   `json:"priorityCounts"`
	OverdueCount   int                `json:"overdueCount"`
	CompletionRate float64            `json:"completionRate"`
	Period         TaskStatsPeriod    `json:"period"`
}

// TaskStatsPeriod is the window the completion rate is computed over.
type TaskStatsPeriod struct {
	Days           int `json:"days"`
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
}

// InvalidTransitionError names a status pair that is not in the transition table.
type InvalidTransitionError struct {
	From TaskStatus
	To   TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return apperrors.ErrInvalidTransition }

// TransitionActor describes who is attempting a transition.
type TransitionActor struct {
	Role       Role
	IsAssignee bool
}

type transitionRule struct {
	to             TaskStatus
	supervisorOnly bool
}

// taskTransitions is the complete set of legal transitions. completed has no
// outgoing edges.
var taskTransitions = map[TaskStatus][]transitionRule{
	TaskStatusPending: {
		{to: TaskStatusInProgress},
		{to: TaskStatusCancelled},
	},
	TaskStatusInProgress: {
		{to: TaskStatusCompleted},
		{to: TaskStatusCancelled},
	},
	TaskStatusCancelled: {
		{to: TaskStatusPending, supervisorOnly: true},
	},
}

// CheckTransition validates a transition against the table and the actor's role.
// It returns apperrors.ErrTaskImmutable for any move out of completed, an
// *InvalidTransitionError for pairs not in the table, and an error matching
// apperrors.ErrForbidden when the pair is legal but the actor may not invoke it.
func CheckTransition(from, to TaskStatus, actor TransitionActor) error {
	if from == TaskStatusCompleted {
		return apperrors.ErrTaskImmutable
	}

	for _, rule := range taskTransitions[from] {
		if rule.to != to {
			continue
		}
		if actor.Role.IsSupervisor() {
			return nil
		}
		if rule.supervisorOnly {
			return apperrors.Forbidden("only managers can move a task from %s to %s", from, to)
		}
		if !actor.IsAssignee {
			return apperrors.Forbidden("only the assignee can update this task")
		}
		return nil
	}

	return &InvalidTransitionError{From: from, To: to}
}

// ApplyTransition sets the new status and its timestamp side effects on t and
// returns the fields that changed. It assumes CheckTransition already passed.
func ApplyTransition(t *Task, update StatusUpdate, now time.Time) map[string]any {
	changed := map[string]any{"status": update.Status}
	t.Status = update.Status

	switch update.Status {
	case TaskStatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
			changed["started_at"] = now
		}
	case TaskStatusCompleted:
		t.CompletedAt = &now
		changed["completed_at"] = now
		if update.CompletionNotes != nil {
			t.CompletionNotes = update.CompletionNotes
			changed["completion_notes"] = *update.CompletionNotes
		}
		if update.CompletionPhotoID != nil {
			t.CompletionPhotoID = update.CompletionPhotoID
			changed["completion_photo_id"] = *update.CompletionPhotoID
		}
	}

	return changed
}

// LifecycleSnapshot returns the lifecycle fields of t for audit old-values.
func (t *Task) LifecycleSnapshot() map[string]any {
	return map[string]any{
		"status":              t.Status,
		"started_at":          t.StartedAt,
		"completed_at":        t.CompletedAt,
		"completion_notes":    t.CompletionNotes,
		"completion_photo_id": t.CompletionPhotoID,
	}
}

// IsOverdue reports whether the task is past due and still open.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate == nil {
		return false
	}
	open := t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
	return open && t.DueDate.Before(now)
}
