package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

const taskColumns = `
	t.id, t.assigned_to, t.assigned_by, t.equipment_id, t.title, t.description,
	t.priority, t.status, t.due_date, t.started_at, t.completed_at, t.completion_notes,
	t.completion_photo_id, t.metadata, t.created_at, t.updated_at,
	e.equipment_code, e.equipment_name, e.location_area,
	ua.first_name || ' ' || ua.last_name, ub.first_name || ' ' || ub.last_name`

const tasksFrom = `
	FROM tasks t
	JOIN equipment e ON e.id = t.equipment_id
	JOIN users ua ON ua.id = t.assigned_to
	JOIN users ub ON ub.id = t.assigned_by`

// TaskRepository provides data access for maintenance tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	// List returns tasks matching pred, newest first.
	List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.Task, error)
	Count(ctx context.Context, pred scope.Predicate) (int, error)
	// Get returns the single task matching pred.
	Get(ctx context.Context, pred scope.Predicate) (*models.Task, error)
	// GetForUpdate is Get with the task row locked until the transaction ends.
	// Concurrent transitions on the same task serialize on this lock.
	GetForUpdate(ctx context.Context, pred scope.Predicate) (*models.Task, error)
	// UpdateLifecycle writes the status and lifecycle timestamps of task.
	UpdateLifecycle(ctx context.Context, task *models.Task) error
	// Update writes the editable, non-lifecycle fields of task.
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Stats aggregates tasks matching pred. The completion rate covers tasks created since.
	Stats(ctx context.Context, pred scope.Predicate, since time.Time) (*models.TaskStats, error)
}

type taskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *database.DB) TaskRepository {
	return &taskRepository{db: db}
}

var _ TaskRepository = (*taskRepository)(nil)

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	query := `
		INSERT INTO tasks (
			id, assigned_to, assigned_by, equipment_id, title, description,
			priority, status, due_date, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		task.ID,
		task.AssignedTo,
		task.AssignedBy,
		task.EquipmentID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.DueDate,
		rawJSON(task.Metadata),
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.Validation("assignee or equipment does not exist")
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *taskRepository) List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.Task, error) {
	where, args := pred.SQL(1)
	limit, args := pageClause(args, page)
	query := `SELECT ` + taskColumns + ` ` + tasksFrom + `
		WHERE ` + where + `
		ORDER BY t.created_at DESC, t.id` + limit

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

func (r *taskRepository) Count(ctx context.Context, pred scope.Predicate) (int, error) {
	count, err := countWhere(ctx, r.db.Querier(ctx), tasksFrom, pred)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func (r *taskRepository) Get(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	return r.get(ctx, pred, "")
}

func (r *taskRepository) GetForUpdate(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	return r.get(ctx, pred, " FOR UPDATE OF t")
}

func (r *taskRepository) get(ctx context.Context, pred scope.Predicate, lock string) (*models.Task, error) {
	where, args := pred.SQL(1)
	query := `SELECT ` + taskColumns + ` ` + tasksFrom + ` WHERE ` + where + ` LIMIT 1` + lock

	task, err := scanTask(r.db.Querier(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "Task")
	}
	return task, nil
}

func (r *taskRepository) UpdateLifecycle(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET status = $2, started_at = $3, completed_at = $4,
		    completion_notes = $5, completion_photo_id = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		task.ID,
		task.Status,
		task.StartedAt,
		task.CompletedAt,
		task.CompletionNotes,
		task.CompletionPhotoID,
	).Scan(&task.UpdatedAt)
	if err != nil {
		return notFound(err, "Task")
	}
	return nil
}

func (r *taskRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $2, description = $3, priority = $4, due_date = $5,
		    assigned_to = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Priority,
		task.DueDate,
		task.AssignedTo,
	).Scan(&task.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.Validation("assignee does not exist")
		}
		return notFound(err, "Task")
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("Task not found")
	}
	return nil
}

func (r *taskRepository) Stats(ctx context.Context, pred scope.Predicate, since time.Time) (*models.TaskStats, error) {
	q := r.db.Querier(ctx)
	where, args := pred.SQL(1)

	stats := &models.TaskStats{
		StatusCounts:   make(map[models.TaskStatus]int),
		PriorityCounts: make(map[models.Priority]int),
	}

	groupQuery := func(column string, scan func(key string, count int)) error {
		query := `SELECT ` + column + `, COUNT(*) ` + tasksFrom + ` WHERE ` + where + ` GROUP BY ` + column
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				return err
			}
			scan(key, count)
		}
		return rows.Err()
	}

	if err := groupQuery("t.status", func(k string, n int) { stats.StatusCounts[models.TaskStatus(k)] = n }); err != nil {
		return nil, fmt.Errorf("failed to query task status counts: %w", err)
	}
	if err := groupQuery("t.priority", func(k string, n int) { stats.PriorityCounts[models.Priority(k)] = n }); err != nil {
		return nil, fmt.Errorf("failed to query task priority counts: %w", err)
	}

	sinceArg := len(args) + 1
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE t.due_date < NOW() AND t.status IN ('pending', 'in_progress')),
			COUNT(*) FILTER (WHERE t.created_at >= $%d),
			COUNT(*) FILTER (WHERE t.created_at >= $%d AND t.status = 'completed')
		%s
		WHERE %s`, sinceArg, sinceArg, tasksFrom, where)

	err := q.QueryRow(ctx, query, append(args, since)...).Scan(
		&stats.OverdueCount,
		&stats.Period.TotalTasks,
		&stats.Period.CompletedTasks,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query task totals: %w", err)
	}

	stats.CompletionRate = percentage(stats.Period.CompletedTasks, stats.Period.TotalTasks)
	return stats, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID,
		&t.AssignedTo,
		&t.AssignedBy,
		&t.EquipmentID,
		&t.Title,
		&t.Description,
		&t.Priority,
		&t.Status,
		&t.DueDate,
		&t.StartedAt,
		&t.CompletedAt,
		&t.CompletionNotes,
		&t.CompletionPhotoID,
		&t.Metadata,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.EquipmentCode,
		&t.EquipmentName,
		&t.LocationArea,
		&t.AssignedToName,
		&t.AssignedByName,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
