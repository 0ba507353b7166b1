package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

const auditFrom = `FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id`

// AuditRepository provides data access for the audit trail. Entries are only ever
// appended, except by DeleteOlderThan.
type AuditRepository interface {
	// Create inserts a new audit log entry.
	Create(ctx context.Context, entry *models.AuditLogEntry) error

	// List returns entries matching pred, newest first.
	List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.AuditLogEntry, error)

	// Count returns the number of entries matching pred.
	Count(ctx context.Context, pred scope.Predicate) (int, error)

	// CountByAction returns the number of entries matching pred grouped by action.
	CountByAction(ctx context.Context, pred scope.Predicate) (map[models.AuditAction]int, error)

	// DeleteOlderThan removes entries created before cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	oldValues, err := marshalJSONB(entry.OldValues)
	if err != nil {
		return fmt.Errorf("failed to marshal old_values: %w", err)
	}
	newValues, err := marshalJSONB(entry.NewValues)
	if err != nil {
		return fmt.Errorf("failed to marshal new_values: %w", err)
	}
	metadata, err := marshalJSONB(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id,
			old_values, new_values, metadata, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Querier(ctx).Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		oldValues,
		newValues,
		metadata,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}

	return nil
}

func (r *auditRepository) List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.AuditLogEntry, error) {
	where, args := pred.SQL(1)
	limit, args := pageClause(args, page)

	query := `
		SELECT a.id, a.user_id, a.action, a.resource_type, a.resource_id,
		       a.old_values, a.new_values, a.metadata, a.ip_address, a.user_agent, a.created_at,
		       u.username, u.first_name, u.last_name
		` + auditFrom + `
		WHERE ` + where + `
		ORDER BY a.created_at DESC, a.id` + limit

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		entry, err := scanAuditLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log entries: %w", err)
	}

	return entries, nil
}

func (r *auditRepository) Count(ctx context.Context, pred scope.Predicate) (int, error) {
	count, err := countWhere(ctx, r.db.Querier(ctx), auditFrom, pred)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit log entries: %w", err)
	}
	return count, nil
}

func (r *auditRepository) CountByAction(ctx context.Context, pred scope.Predicate) (map[models.AuditAction]int, error) {
	where, args := pred.SQL(1)
	query := `
		SELECT a.action, COUNT(*)
		FROM audit_logs a
		WHERE ` + where + `
		GROUP BY a.action
		ORDER BY COUNT(*) DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AuditAction]int)
	for rows.Next() {
		var action models.AuditAction
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit stats: %w", err)
		}
		counts[action] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit stats: %w", err)
	}

	return counts, nil
}

func (r *auditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit log entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAuditLogEntry(row pgx.Row) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry
	var oldValues, newValues, metadata []byte

	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Action,
		&entry.ResourceType,
		&entry.ResourceID,
		&oldValues,
		&newValues,
		&metadata,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.CreatedAt,
		&entry.Username,
		&entry.FirstName,
		&entry.LastName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
	}

	if entry.OldValues, err = unmarshalJSONB(oldValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal old_values: %w", err)
	}
	if entry.NewValues, err = unmarshalJSONB(newValues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal new_values: %w", err)
	}
	if entry.Metadata, err = unmarshalJSONB(metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &entry, nil
}
