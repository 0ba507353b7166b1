package repositories

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

const userColumns = `
	u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.role,
	u.employee_id, u.department, u.plant_area, u.phone, u.is_active, u.email_verified,
	u.last_login_at, u.fcm_token, u.preferences, u.created_at, u.updated_at`

const usersFrom = `FROM users u`

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// GetByID loads a user without scope restrictions. Used by authentication.
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetByLogin finds a user by username or email.
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	// Get returns the single user matching pred.
	Get(ctx context.Context, pred scope.Predicate) (*models.User, error)
	List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.User, error)
	Count(ctx context.Context, pred scope.Predicate) (int, error)
	// ListActiveWorkers returns active workers matching pred, ordered by first name.
	ListActiveWorkers(ctx context.Context, pred scope.Predicate) ([]*models.User, error)

	RecordLogin(ctx context.Context, id uuid.UUID, fcmToken *string) error
	ClearFCMToken(ctx context.Context, id uuid.UUID) error
	// UpdateProfile applies the non-nil fields of update and returns the columns written.
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (map[string]any, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	Stats(ctx context.Context, id uuid.UUID) (*models.UserStats, error)
	DailyPhotoCounts(ctx context.Context, id uuid.UUID, since time.Time) ([]models.DailyCount, error)
	DailyTaskCounts(ctx context.Context, id uuid.UUID, since time.Time) ([]models.DailyCount, error)
	Overview(ctx context.Context, pred scope.Predicate, loginsSince time.Time) (*models.UserOverview, error)

	// Upsert inserts or updates a user keyed by username.
	Upsert(ctx context.Context, user *models.User) error
}

// userRepository implements UserRepository using PostgreSQL.
type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

var _ UserRepository = (*userRepository)(nil)

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` ` + usersFrom + ` WHERE u.id = $1`

	user, err := scanUser(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "User")
	}
	return user, nil
}

func (r *userRepository) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` ` + usersFrom + `
		WHERE u.username = $1 OR LOWER(u.email) = LOWER($1)
		LIMIT 1`

	user, err := scanUser(r.db.Querier(ctx).QueryRow(ctx, query, login))
	if err != nil {
		return nil, notFound(err, "User")
	}
	return user, nil
}

func (r *userRepository) Get(ctx context.Context, pred scope.Predicate) (*models.User, error) {
	where, args := pred.SQL(1)
	query := `SELECT ` + userColumns + ` ` + usersFrom + ` WHERE ` + where + ` LIMIT 1`

	user, err := scanUser(r.db.Querier(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "User")
	}
	return user, nil
}

func (r *userRepository) List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.User, error) {
	where, args := pred.SQL(1)
	limit, args := pageClause(args, page)
	query := `SELECT ` + userColumns + ` ` + usersFrom + `
		WHERE ` + where + `
		ORDER BY u.created_at DESC, u.id` + limit

	return r.queryUsers(ctx, query, args...)
}

func (r *userRepository) Count(ctx context.Context, pred scope.Predicate) (int, error) {
	count, err := countWhere(ctx, r.db.Querier(ctx), usersFrom, pred)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *userRepository) ListActiveWorkers(ctx context.Context, pred scope.Predicate) ([]*models.User, error) {
	pred = pred.
		Where(scope.ColUserRole, scope.OpEq, string(models.RoleWorker)).
		Where(scope.ColUserActive, scope.OpEq, true)
	where, args := pred.SQL(1)
	query := `SELECT ` + userColumns + ` ` + usersFrom + `
		WHERE ` + where + `
		ORDER BY u.first_name, u.last_name`

	return r.queryUsers(ctx, query, args...)
}

func (r *userRepository) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func (r *userRepository) RecordLogin(ctx context.Context, id uuid.UUID, fcmToken *string) error {
	query := `
		UPDATE users
		SET last_login_at = NOW(), fcm_token = COALESCE($2, fcm_token)
		WHERE id = $1`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, id, fcmToken); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

func (r *userRepository) ClearFCMToken(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Querier(ctx).Exec(ctx, `UPDATE users SET fcm_token = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear fcm token: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (map[string]any, error) {
	changed := make(map[string]any)
	sets := []string{}
	args := []any{id}

	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
		changed[column] = value
	}

	if update.FirstName != nil {
		set("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		set("last_name", *update.LastName)
	}
	if update.Phone != nil {
		set("phone", *update.Phone)
	}
	if len(update.Preferences) > 0 {
		set("preferences", update.Preferences)
	}
	if len(sets) == 0 {
		return changed, nil
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + `, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperrors.NotFound("User not found")
	}
	return changed, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("User not found")
	}
	return nil
}

func (r *userRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("User not found")
	}
	return nil
}

func (r *userRepository) Stats(ctx context.Context, id uuid.UUID) (*models.UserStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM photos WHERE user_id = $1 AND status <> 'deleted'),
			(SELECT COUNT(*) FROM tasks WHERE assigned_to = $1),
			(SELECT COUNT(*) FROM tasks WHERE assigned_to = $1 AND status = 'completed')`

	var stats models.UserStats
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&stats.PhotoCount,
		&stats.TaskCount,
		&stats.CompletedTaskCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user stats: %w", err)
	}

	stats.CompletionRate = percentage(stats.CompletedTaskCount, stats.TaskCount)
	return &stats, nil
}

func (r *userRepository) DailyPhotoCounts(ctx context.Context, id uuid.UUID, since time.Time) ([]models.DailyCount, error) {
	query := `
		SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') AS day, '' AS status, COUNT(*)
		FROM photos
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY DATE(created_at)
		ORDER BY DATE(created_at)`

	return r.queryDailyCounts(ctx, query, id, since)
}

func (r *userRepository) DailyTaskCounts(ctx context.Context, id uuid.UUID, since time.Time) ([]models.DailyCount, error) {
	query := `
		SELECT TO_CHAR(DATE(updated_at), 'YYYY-MM-DD') AS day, status, COUNT(*)
		FROM tasks
		WHERE assigned_to = $1 AND updated_at >= $2
		GROUP BY DATE(updated_at), status
		ORDER BY DATE(updated_at), status`

	return r.queryDailyCounts(ctx, query, id, since)
}

func (r *userRepository) queryDailyCounts(ctx context.Context, query string, args ...any) ([]models.DailyCount, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer rows.Close()

	counts := []models.DailyCount{}
	for rows.Next() {
		var c models.DailyCount
		if err := rows.Scan(&c.Date, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily activity: %w", err)
	}

	return counts, nil
}

func (r *userRepository) Overview(ctx context.Context, pred scope.Predicate, loginsSince time.Time) (*models.UserOverview, error) {
	where, args := pred.SQL(1)
	args = append(args, loginsSince)
	query := fmt.Sprintf(`
		SELECT u.role, u.is_active, COUNT(*),
		       COUNT(*) FILTER (WHERE u.last_login_at >= $%d)
		FROM users u
		WHERE %s
		GROUP BY u.role, u.is_active`, len(args), where)

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user overview: %w", err)
	}
	defer rows.Close()

	overview := &models.UserOverview{RoleCounts: make(map[models.Role]int)}
	for rows.Next() {
		var role models.Role
		var active bool
		var count, recent int
		if err := rows.Scan(&role, &active, &count, &recent); err != nil {
			return nil, fmt.Errorf("failed to scan user overview: %w", err)
		}
		overview.TotalUsers += count
		overview.RoleCounts[role] += count
		overview.RecentLoginCount += recent
		if active {
			overview.ActiveCount += count
		} else {
			overview.InactiveCount += count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user overview: %w", err)
	}

	overview.LoginRate = percentage(overview.RecentLoginCount, overview.TotalUsers)
	return overview, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (
			id, username, email, password_hash, first_name, last_name, role,
			employee_id, department, plant_area, phone, is_active, email_verified, preferences
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (username) DO UPDATE
		SET email = EXCLUDED.email,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    role = EXCLUDED.role,
		    employee_id = EXCLUDED.employee_id,
		    department = EXCLUDED.department,
		    plant_area = EXCLUDED.plant_area,
		    phone = EXCLUDED.phone,
		    is_active = EXCLUDED.is_active,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.EmployeeID,
		user.Department,
		user.PlantArea,
		user.Phone,
		user.IsActive,
		user.EmailVerified,
		rawJSON(user.Preferences),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("user %s conflicts with an existing email or employee id", user.Username)
		}
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.EmployeeID,
		&u.Department,
		&u.PlantArea,
		&u.Phone,
		&u.IsActive,
		&u.EmailVerified,
		&u.LastLoginAt,
		&u.FCMToken,
		&u.Preferences,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// percentage returns part/total*100 rounded to one decimal, or 0 when total is 0.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
