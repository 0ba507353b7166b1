package services

import (
	"context"
	"errors"
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

// Activity window bounds, in days.
const (
	DefaultActivityDays = 30
	MaxActivityDays     = 365

	// RecentActivityLimit caps the audit entries returned with user activity.
	RecentActivityLimit = 20

	// RecentLoginDays is the window counted as a recent login in the overview.
	RecentLoginDays = 7
)

// UserService is the manager-facing view of user accounts.
type UserService interface {
	List(ctx context.Context, caller models.Caller, filter models.UserFilter, page models.Page) (*models.ListResult[*models.User], error)
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.UserWithStats, error)
	// Workers returns the active workers a task may be assigned to.
	Workers(ctx context.Context, caller models.Caller) ([]*models.User, error)
	// Activity returns daily photo and task counts over days, plus recent audit entries.
	// A zero days selects the default window.
	Activity(ctx context.Context, caller models.Caller, id uuid.UUID, days int) (*models.UserActivity, error)
	SetActive(ctx context.Context, caller models.Caller, id uuid.UUID, active bool) (*models.User, error)
	Overview(ctx context.Context, caller models.Caller) (*models.UserOverview, error)
}

type userService struct {
	users  repositories.UserRepository
	audits repositories.AuditRepository
	tx     database.Transactor
	audit  audit.Recorder
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(
	users repositories.UserRepository,
	audits repositories.AuditRepository,
	tx database.Transactor,
	recorder audit.Recorder,
	logger *zap.Logger,
) UserService {
	return &userService{
		users:  users,
		audits: audits,
		tx:     tx,
		audit:  recorder,
		logger: logger.Named("user-service"),
		now:    time.Now,
	}
}

var _ UserService = (*userService)(nil)

func (s *userService) List(ctx context.Context, caller models.Caller, filter models.UserFilter, page models.Page) (*models.ListResult[*models.User], error) {
	if filter.Role != nil && !models.IsValidRole(string(*filter.Role)) {
		return nil, apperrors.Validation("Invalid role")
	}
	pred, err := scope.Users(caller, filter)
	if err != nil {
		return nil, err
	}
	return listPage(ctx, s.tx, page,
		func(ctx context.Context) ([]*models.User, error) { return s.users.List(ctx, pred, page) },
		func(ctx context.Context) (int, error) { return s.users.Count(ctx, pred) },
	)
}

func (s *userService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.UserWithStats, error) {
	pred, err := scope.UserByID(caller, id)
	if err != nil {
		return nil, err
	}

	var result *models.UserWithStats
	err = s.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		user, err := s.users.Get(ctx, pred)
		if err != nil {
			return err
		}
		stats, err := s.users.Stats(ctx, id)
		if err != nil {
			return err
		}
		result = &models.UserWithStats{User: user, Stats: *stats}
		return nil
	})
	if err != nil {
		return nil, userNotFound(err)
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionView,
		ResourceType: models.AuditResourceUser,
		ResourceID:   resourceID(id),
	})
	return result, nil
}

func (s *userService) Workers(ctx context.Context, caller models.Caller) ([]*models.User, error) {
	pred, err := scope.Users(caller, models.UserFilter{})
	if err != nil {
		return nil, err
	}
	workers, err := s.users.ListActiveWorkers(ctx, pred)
	if err != nil {
		return nil, err
	}
	if workers == nil {
		workers = []*models.User{}
	}
	return workers, nil
}

func (s *userService) Activity(ctx context.Context, caller models.Caller, id uuid.UUID, days int) (*models.UserActivity, error) {
	if days == 0 {
		days = DefaultActivityDays
	}
	if days < 1 || days > MaxActivityDays {
		return nil, apperrors.Validation("Days must be between 1 and %d", MaxActivityDays)
	}

	pred, err := scope.UserByID(caller, id)
	if err != nil {
		return nil, err
	}

	end := s.now()
	start := end.AddDate(0, 0, -days)
	activity := &models.UserActivity{Days: days, StartDate: start, EndDate: end}

	err = s.tx.WithSnapshot(ctx, func(ctx context.Context) error {
		user, err := s.users.Get(ctx, pred)
		if err != nil {
			return err
		}
		activity.User = user

		if activity.PhotoActivity, err = s.users.DailyPhotoCounts(ctx, id, start); err != nil {
			return err
		}
		if activity.TaskActivity, err = s.users.DailyTaskCounts(ctx, id, start); err != nil {
			return err
		}

		auditPred := scope.AuditEntries(models.AuditFilter{UserID: &id, StartDate: &start})
		activity.RecentActivity, err = s.audits.List(ctx, auditPred, models.Page{Number: 1, Limit: RecentActivityLimit})
		return err
	})
	if err != nil {
		return nil, userNotFound(err)
	}

	if activity.PhotoActivity == nil {
		activity.PhotoActivity = []models.DailyCount{}
	}
	if activity.TaskActivity == nil {
		activity.TaskActivity = []models.DailyCount{}
	}
	if activity.RecentActivity == nil {
		activity.RecentActivity = []*models.AuditLogEntry{}
	}
	return activity, nil
}

func (s *userService) SetActive(ctx context.Context, caller models.Caller, id uuid.UUID, active bool) (*models.User, error) {
	if id == caller.ID && !active {
		return nil, apperrors.Validation("Cannot deactivate your own account")
	}
	pred, err := scope.UserByID(caller, id)
	if err != nil {
		return nil, err
	}

	var (
		user     *models.User
		previous bool
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.Get(ctx, pred)
		if err != nil {
			return err
		}
		previous = user.IsActive
		if err := s.users.SetActive(ctx, id, active); err != nil {
			return err
		}
		user.IsActive = active
		return nil
	})
	if err != nil {
		return nil, userNotFound(err)
	}

	action := models.AuditActionDeactivate
	if active {
		action = models.AuditActionActivate
	}
	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       action,
		ResourceType: models.AuditResourceUser,
		ResourceID:   resourceID(id),
		OldValues:    map[string]any{"is_active": previous},
		NewValues:    map[string]any{"is_active": active},
	})

	s.logger.Info("User status changed",
		zap.String("user_id", id.String()),
		zap.Bool("is_active", active),
		zap.String("changed_by", caller.ID.String()))
	return user, nil
}

func (s *userService) Overview(ctx context.Context, caller models.Caller) (*models.UserOverview, error) {
	pred, err := scope.Users(caller, models.UserFilter{})
	if err != nil {
		return nil, err
	}
	return s.users.Overview(ctx, pred, s.now().AddDate(0, 0, -RecentLoginDays))
}

func userNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound("User not found")
	}
	return err
}
