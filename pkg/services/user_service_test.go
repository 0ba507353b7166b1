package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

type userFixture struct {
	svc    *userService
	users  *fakeUserRepository
	audits *fakeAuditRepository
	audit  *recordingAuditor
	now    time.Time
}

func newUserFixture(t *testing.T, users ...*models.User) *userFixture {
	t.Helper()
	f := &userFixture{
		users:  newFakeUserRepository(users...),
		audits: &fakeAuditRepository{},
		audit:  &recordingAuditor{},
		now:    time.Date(2024, 4, 10, 15, 0, 0, 0, time.UTC),
	}
	svc := NewUserService(f.users, f.audits, &fakeTx{}, f.audit, zap.NewNop()).(*userService)
	svc.now = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func TestUserService_ListIsScoped(t *testing.T) {
	ctx := context.Background()
	boilerWorker := workerIn("boiler")
	turbineWorker := workerIn("turbine")
	f := newUserFixture(t, workerUser(boilerWorker), workerUser(turbineWorker))

	_, err := f.svc.List(ctx, boilerWorker, models.UserFilter{}, models.Page{Number: 1, Limit: 20})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	result, err := f.svc.List(ctx, managerIn("boiler"), models.UserFilter{}, models.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, boilerWorker.ID, result.Items[0].ID)

	// A scoped manager's plantArea filter is ignored.
	result, err = f.svc.List(ctx, managerIn("boiler"), models.UserFilter{PlantArea: area("turbine")}, models.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, boilerWorker.ID, result.Items[0].ID)

	result, err = f.svc.List(ctx, adminCaller(), models.UserFilter{PlantArea: area("turbine")}, models.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, turbineWorker.ID, result.Items[0].ID)

	bad := models.Role("operator")
	_, err = f.svc.List(ctx, adminCaller(), models.UserFilter{Role: &bad}, models.Page{Number: 1, Limit: 20})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUserService_Get(t *testing.T) {
	ctx := context.Background()
	worker := workerIn("boiler")
	f := newUserFixture(t, workerUser(worker))
	f.users.stats = models.UserStats{PhotoCount: 4, TaskCount: 2, CompletedTaskCount: 1, CompletionRate: 50}

	got, err := f.svc.Get(ctx, managerIn("boiler"), worker.ID)
	require.NoError(t, err)
	assert.Equal(t, worker.ID, got.ID)
	assert.Equal(t, 50.0, got.Stats.CompletionRate)
	assert.Equal(t, models.AuditActionView, f.audit.last().Action)

	_, err = f.svc.Get(ctx, managerIn("turbine"), worker.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "User not found", err.Error())
}

func TestUserService_Activity(t *testing.T) {
	ctx := context.Background()
	worker := workerIn("boiler")
	f := newUserFixture(t, workerUser(worker))
	f.users.photoActivity = []models.DailyCount{{Date: "2024-04-09", Count: 3}}

	for _, days := range []int{-1, 366} {
		_, err := f.svc.Activity(ctx, adminCaller(), worker.ID, days)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "days=%d", days)
	}

	activity, err := f.svc.Activity(ctx, adminCaller(), worker.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultActivityDays, activity.Days)
	assert.Equal(t, f.now.AddDate(0, 0, -30), activity.StartDate)
	assert.Len(t, activity.PhotoActivity, 1)
	assert.NotNil(t, activity.TaskActivity)
	assert.NotNil(t, activity.RecentActivity)
}

func TestUserService_SetActive(t *testing.T) {
	ctx := context.Background()
	worker := workerIn("boiler")
	f := newUserFixture(t, workerUser(worker))
	manager := managerIn("boiler")

	_, err := f.svc.SetActive(ctx, manager, manager.ID, false)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, "Cannot deactivate your own account", err.Error())

	user, err := f.svc.SetActive(ctx, manager, worker.ID, false)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.False(t, f.users.items[worker.ID].IsActive)

	entry := f.audit.last()
	assert.Equal(t, models.AuditActionDeactivate, entry.Action)
	assert.Equal(t, true, entry.OldValues["is_active"])
	assert.Equal(t, false, entry.NewValues["is_active"])

	_, err = f.svc.SetActive(ctx, manager, worker.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.AuditActionActivate, f.audit.last().Action)

	_, err = f.svc.SetActive(ctx, managerIn("turbine"), worker.ID, false)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserService_WorkersAndOverview(t *testing.T) {
	ctx := context.Background()
	active := workerIn("boiler")
	inactive := workerIn("boiler")
	inactiveUser := workerUser(inactive)
	inactiveUser.IsActive = false
	f := newUserFixture(t, workerUser(active), inactiveUser)

	workers, err := f.svc.Workers(ctx, managerIn("boiler"))
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, active.ID, workers[0].ID)

	f.users.overview = models.UserOverview{TotalUsers: 2}
	overview, err := f.svc.Overview(ctx, managerIn("boiler"))
	require.NoError(t, err)
	assert.Equal(t, 2, overview.TotalUsers)
	assert.Equal(t, f.now.AddDate(0, 0, -RecentLoginDays), f.users.loginsSince)
	assert.Equal(t, "boiler", f.users.lastPred.Value(scope.ColUserArea, scope.OpEq))
}
