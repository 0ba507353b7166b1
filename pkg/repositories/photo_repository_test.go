//go:build integration

package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

func TestPhotoRepository_ReviewOnlyFromPending(t *testing.T) {
	tc := setupRepoTest(t)
	worker := tc.createUser(models.RoleWorker, nil)
	manager := tc.createUser(models.RoleManager, nil)
	photo := tc.createPhoto(worker, tc.createEquipment(tc.createPlant(), "Boiler Area"), time.Now())

	reviewedAt, err := tc.photos.Review(tc.ctx, photo.ID, models.PhotoStatusApproved, manager.ID, nil)
	require.NoError(t, err)
	assert.False(t, reviewedAt.IsZero())

	_, err = tc.photos.Review(tc.ctx, photo.ID, models.PhotoStatusRejected, manager.ID, strPtr("blurry"))
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, "Pending photo not found", apperrors.Message(err, ""))

	got, err := tc.photos.Get(tc.ctx, scope.PhotoByID(manager.Caller(), photo.ID))
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, manager.ID, *got.ApprovedBy)
}

func TestPhotoRepository_SoftDeleteHidesFromListings(t *testing.T) {
	tc := setupRepoTest(t)
	worker := tc.createUser(models.RoleWorker, nil)
	admin := tc.createUser(models.RoleAdmin, nil)
	eq := tc.createEquipment(tc.createPlant(), "Boiler Area")
	kept := tc.createPhoto(worker, eq, time.Now())
	removed := tc.createPhoto(worker, eq, time.Now())

	require.NoError(t, tc.photos.SoftDelete(tc.ctx, removed.ID))
	assert.True(t, errors.Is(tc.photos.SoftDelete(tc.ctx, removed.ID), apperrors.ErrNotFound))

	pred := scope.Photos(admin.Caller(), models.PhotoFilter{})
	photos, err := tc.photos.List(tc.ctx, pred, models.Page{Number: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, kept.ID, photos[0].ID)

	_, err = tc.photos.Get(tc.ctx, scope.PhotoByID(admin.Caller(), removed.ID))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPhotoRepository_IsOwnedBy(t *testing.T) {
	tc := setupRepoTest(t)
	owner := tc.createUser(models.RoleWorker, nil)
	other := tc.createUser(models.RoleWorker, nil)
	photo := tc.createPhoto(owner, tc.createEquipment(tc.createPlant(), "Boiler Area"), time.Now())

	owned, err := tc.photos.IsOwnedBy(tc.ctx, photo.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = tc.photos.IsOwnedBy(tc.ctx, photo.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, owned)

	require.NoError(t, tc.photos.SoftDelete(tc.ctx, photo.ID))
	owned, err = tc.photos.IsOwnedBy(tc.ctx, photo.ID, owner.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}
