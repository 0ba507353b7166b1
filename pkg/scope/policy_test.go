package scope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

func strPtr(s string) *string { return &s }

func caller(role models.Role, area *string) models.Caller {
	return models.Caller{ID: uuid.New(), Role: role, PlantArea: area, Active: true}
}

func TestEquipment_Roles(t *testing.T) {
	boiler := strPtr("Boiler Area")

	tests := []struct {
		name     string
		caller   models.Caller
		filter   models.EquipmentFilter
		wantArea any
	}{
		{"admin unrestricted", caller(models.RoleAdmin, nil), models.EquipmentFilter{}, nil},
		{"admin with own area is still unrestricted", caller(models.RoleAdmin, boiler), models.EquipmentFilter{}, nil},
		{"admin narrows by explicit area", caller(models.RoleAdmin, nil), models.EquipmentFilter{PlantArea: strPtr("Turbine Hall")}, "Turbine Hall"},
		{"scoped manager", caller(models.RoleManager, boiler), models.EquipmentFilter{}, "Boiler Area"},
		{"scoped manager cannot widen", caller(models.RoleManager, boiler), models.EquipmentFilter{PlantArea: strPtr("Turbine Hall")}, "Boiler Area"},
		{"global manager", caller(models.RoleManager, nil), models.EquipmentFilter{}, nil},
		{"scoped worker", caller(models.RoleWorker, boiler), models.EquipmentFilter{}, "Boiler Area"},
		{"unscoped worker", caller(models.RoleWorker, nil), models.EquipmentFilter{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Equipment(tt.caller, tt.filter)
			assert.Equal(t, tt.wantArea, p.Value(ColEquipmentArea, OpEq))
		})
	}
}

func TestEquipment_Filters(t *testing.T) {
	plantID := uuid.New()
	status := models.EquipmentStatusMaintenance

	p := Equipment(caller(models.RoleAdmin, nil), models.EquipmentFilter{
		PlantID:       &plantID,
		EquipmentType: strPtr("Boiler"),
		Status:        &status,
		Search:        "50%",
	})

	sql, args := p.SQL(1)
	assert.Equal(t, "e.plant_id = $1 AND e.equipment_type = $2 AND e.status = $3 AND "+
		"(e.equipment_code ILIKE $4 OR e.equipment_name ILIKE $4 OR e.description ILIKE $4)", sql)
	assert.Equal(t, []any{plantID, "Boiler", "maintenance", `%50\%%`}, args)
}

func TestPhotos_WorkerOwnershipAndArea(t *testing.T) {
	boiler := strPtr("Boiler Area")
	w := caller(models.RoleWorker, boiler)
	someoneElse := uuid.New()

	p := Photos(w, models.PhotoFilter{UserID: &someoneElse})

	assert.Equal(t, w.ID, p.Value(ColPhotoOwner, OpEq), "userId filter must be ignored for workers")
	assert.Equal(t, "Boiler Area", p.Value(ColEquipmentArea, OpEq))
	assert.Equal(t, "deleted", p.Value(ColPhotoStatus, OpNotEq))
}

func TestPhotos_ManagerAndAdmin(t *testing.T) {
	boiler := strPtr("Boiler Area")
	uploader := uuid.New()

	m := Photos(caller(models.RoleManager, boiler), models.PhotoFilter{UserID: &uploader})
	assert.Equal(t, uploader, m.Value(ColPhotoOwner, OpEq))
	assert.Equal(t, "Boiler Area", m.Value(ColEquipmentArea, OpEq))

	a := Photos(caller(models.RoleAdmin, nil), models.PhotoFilter{})
	assert.False(t, a.Has(ColPhotoOwner, OpEq))
	assert.False(t, a.Has(ColEquipmentArea, OpEq))
	assert.True(t, a.Has(ColPhotoStatus, OpNotEq), "deleted photos are hidden from everyone")
}

func TestPhotoByID_SameRulesAsListing(t *testing.T) {
	w := caller(models.RoleWorker, nil)
	id := uuid.New()

	p := PhotoByID(w, id)
	assert.Equal(t, w.ID, p.Value(ColPhotoOwner, OpEq))
	assert.Equal(t, id, p.Value(ColPhotoID, OpEq))
}

func TestTasks_Roles(t *testing.T) {
	boiler := strPtr("Boiler Area")
	assignee := uuid.New()

	w := caller(models.RoleWorker, boiler)
	wp := Tasks(w, models.TaskFilter{AssignedTo: &assignee})
	assert.Equal(t, w.ID, wp.Value(ColTaskAssignee, OpEq))
	assert.Equal(t, "Boiler Area", wp.Value(ColEquipmentArea, OpEq))

	mp := Tasks(caller(models.RoleManager, boiler), models.TaskFilter{AssignedTo: &assignee})
	assert.Equal(t, assignee, mp.Value(ColTaskAssignee, OpEq))
	assert.Equal(t, "Boiler Area", mp.Value(ColEquipmentArea, OpEq))

	gp := Tasks(caller(models.RoleManager, nil), models.TaskFilter{})
	assert.Empty(t, gp.Conditions())
}

func TestTasks_Overdue(t *testing.T) {
	p := Tasks(caller(models.RoleAdmin, nil), models.TaskFilter{Overdue: true})

	sql, args := p.SQL(3)
	assert.Equal(t, "t.due_date < NOW() AND t.status = ANY($3)", sql)
	assert.Equal(t, []any{[]string{"pending", "in_progress"}}, args)
}

func TestUsers(t *testing.T) {
	boiler := strPtr("Boiler Area")

	_, err := Users(caller(models.RoleWorker, boiler), models.UserFilter{})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	p, err := Users(caller(models.RoleManager, boiler), models.UserFilter{PlantArea: strPtr("Turbine Hall")})
	require.NoError(t, err)
	assert.Equal(t, "Boiler Area", p.Value(ColUserArea, OpEq))

	p, err = Users(caller(models.RoleManager, nil), models.UserFilter{PlantArea: strPtr("Turbine Hall")})
	require.NoError(t, err)
	assert.False(t, p.Has(ColUserArea, OpEq), "only admins may filter users by area")

	active := true
	role := models.RoleWorker
	p, err = Users(caller(models.RoleAdmin, nil), models.UserFilter{PlantArea: strPtr("Turbine Hall"), Role: &role, IsActive: &active, Search: "sin"})
	require.NoError(t, err)
	sql, args := p.SQL(1)
	assert.Equal(t, "u.plant_area = $1 AND u.role = $2 AND u.is_active = $3 AND "+
		"(u.username ILIKE $4 OR u.email ILIKE $4 OR u.first_name ILIKE $4 OR u.last_name ILIKE $4 OR u.employee_id ILIKE $4)", sql)
	assert.Equal(t, []any{"Turbine Hall", "worker", true, "%sin%"}, args)
}

func TestCanWriteArea(t *testing.T) {
	boiler := strPtr("Boiler Area")

	assert.True(t, CanWriteArea(caller(models.RoleAdmin, boiler), "Turbine Hall"))
	assert.True(t, CanWriteArea(caller(models.RoleManager, nil), "Turbine Hall"))
	assert.True(t, CanWriteArea(caller(models.RoleManager, boiler), "Boiler Area"))
	assert.False(t, CanWriteArea(caller(models.RoleManager, boiler), "Turbine Hall"))
	assert.False(t, CanWriteArea(caller(models.RoleWorker, boiler), ""))
}

func TestPredicate_EmptyAndImmutable(t *testing.T) {
	sql, args := Predicate{}.SQL(1)
	assert.Equal(t, "TRUE", sql)
	assert.Nil(t, args)

	base := Predicate{}.Where("a", OpEq, 1)
	left := base.Where("b", OpEq, 2)
	right := base.Where("c", OpEq, 3)

	assert.Len(t, base.Conditions(), 1)
	assert.Equal(t, 2, left.Value("b", OpEq))
	assert.False(t, left.Has("c", OpEq))
	assert.Equal(t, 3, right.Value("c", OpEq))
}

func TestPredicate_RenderedTwiceIsIdentical(t *testing.T) {
	p := Tasks(caller(models.RoleWorker, strPtr("Boiler Area")), models.TaskFilter{Overdue: true})

	pageSQL, pageArgs := p.SQL(1)
	countSQL, countArgs := p.SQL(1)
	assert.Equal(t, pageSQL, countSQL)
	assert.Equal(t, pageArgs, countArgs)
}

func TestEquipmentByQRCode_KeepsAreaConfinement(t *testing.T) {
	p := EquipmentByQRCode(caller(models.RoleWorker, strPtr("Boiler Area")), "QR-PUMP-001")

	assert.Equal(t, "Boiler Area", p.Value(ColEquipmentArea, OpEq))
	assert.Equal(t, "QR-PUMP-001", p.Value(ColEquipmentQR, OpEq))
}

func TestAuditEntries(t *testing.T) {
	userID := uuid.New()
	action := models.AuditActionLoginFailed
	resourceType := models.AuditResourceAuth

	p := AuditEntries(models.AuditFilter{UserID: &userID, Action: &action, ResourceType: &resourceType})
	sql, args := p.SQL(1)

	assert.Equal(t, "a.user_id = $1 AND a.action = $2 AND a.resource_type = $3", sql)
	assert.Equal(t, []any{userID, "LOGIN_FAILED", "auth"}, args)

	sql, args = AuditEntries(models.AuditFilter{}).SQL(1)
	assert.Equal(t, "TRUE", sql)
	assert.Empty(t, args)
}
