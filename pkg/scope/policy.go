package scope

import (
	"github.com/google/uuid"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

// Column names used by the predicates. Repositories alias their tables as
// e (equipment), p (photos), t (tasks) and u (users).
const (
	ColEquipmentID    = "e.id"
	ColEquipmentArea  = "e.location_area"
	ColEquipmentPlant = "e.plant_id"
	ColEquipmentType  = "e.equipment_type"
	ColEquipmentState = "e.status"
	ColEquipmentQR    = "e.qr_code"

	ColPhotoID         = "p.id"
	ColPhotoOwner      = "p.user_id"
	ColPhotoEquipment  = "p.equipment_id"
	ColPhotoStatus     = "p.status"
	ColPhotoCapturedAt = "p.captured_at"

	ColTaskID        = "t.id"
	ColTaskAssignee  = "t.assigned_to"
	ColTaskEquipment = "t.equipment_id"
	ColTaskStatus    = "t.status"
	ColTaskPriority  = "t.priority"
	ColTaskDueDate   = "t.due_date"

	ColUserID     = "u.id"
	ColUserArea   = "u.plant_area"
	ColUserRole   = "u.role"
	ColUserActive = "u.is_active"

	ColAuditUser         = "a.user_id"
	ColAuditAction       = "a.action"
	ColAuditResourceType = "a.resource_type"
	ColAuditResourceID   = "a.resource_id"
	ColAuditCreatedAt    = "a.created_at"
)

var (
	equipmentSearchColumns = []string{"e.equipment_code", "e.equipment_name", "e.description"}
	userSearchColumns      = []string{"u.username", "u.email", "u.first_name", "u.last_name", "u.employee_id"}
	openTaskStatuses       = []string{string(models.TaskStatusPending), string(models.TaskStatusInProgress)}
)

// areaRestriction returns the plant area the caller is confined to, if any.
// Admins are never confined.
func areaRestriction(caller models.Caller) (string, bool) {
	if caller.Role == models.RoleAdmin {
		return "", false
	}
	return caller.Area()
}

// equipmentArea applies the caller's area confinement, or the requested plantArea
// filter for callers that are not confined.
func equipmentArea(p Predicate, caller models.Caller, requested *string) Predicate {
	if area, ok := areaRestriction(caller); ok {
		return p.Where(ColEquipmentArea, OpEq, area)
	}
	if requested != nil && *requested != "" {
		return p.Where(ColEquipmentArea, OpEq, *requested)
	}
	return p
}

// Equipment returns the visibility predicate for equipment listings and lookups.
func Equipment(caller models.Caller, f models.EquipmentFilter) Predicate {
	p := equipmentArea(Predicate{}, caller, f.PlantArea)

	if f.PlantID != nil {
		p = p.Where(ColEquipmentPlant, OpEq, *f.PlantID)
	}
	if f.EquipmentID != nil {
		p = p.Where(ColEquipmentID, OpEq, *f.EquipmentID)
	}
	if f.EquipmentType != nil && *f.EquipmentType != "" {
		p = p.Where(ColEquipmentType, OpEq, *f.EquipmentType)
	}
	if f.Status != nil {
		p = p.Where(ColEquipmentState, OpEq, string(*f.Status))
	}
	if f.Search != "" {
		p = p.WhereAny(equipmentSearchColumns, OpILike, ContainsPattern(f.Search))
	}
	return p
}

// EquipmentByQRCode returns the predicate for a lookup by scanned QR code.
func EquipmentByQRCode(caller models.Caller, code string) Predicate {
	return Equipment(caller, models.EquipmentFilter{}).Where(ColEquipmentQR, OpEq, code)
}

// EquipmentByID returns the predicate for a single equipment lookup.
func EquipmentByID(caller models.Caller, id uuid.UUID) Predicate {
	return Equipment(caller, models.EquipmentFilter{EquipmentID: &id})
}

// Photos returns the visibility predicate for photo listings. Deleted photos are
// never visible. Workers only see their own photos and the userId filter is
// ignored for them.
func Photos(caller models.Caller, f models.PhotoFilter) Predicate {
	p := Predicate{}.Where(ColPhotoStatus, OpNotEq, string(models.PhotoStatusDeleted))

	if caller.Role == models.RoleWorker {
		p = p.Where(ColPhotoOwner, OpEq, caller.ID)
	} else if f.UserID != nil {
		p = p.Where(ColPhotoOwner, OpEq, *f.UserID)
	}
	p = equipmentArea(p, caller, f.PlantArea)

	if f.PlantID != nil {
		p = p.Where(ColEquipmentPlant, OpEq, *f.PlantID)
	}
	if f.EquipmentID != nil {
		p = p.Where(ColPhotoEquipment, OpEq, *f.EquipmentID)
	}
	if f.Status != nil {
		p = p.Where(ColPhotoStatus, OpEq, string(*f.Status))
	}
	if f.StartDate != nil {
		p = p.Where(ColPhotoCapturedAt, OpGTE, *f.StartDate)
	}
	if f.EndDate != nil {
		p = p.Where(ColPhotoCapturedAt, OpLTE, *f.EndDate)
	}
	return p
}

// PhotoByID returns the predicate for a single photo lookup.
func PhotoByID(caller models.Caller, id uuid.UUID) Predicate {
	return Photos(caller, models.PhotoFilter{}).Where(ColPhotoID, OpEq, id)
}

// Tasks returns the visibility predicate for task listings. Workers only see tasks
// assigned to them and the assignedTo filter is ignored for them.
func Tasks(caller models.Caller, f models.TaskFilter) Predicate {
	p := Predicate{}

	if caller.Role == models.RoleWorker {
		p = p.Where(ColTaskAssignee, OpEq, caller.ID)
	} else if f.AssignedTo != nil {
		p = p.Where(ColTaskAssignee, OpEq, *f.AssignedTo)
	}
	p = equipmentArea(p, caller, f.PlantArea)

	if f.PlantID != nil {
		p = p.Where(ColEquipmentPlant, OpEq, *f.PlantID)
	}
	if f.EquipmentID != nil {
		p = p.Where(ColTaskEquipment, OpEq, *f.EquipmentID)
	}
	if f.Status != nil {
		p = p.Where(ColTaskStatus, OpEq, string(*f.Status))
	}
	if f.Priority != nil {
		p = p.Where(ColTaskPriority, OpEq, string(*f.Priority))
	}
	if f.Overdue {
		p = p.Where(ColTaskDueDate, OpBeforeNow, nil).Where(ColTaskStatus, OpAny, openTaskStatuses)
	}
	return p
}

// TaskByID returns the predicate for a single task lookup.
func TaskByID(caller models.Caller, id uuid.UUID) Predicate {
	return Tasks(caller, models.TaskFilter{}).Where(ColTaskID, OpEq, id)
}

// Users returns the visibility predicate for user listings. Workers may not list
// users at all. Scoped managers only see users in their own area, and only admins
// may filter by plant area.
func Users(caller models.Caller, f models.UserFilter) (Predicate, error) {
	if caller.Role == models.RoleWorker {
		return Predicate{}, apperrors.Forbidden("workers cannot list users")
	}

	p := Predicate{}
	if area, ok := areaRestriction(caller); ok {
		p = p.Where(ColUserArea, OpEq, area)
	} else if caller.Role == models.RoleAdmin && f.PlantArea != nil && *f.PlantArea != "" {
		p = p.Where(ColUserArea, OpEq, *f.PlantArea)
	}

	if f.Role != nil {
		p = p.Where(ColUserRole, OpEq, string(*f.Role))
	}
	if f.IsActive != nil {
		p = p.Where(ColUserActive, OpEq, *f.IsActive)
	}
	if f.Search != "" {
		p = p.WhereAny(userSearchColumns, OpILike, ContainsPattern(f.Search))
	}
	return p, nil
}

// UserByID returns the predicate for a single user lookup.
func UserByID(caller models.Caller, id uuid.UUID) (Predicate, error) {
	p, err := Users(caller, models.UserFilter{})
	if err != nil {
		return Predicate{}, err
	}
	return p.Where(ColUserID, OpEq, id), nil
}

// AuditEntries returns the predicate for audit listings and stats. Audit access is
// gated by role at the boundary, so there is no caller confinement here.
func AuditEntries(f models.AuditFilter) Predicate {
	p := Predicate{}
	if f.UserID != nil {
		p = p.Where(ColAuditUser, OpEq, *f.UserID)
	}
	if f.Action != nil {
		p = p.Where(ColAuditAction, OpEq, string(*f.Action))
	}
	if f.ResourceType != nil {
		p = p.Where(ColAuditResourceType, OpEq, string(*f.ResourceType))
	}
	if f.ResourceID != nil {
		p = p.Where(ColAuditResourceID, OpEq, *f.ResourceID)
	}
	if f.StartDate != nil {
		p = p.Where(ColAuditCreatedAt, OpGTE, *f.StartDate)
	}
	if f.EndDate != nil {
		p = p.Where(ColAuditCreatedAt, OpLTE, *f.EndDate)
	}
	return p
}

// CanWriteArea reports whether the caller may act on a resource located in area.
// Unconfined callers may act anywhere.
func CanWriteArea(caller models.Caller, area string) bool {
	restricted, ok := areaRestriction(caller)
	if !ok {
		return true
	}
	return restricted == area
}
