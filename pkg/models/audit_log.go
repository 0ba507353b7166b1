package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of operation an audit entry records.
type AuditAction string

const (
	AuditActionCreate             AuditAction = "CREATE"
	AuditActionUpdate             AuditAction = "UPDATE"
	AuditActionDelete             AuditAction = "DELETE"
	AuditActionView               AuditAction = "VIEW"
	AuditActionLoginSuccess       AuditAction = "LOGIN_SUCCESS"
	AuditActionLoginFailed        AuditAction = "LOGIN_FAILED"
	AuditActionLogout             AuditAction = "LOGOUT"
	AuditActionPasswordChange     AuditAction = "PASSWORD_CHANGE"
	AuditActionApprove            AuditAction = "APPROVE"
	AuditActionReject             AuditAction = "REJECT"
	AuditActionActivate           AuditAction = "ACTIVATE"
	AuditActionDeactivate         AuditAction = "DEACTIVATE"
	AuditActionQRScan             AuditAction = "QR_SCAN"
	AuditActionUnauthorizedAccess AuditAction = "UNAUTHORIZED_ACCESS"
	AuditActionCleanup            AuditAction = "CLEANUP"
)

// AuditActions lists every action in display order.
var AuditActions = []AuditAction{
	AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionView,
	AuditActionLoginSuccess, AuditActionLoginFailed, AuditActionLogout,
	AuditActionPasswordChange, AuditActionApprove, AuditActionReject,
	AuditActionActivate, AuditActionDeactivate, AuditActionQRScan,
	AuditActionUnauthorizedAccess, AuditActionCleanup,
}

// AuditResourceType is the kind of resource an audit entry refers to.
type AuditResourceType string

const (
	AuditResourceUser      AuditResourceType = "user"
	AuditResourcePhoto     AuditResourceType = "photo"
	AuditResourceTask      AuditResourceType = "task"
	AuditResourceEquipment AuditResourceType = "equipment"
	AuditResourcePlant     AuditResourceType = "plant"
	AuditResourceAuth      AuditResourceType = "auth"
	AuditResourceAuditLogs AuditResourceType = "audit_logs"
	AuditResourceEndpoint  AuditResourceType = "endpoint"
)

// AuditResourceTypes lists every resource type in display order.
var AuditResourceTypes = []AuditResourceType{
	AuditResourceUser, AuditResourcePhoto, AuditResourceTask, AuditResourceEquipment,
	AuditResourcePlant, AuditResourceAuth, AuditResourceAuditLogs, AuditResourceEndpoint,
}

// AuditLogEntry is a single append-only entry in audit_logs.
// ResourceID is text so endpoint paths can be recorded for UNAUTHORIZED_ACCESS.
type AuditLogEntry struct {
	ID           uuid.UUID         `json:"id"`
	UserID       *uuid.UUID        `json:"userId"` // nil for pre-auth failures and system sweeps
	Action       AuditAction       `json:"action"`
	ResourceType AuditResourceType `json:"resourceType"`
	ResourceID   *string           `json:"resourceId"`
	OldValues    map[string]any    `json:"oldValues,omitempty"`
	NewValues    map[string]any    `json:"newValues,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
	IPAddress    *string           `json:"ipAddress,omitempty"`
	UserAgent    *string           `json:"userAgent,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`

	// Joined from users when listing.
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
}

// Normalize upper-cases the action and lower-cases the resource type.
func (e *AuditLogEntry) Normalize() {
	e.Action = AuditAction(strings.ToUpper(strings.TrimSpace(string(e.Action))))
	e.ResourceType = AuditResourceType(strings.ToLower(strings.TrimSpace(string(e.ResourceType))))
}

// AuditFilter holds the filters accepted by audit listings and stats.
type AuditFilter struct {
	UserID       *uuid.UUID
	Action       *AuditAction
	ResourceType *AuditResourceType
	ResourceID   *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// AuditStats summarises audit entries grouped by action.
type AuditStats struct {
	ActionCounts map[AuditAction]int `json:"actionCounts"`
	TotalActions int                 `json:"totalActions"`
	Since        *time.Time          `json:"since,omitempty"`
}

// CleanupResult reports the outcome of a retention sweep.
type CleanupResult struct {
	DeletedCount  int64     `json:"deletedCount"`
	RetentionDays int       `json:"retentionDays"`
	CutoffDate    time.Time `json:"cutoffDate"`
}

// RequestInfo is the client information attached to audit entries.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}
