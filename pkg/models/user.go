package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role is a user's role. The literal values are part of the wire contract.
type Role string

// Role constants.
const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []Role{RoleWorker, RoleManager, RoleAdmin}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if string(r) == role {
			return true
		}
	}
	return false
}

// IsSupervisor reports whether the role may review photos and manage tasks.
func (r Role) IsSupervisor() bool {
	return r == RoleManager || r == RoleAdmin
}

// Caller is the identity resolved for a request. It is rebuilt from the store on
// every request and never cached.
type Caller struct {
	ID        uuid.UUID
	Role      Role
	PlantArea *string // nil means unscoped
	Active    bool
}

// Area returns the caller's plant area and whether one is set.
func (c Caller) Area() (string, bool) {
	if c.PlantArea == nil || *c.PlantArea == "" {
		return "", false
	}
	return *c.PlantArea, true
}

// User is a person who can sign in. PasswordHash and FCMToken never leave the server.
type User struct {
	ID            uuid.UUID       `json:"id"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"-"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Role          Role            `json:"role"`
	EmployeeID    *string         `json:"employeeId,omitempty"`
	Department    *string         `json:"department,omitempty"`
	PlantArea     *string         `json:"plantArea"`
	Phone         *string         `json:"phone,omitempty"`
	IsActive      bool            `json:"isActive"`
	EmailVerified bool            `json:"emailVerified"`
	LastLoginAt   *time.Time      `json:"lastLoginAt,omitempty"`
	FCMToken      *string         `json:"-"`
	Preferences   json.RawMessage `json:"preferences,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Caller returns the request identity for the user.
func (u *User) Caller() Caller {
	return Caller{ID: u.ID, Role: u.Role, PlantArea: u.PlantArea, Active: u.IsActive}
}

// UserFilter holds the request filters accepted by user listings.
type UserFilter struct {
	Role      *Role
	PlantArea *string
	IsActive  *bool
	Search    string
}

// ProfileUpdate is the set of fields a user may change on their own profile.
type ProfileUpdate struct {
	FirstName   *string         `json:"firstName"`
	LastName    *string         `json:"lastName"`
	Phone       *string         `json:"phone"`
	Preferences json.RawMessage `json:"preferences"`
}

// UserStats summarises a user's work.
type UserStats struct {
	PhotoCount         int     `json:"photoCount"`
	TaskCount          int     `json:"taskCount"`
	CompletedTaskCount int     `json:"completedTaskCount"`
	CompletionRate     float64 `json:"completionRate"`
}

// UserWithStats is the response for a single user lookup.
type UserWithStats struct {
	*User
	Stats UserStats `json:"stats"`
}

// DailyCount is a count bucketed by calendar day. Status is set for task activity,
// which is bucketed by day and status.
type DailyCount struct {
	Date   string `json:"date"`
	Status string `json:"status,omitempty"`
	Count  int    `json:"count"`
}

// UserActivity is a user's recent activity over a window of days.
type UserActivity struct {
	User           *User            `json:"user"`
	Days           int              `json:"days"`
	StartDate      time.Time        `json:"startDate"`
	EndDate        time.Time        `json:"endDate"`
	PhotoActivity  []DailyCount     `json:"photoActivity"`
	TaskActivity   []DailyCount     `json:"taskActivity"`
	RecentActivity []*AuditLogEntry `json:"recentActivity"`
}

// UserOverview aggregates user counts across the caller's scope.
type UserOverview struct {
	TotalUsers       int          `json:"totalUsers"`
	RoleCounts       map[Role]int `json:"roleCounts"`
	ActiveCount      int          `json:"activeCount"`
	InactiveCount    int          `json:"inactiveCount"`
	RecentLoginCount int          `json:"recentLoginCount"`
	LoginRate        float64      `json:"loginRate"`
}
