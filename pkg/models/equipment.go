package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EquipmentStatus is the operational status of a piece of equipment.
type EquipmentStatus string

const (
	EquipmentStatusActive      EquipmentStatus = "active"
	EquipmentStatusMaintenance EquipmentStatus = "maintenance"
	EquipmentStatusInactive    EquipmentStatus = "inactive"
)

// IsValidEquipmentStatus checks if the given status is valid.
func IsValidEquipmentStatus(s string) bool {
	switch EquipmentStatus(s) {
	case EquipmentStatusActive, EquipmentStatusMaintenance, EquipmentStatusInactive:
		return true
	}
	return false
}

// Plant is a physical site that owns equipment.
type Plant struct {
	ID            uuid.UUID `json:"id"`
	PlantCode     string    `json:"plantCode"`
	PlantName     string    `json:"plantName"`
	Description   *string   `json:"description,omitempty"`
	Location      *string   `json:"location,omitempty"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	ContactPerson *string   `json:"contactPerson,omitempty"`
	ContactPhone  *string   `json:"contactPhone,omitempty"`
	ContactEmail  *string   `json:"contactEmail,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Equipment is an inspectable asset. LocationArea is the scoping dimension.
type Equipment struct {
	ID               uuid.UUID       `json:"id"`
	PlantID          uuid.UUID       `json:"plantId"`
	PlantCode        string          `json:"plantCode,omitempty"`
	PlantName        string          `json:"plantName,omitempty"`
	EquipmentCode    string          `json:"equipmentCode"`
	EquipmentName    string          `json:"equipmentName"`
	EquipmentType    *string         `json:"equipmentType,omitempty"`
	Description      *string         `json:"description,omitempty"`
	Manufacturer     *string         `json:"manufacturer,omitempty"`
	Model            *string         `json:"model,omitempty"`
	SerialNumber     *string         `json:"serialNumber,omitempty"`
	InstallationDate *time.Time      `json:"installationDate,omitempty"`
	LocationArea     *string         `json:"locationArea"`
	Latitude         *float64        `json:"latitude,omitempty"`
	Longitude        *float64        `json:"longitude,omitempty"`
	QRCode           *string         `json:"qrCode,omitempty"`
	Specifications   json.RawMessage `json:"specifications,omitempty"`
	Status           EquipmentStatus `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Area returns the equipment's location area, or "" when unset.
func (e *Equipment) Area() string {
	if e.LocationArea == nil {
		return ""
	}
	return *e.LocationArea
}

// EquipmentFilter holds the request filters accepted by equipment listings.
type EquipmentFilter struct {
	PlantID       *uuid.UUID
	PlantArea     *string
	EquipmentID   *uuid.UUID
	EquipmentType *string
	Status        *EquipmentStatus
	Search        string
}

// EquipmentWithCounts is the response for a single equipment lookup.
type EquipmentWithCounts struct {
	*Equipment
	PhotoCount int `json:"photoCount"`
	TaskCount  int `json:"taskCount"`
}
