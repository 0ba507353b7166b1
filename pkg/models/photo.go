package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PhotoStatus is the review status of a photo.
type PhotoStatus string

const (
	PhotoStatusPending  PhotoStatus = "pending"
	PhotoStatusApproved PhotoStatus = "approved"
	PhotoStatusRejected PhotoStatus = "rejected"
	PhotoStatusDeleted  PhotoStatus = "deleted"
)

// IsValidPhotoStatus checks if the given status is valid.
func IsValidPhotoStatus(s string) bool {
	switch PhotoStatus(s) {
	case PhotoStatusPending, PhotoStatusApproved, PhotoStatusRejected, PhotoStatusDeleted:
		return true
	}
	return false
}

// Photo is an inspection photograph of a piece of equipment.
type Photo struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"userId"`
	EquipmentID      uuid.UUID       `json:"equipmentId"`
	Filename         string          `json:"filename"`
	OriginalFilename *string         `json:"originalFilename,omitempty"`
	StorageKey       string          `json:"-"`
	ThumbnailKey     *string         `json:"-"`
	MimeType         string          `json:"mimeType"`
	FileSize         int64           `json:"fileSize"`
	Width            *int            `json:"width,omitempty"`
	Height           *int            `json:"height,omitempty"`
	Latitude         float64         `json:"latitude"`
	Longitude        float64         `json:"longitude"`
	GPSAccuracy      *float64        `json:"gpsAccuracy,omitempty"`
	CapturedAt       time.Time       `json:"capturedAt"`
	DeviceInfo       *string         `json:"deviceInfo,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	Status           PhotoStatus     `json:"status"`
	RejectionReason  *string         `json:"rejectionReason,omitempty"`
	ApprovedBy       *uuid.UUID      `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	Checksum         string          `json:"checksum"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`

	// Joined from equipment and users.
	EquipmentCode string  `json:"equipmentCode,omitempty"`
	EquipmentName string  `json:"equipmentName,omitempty"`
	LocationArea  *string `json:"locationArea,omitempty"`
	Username      string  `json:"username,omitempty"`

	// Populated by the service from the blob store.
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// PhotoFilter holds the request filters accepted by photo listings.
type PhotoFilter struct {
	PlantID     *uuid.UUID
	PlantArea   *string
	EquipmentID *uuid.UUID
	UserID      *uuid.UUID
	Status      *PhotoStatus
	StartDate   *time.Time
	EndDate     *time.Time
}

// PhotoUpload describes a new photo before it is stored.
type PhotoUpload struct {
	EquipmentID      uuid.UUID
	OriginalFilename string
	MimeType         string
	Data             []byte
	Latitude         float64
	Longitude        float64
	GPSAccuracy      *float64
	CapturedAt       *time.Time
	DeviceInfo       *string
	Notes            *string
}
