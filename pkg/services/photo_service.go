package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/audit"
	"github.com/plantvision/inspection-api/pkg/blobstore"
	"github.com/plantvision/inspection-api/pkg/config"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/imaging"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/repositories"
	"github.com/plantvision/inspection-api/pkg/scope"
)

// Photo field limits.
const (
	MaxPhotoNotesLength      = 1000
	MaxPhotoDeviceInfoLength = 255
	MaxStoredFilenameLength  = 100
)

var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// PhotoService stores inspection photos and manages their review.
type PhotoService interface {
	Upload(ctx context.Context, caller models.Caller, upload models.PhotoUpload) (*models.Photo, error)
	List(ctx context.Context, caller models.Caller, filter models.PhotoFilter, page models.Page) (*models.ListResult[*models.Photo], error)
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Photo, error)
	Approve(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Photo, error)
	// Reject requires a non-empty reason.
	Reject(ctx context.Context, caller models.Caller, id uuid.UUID, reason string) (*models.Photo, error)
	// Delete soft-deletes a photo. The stored bytes are kept.
	Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error
}

type photoService struct {
	photos    repositories.PhotoRepository
	equipment repositories.EquipmentRepository
	blobs     blobstore.Store
	tx        database.Transactor
	audit     audit.Recorder
	storage   config.StorageConfig
	logger    *zap.Logger
}

// NewPhotoService creates a new PhotoService.
func NewPhotoService(
	photos repositories.PhotoRepository,
	equipment repositories.EquipmentRepository,
	blobs blobstore.Store,
	tx database.Transactor,
	recorder audit.Recorder,
	storage config.StorageConfig,
	logger *zap.Logger,
) PhotoService {
	return &photoService{
		photos:    photos,
		equipment: equipment,
		blobs:     blobs,
		tx:        tx,
		audit:     recorder,
		storage:   storage,
		logger:    logger.Named("photo-service"),
	}
}

var _ PhotoService = (*photoService)(nil)

func (s *photoService) Upload(ctx context.Context, caller models.Caller, upload models.PhotoUpload) (*models.Photo, error) {
	if len(upload.Data) == 0 {
		return nil, apperrors.Validation("Photo file is required")
	}
	if err := s.validateUpload(upload); err != nil {
		return nil, err
	}

	mimeType := http.DetectContentType(upload.Data)
	if !allowedPhotoTypes[mimeType] {
		return nil, apperrors.Validation("Only JPEG, PNG and WebP images are allowed")
	}

	eq, err := s.equipment.Get(ctx, scope.Predicate{}.Where(scope.ColEquipmentID, scope.OpEq, upload.EquipmentID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("Equipment not found")
		}
		return nil, err
	}
	if !scope.CanWriteArea(caller, eq.Area()) {
		return nil, apperrors.Forbidden("Access denied to this equipment")
	}

	width, height, format, err := imaging.Dimensions(upload.Data)
	if err != nil {
		return nil, apperrors.Validation("Invalid image file")
	}

	sum := sha256.Sum256(upload.Data)
	id := uuid.New()
	filename := id.String() + "-" + sanitizeFilename(upload.OriginalFilename, format)
	storageKey := s.storage.PhotosPrefix + filename

	if _, err := s.blobs.Put(ctx, storageKey, bytes.NewReader(upload.Data), int64(len(upload.Data)), mimeType); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}
	thumbnailKey := s.storeThumbnail(ctx, id, upload.Data)

	metadata, err := json.Marshal(map[string]any{"format": format})
	if err != nil {
		return nil, fmt.Errorf("failed to encode photo metadata: %w", err)
	}

	photo := &models.Photo{
		ID:               id,
		UserID:           caller.ID,
		EquipmentID:      upload.EquipmentID,
		Filename:         filename,
		OriginalFilename: optionalString(upload.OriginalFilename),
		StorageKey:       storageKey,
		ThumbnailKey:     thumbnailKey,
		MimeType:         mimeType,
		FileSize:         int64(len(upload.Data)),
		Width:            &width,
		Height:           &height,
		Latitude:         upload.Latitude,
		Longitude:        upload.Longitude,
		GPSAccuracy:      upload.GPSAccuracy,
		CapturedAt:       *upload.CapturedAt,
		DeviceInfo:       upload.DeviceInfo,
		Notes:            upload.Notes,
		Status:           models.PhotoStatusPending,
		Metadata:         metadata,
		Checksum:         hex.EncodeToString(sum[:]),
	}
	if err := s.photos.Create(ctx, photo); err != nil {
		s.removeBlobs(ctx, storageKey, thumbnailKey)
		return nil, err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionCreate,
		ResourceType: models.AuditResourcePhoto,
		ResourceID:   resourceID(photo.ID),
		NewValues: map[string]any{
			"user_id":           photo.UserID,
			"equipment_id":      photo.EquipmentID,
			"filename":          photo.Filename,
			"original_filename": photo.OriginalFilename,
			"mime_type":         photo.MimeType,
			"file_size":         photo.FileSize,
			"width":             width,
			"height":            height,
			"latitude":          photo.Latitude,
			"longitude":         photo.Longitude,
			"gps_accuracy":      photo.GPSAccuracy,
			"captured_at":       photo.CapturedAt,
			"checksum":          photo.Checksum,
		},
	})

	s.logger.Info("Photo uploaded",
		zap.String("photo_id", photo.ID.String()),
		zap.String("equipment_id", photo.EquipmentID.String()),
		zap.String("user_id", caller.ID.String()),
		zap.Int64("size", photo.FileSize))

	photo.EquipmentCode = eq.EquipmentCode
	photo.EquipmentName = eq.EquipmentName
	photo.LocationArea = eq.LocationArea
	s.sign(photo)
	return photo, nil
}

func (s *photoService) List(ctx context.Context, caller models.Caller, filter models.PhotoFilter, page models.Page) (*models.ListResult[*models.Photo], error) {
	pred := scope.Photos(caller, filter)
	result, err := listPage(ctx, s.tx, page,
		func(ctx context.Context) ([]*models.Photo, error) { return s.photos.List(ctx, pred, page) },
		func(ctx context.Context) (int, error) { return s.photos.Count(ctx, pred) },
	)
	if err != nil {
		return nil, err
	}
	for _, p := range result.Items {
		s.sign(p)
	}
	return result, nil
}

func (s *photoService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Photo, error) {
	photo, err := s.photos.Get(ctx, scope.PhotoByID(caller, id))
	if err != nil {
		return nil, photoNotFound(err, "Photo not found")
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionView,
		ResourceType: models.AuditResourcePhoto,
		ResourceID:   resourceID(id),
	})

	s.sign(photo)
	return photo, nil
}

func (s *photoService) Approve(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Photo, error) {
	return s.review(ctx, caller, id, models.PhotoStatusApproved, nil)
}

func (s *photoService) Reject(ctx context.Context, caller models.Caller, id uuid.UUID, reason string) (*models.Photo, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("Rejection reason is required")
	}
	return s.review(ctx, caller, id, models.PhotoStatusRejected, &reason)
}

func (s *photoService) review(ctx context.Context, caller models.Caller, id uuid.UUID, status models.PhotoStatus, reason *string) (*models.Photo, error) {
	if !caller.Role.IsSupervisor() {
		return nil, apperrors.Forbidden("only managers can review photos")
	}

	var photo *models.Photo
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		photo, err = s.photos.GetForUpdate(ctx, scope.PhotoByID(caller, id).
			Where(scope.ColPhotoStatus, scope.OpEq, string(models.PhotoStatusPending)))
		if err != nil {
			return photoNotFound(err, "Pending photo not found")
		}

		approvedAt, err := s.photos.Review(ctx, id, status, caller.ID, reason)
		if err != nil {
			return photoNotFound(err, "Pending photo not found")
		}

		photo.Status = status
		photo.ApprovedBy = &caller.ID
		photo.ApprovedAt = &approvedAt
		photo.RejectionReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := models.AuditActionApprove
	newValues := map[string]any{
		"status":      status,
		"approved_by": caller.ID,
		"approved_at": photo.ApprovedAt,
	}
	if status == models.PhotoStatusRejected {
		action = models.AuditActionReject
		newValues["rejection_reason"] = *reason
	}
	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       action,
		ResourceType: models.AuditResourcePhoto,
		ResourceID:   resourceID(id),
		OldValues:    map[string]any{"status": models.PhotoStatusPending},
		NewValues:    newValues,
	})

	s.logger.Info("Photo reviewed",
		zap.String("photo_id", id.String()),
		zap.String("status", string(status)),
		zap.String("reviewer_id", caller.ID.String()))

	s.sign(photo)
	return photo, nil
}

func (s *photoService) Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	if !caller.Role.IsSupervisor() {
		return apperrors.Forbidden("only managers can delete photos")
	}

	var previous models.PhotoStatus
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		photo, err := s.photos.GetForUpdate(ctx, scope.PhotoByID(caller, id))
		if err != nil {
			return photoNotFound(err, "Photo not found")
		}
		previous = photo.Status
		return photoNotFound(s.photos.SoftDelete(ctx, id), "Photo not found")
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditLogEntry{
		UserID:       callerID(caller),
		Action:       models.AuditActionDelete,
		ResourceType: models.AuditResourcePhoto,
		ResourceID:   resourceID(id),
		OldValues:    map[string]any{"status": previous},
		NewValues:    map[string]any{"status": models.PhotoStatusDeleted},
	})

	s.logger.Info("Photo deleted",
		zap.String("photo_id", id.String()),
		zap.String("user_id", caller.ID.String()))
	return nil
}

func (s *photoService) validateUpload(upload models.PhotoUpload) error {
	if upload.EquipmentID == uuid.Nil {
		return apperrors.Validation("Valid equipment ID is required")
	}
	if s.storage.MaxUploadBytes > 0 && int64(len(upload.Data)) > s.storage.MaxUploadBytes {
		return apperrors.Validation("Photo exceeds the maximum size of %d bytes", s.storage.MaxUploadBytes)
	}
	if math.IsNaN(upload.Latitude) || upload.Latitude < -90 || upload.Latitude > 90 {
		return apperrors.Validation("Valid latitude is required")
	}
	if math.IsNaN(upload.Longitude) || upload.Longitude < -180 || upload.Longitude > 180 {
		return apperrors.Validation("Valid longitude is required")
	}
	if upload.GPSAccuracy != nil && (math.IsNaN(*upload.GPSAccuracy) || *upload.GPSAccuracy < 0) {
		return apperrors.Validation("GPS accuracy must be a positive number")
	}
	if upload.CapturedAt == nil || upload.CapturedAt.IsZero() {
		return apperrors.Validation("Valid capture timestamp is required")
	}
	if upload.Notes != nil && len(*upload.Notes) > MaxPhotoNotesLength {
		return apperrors.Validation("Notes cannot exceed %d characters", MaxPhotoNotesLength)
	}
	if upload.DeviceInfo != nil && len(*upload.DeviceInfo) > MaxPhotoDeviceInfoLength {
		return apperrors.Validation("Device info cannot exceed %d characters", MaxPhotoDeviceInfoLength)
	}
	return nil
}

// storeThumbnail renders and stores a thumbnail. Failures are logged and yield
// a nil key; the photo is stored regardless.
func (s *photoService) storeThumbnail(ctx context.Context, id uuid.UUID, data []byte) *string {
	thumb, err := imaging.Thumbnail(data, imaging.ThumbnailSize)
	if err != nil {
		s.logger.Warn("Failed to render thumbnail", zap.String("photo_id", id.String()), zap.Error(err))
		return nil
	}
	key := s.storage.ThumbnailsPrefix + id.String() + ".jpg"
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
		s.logger.Warn("Failed to store thumbnail", zap.String("photo_id", id.String()), zap.Error(err))
		return nil
	}
	return &key
}

func (s *photoService) removeBlobs(ctx context.Context, storageKey string, thumbnailKey *string) {
	keys := []string{storageKey}
	if thumbnailKey != nil {
		keys = append(keys, *thumbnailKey)
	}
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Error("Failed to remove orphaned blob", zap.String("key", key), zap.Error(err))
		}
	}
}

// sign fills the short-lived image and thumbnail URLs.
func (s *photoService) sign(photo *models.Photo) {
	ttl := s.storage.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if u, err := s.blobs.SignedURL(photo.StorageKey, ttl); err == nil {
		photo.URL = u
	} else {
		s.logger.Warn("Failed to sign photo URL", zap.String("photo_id", photo.ID.String()), zap.Error(err))
	}
	if photo.ThumbnailKey != nil {
		if u, err := s.blobs.SignedURL(*photo.ThumbnailKey, ttl); err == nil {
			photo.ThumbnailURL = u
		}
	}
}

func photoNotFound(err error, msg string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound("%s", msg)
	}
	return err
}

// sanitizeFilename reduces an uploaded filename to a safe storage name with an
// extension matching the decoded format.
func sanitizeFilename(name, format string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		clean = "photo"
	}

	ext := "." + format
	if format == "jpeg" {
		ext = ".jpg"
	}
	if len(clean)+len(ext) > MaxStoredFilenameLength {
		clean = clean[:MaxStoredFilenameLength-len(ext)]
	}
	return clean + ext
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
