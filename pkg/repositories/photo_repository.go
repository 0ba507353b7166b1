package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

const photoColumns = `
	p.id, p.user_id, p.equipment_id, p.filename, p.original_filename, p.storage_key,
	p.thumbnail_key, p.mime_type, p.file_size, p.width, p.height, p.latitude, p.longitude,
	p.gps_accuracy, p.captured_at, p.device_info, p.notes, p.status, p.rejection_reason,
	p.approved_by, p.approved_at, p.metadata, p.checksum, p.created_at, p.updated_at,
	e.equipment_code, e.equipment_name, e.location_area, u.username`

const photosFrom = `
	FROM photos p
	JOIN equipment e ON e.id = p.equipment_id
	JOIN users u ON u.id = p.user_id`

// PhotoRepository provides data access for inspection photos.
type PhotoRepository interface {
	Create(ctx context.Context, photo *models.Photo) error
	// List returns photos matching pred, most recently captured first.
	List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.Photo, error)
	Count(ctx context.Context, pred scope.Predicate) (int, error)
	// Get returns the single photo matching pred.
	Get(ctx context.Context, pred scope.Predicate) (*models.Photo, error)
	// GetForUpdate is Get with the photo row locked until the transaction ends.
	GetForUpdate(ctx context.Context, pred scope.Predicate) (*models.Photo, error)
	// IsOwnedBy reports whether a non-deleted photo with the id was uploaded by userID.
	IsOwnedBy(ctx context.Context, photoID, userID uuid.UUID) (bool, error)
	// Review moves a pending photo to approved or rejected. A photo that is no
	// longer pending is reported as not found.
	Review(ctx context.Context, id uuid.UUID, status models.PhotoStatus, reviewer uuid.UUID, reason *string) (time.Time, error)
	// SoftDelete marks a non-deleted photo as deleted.
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type photoRepository struct {
	db *database.DB
}

// NewPhotoRepository creates a new PhotoRepository.
func NewPhotoRepository(db *database.DB) PhotoRepository {
	return &photoRepository{db: db}
}

var _ PhotoRepository = (*photoRepository)(nil)

func (r *photoRepository) Create(ctx context.Context, photo *models.Photo) error {
	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	if photo.Status == "" {
		photo.Status = models.PhotoStatusPending
	}

	query := `
		INSERT INTO photos (
			id, user_id, equipment_id, filename, original_filename, storage_key, thumbnail_key,
			mime_type, file_size, width, height, latitude, longitude, gps_accuracy,
			captured_at, device_info, notes, status, metadata, checksum
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		photo.ID,
		photo.UserID,
		photo.EquipmentID,
		photo.Filename,
		photo.OriginalFilename,
		photo.StorageKey,
		photo.ThumbnailKey,
		photo.MimeType,
		photo.FileSize,
		photo.Width,
		photo.Height,
		photo.Latitude,
		photo.Longitude,
		photo.GPSAccuracy,
		photo.CapturedAt,
		photo.DeviceInfo,
		photo.Notes,
		photo.Status,
		rawJSON(photo.Metadata),
		photo.Checksum,
	).Scan(&photo.CreatedAt, &photo.UpdatedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("Equipment not found")
		}
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

func (r *photoRepository) List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.Photo, error) {
	where, args := pred.SQL(1)
	limit, args := pageClause(args, page)
	query := `SELECT ` + photoColumns + ` ` + photosFrom + `
		WHERE ` + where + `
		ORDER BY p.captured_at DESC, p.id` + limit

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

func (r *photoRepository) Count(ctx context.Context, pred scope.Predicate) (int, error) {
	count, err := countWhere(ctx, r.db.Querier(ctx), photosFrom, pred)
	if err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return count, nil
}

func (r *photoRepository) Get(ctx context.Context, pred scope.Predicate) (*models.Photo, error) {
	return r.get(ctx, pred, "")
}

func (r *photoRepository) GetForUpdate(ctx context.Context, pred scope.Predicate) (*models.Photo, error) {
	return r.get(ctx, pred, " FOR UPDATE OF p")
}

func (r *photoRepository) get(ctx context.Context, pred scope.Predicate, lock string) (*models.Photo, error) {
	where, args := pred.SQL(1)
	query := `SELECT ` + photoColumns + ` ` + photosFrom + ` WHERE ` + where + ` LIMIT 1` + lock

	photo, err := scanPhoto(r.db.Querier(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "Photo")
	}
	return photo, nil
}

func (r *photoRepository) IsOwnedBy(ctx context.Context, photoID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM photos
			WHERE id = $1 AND user_id = $2 AND status <> 'deleted'
		)`

	var owned bool
	if err := r.db.Querier(ctx).QueryRow(ctx, query, photoID, userID).Scan(&owned); err != nil {
		return false, fmt.Errorf("failed to check photo ownership: %w", err)
	}
	return owned, nil
}

func (r *photoRepository) Review(ctx context.Context, id uuid.UUID, status models.PhotoStatus, reviewer uuid.UUID, reason *string) (time.Time, error) {
	query := `
		UPDATE photos
		SET status = $2, approved_by = $3, approved_at = NOW(),
		    rejection_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING approved_at`

	var reviewedAt time.Time
	err := r.db.Querier(ctx).QueryRow(ctx, query, id, status, reviewer, reason).Scan(&reviewedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, apperrors.NotFound("Pending photo not found")
		}
		return time.Time{}, fmt.Errorf("failed to review photo: %w", err)
	}
	return reviewedAt, nil
}

func (r *photoRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE photos SET status = 'deleted', updated_at = NOW() WHERE id = $1 AND status <> 'deleted'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("Photo not found")
	}
	return nil
}

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var p models.Photo
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.EquipmentID,
		&p.Filename,
		&p.OriginalFilename,
		&p.StorageKey,
		&p.ThumbnailKey,
		&p.MimeType,
		&p.FileSize,
		&p.Width,
		&p.Height,
		&p.Latitude,
		&p.Longitude,
		&p.GPSAccuracy,
		&p.CapturedAt,
		&p.DeviceInfo,
		&p.Notes,
		&p.Status,
		&p.RejectionReason,
		&p.ApprovedBy,
		&p.ApprovedAt,
		&p.Metadata,
		&p.Checksum,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.EquipmentCode,
		&p.EquipmentName,
		&p.LocationArea,
		&p.Username,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
