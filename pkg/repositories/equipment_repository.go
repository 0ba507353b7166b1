package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

const equipmentColumns = `
	e.id, e.plant_id, pl.plant_code, pl.plant_name, e.equipment_code, e.equipment_name,
	e.equipment_type, e.description, e.manufacturer, e.model, e.serial_number,
	e.installation_date, e.location_area, e.latitude, e.longitude, e.qr_code,
	e.specifications, e.status, e.created_at, e.updated_at`

const equipmentFrom = `FROM equipment e JOIN plants pl ON pl.id = e.plant_id`

// EquipmentRepository provides data access for equipment. Every read takes a
// predicate built by the scope package.
type EquipmentRepository interface {
	List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.Equipment, error)
	Count(ctx context.Context, pred scope.Predicate) (int, error)
	// Get returns the single equipment matching pred.
	Get(ctx context.Context, pred scope.Predicate) (*models.Equipment, error)
	// Types returns the distinct non-null equipment types matching pred.
	Types(ctx context.Context, pred scope.Predicate) ([]string, error)
	// Counts returns the number of non-deleted photos and of tasks for the equipment.
	Counts(ctx context.Context, id uuid.UUID) (photoCount, taskCount int, err error)
	// Upsert inserts or updates equipment keyed by plant and equipment code.
	Upsert(ctx context.Context, eq *models.Equipment) error
}

type equipmentRepository struct {
	db *database.DB
}

// NewEquipmentRepository creates a new EquipmentRepository.
func NewEquipmentRepository(db *database.DB) EquipmentRepository {
	return &equipmentRepository{db: db}
}

var _ EquipmentRepository = (*equipmentRepository)(nil)

func (r *equipmentRepository) List(ctx context.Context, pred scope.Predicate, page models.Page) ([]*models.Equipment, error) {
	where, args := pred.SQL(1)
	limit, args := pageClause(args, page)
	query := `SELECT ` + equipmentColumns + ` ` + equipmentFrom + `
		WHERE ` + where + `
		ORDER BY e.equipment_code, e.id` + limit

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query equipment: %w", err)
	}
	defer rows.Close()

	var items []*models.Equipment
	for rows.Next() {
		eq, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		items = append(items, eq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equipment: %w", err)
	}

	return items, nil
}

func (r *equipmentRepository) Count(ctx context.Context, pred scope.Predicate) (int, error) {
	count, err := countWhere(ctx, r.db.Querier(ctx), equipmentFrom, pred)
	if err != nil {
		return 0, fmt.Errorf("failed to count equipment: %w", err)
	}
	return count, nil
}

func (r *equipmentRepository) Get(ctx context.Context, pred scope.Predicate) (*models.Equipment, error) {
	where, args := pred.SQL(1)
	query := `SELECT ` + equipmentColumns + ` ` + equipmentFrom + ` WHERE ` + where + ` LIMIT 1`

	eq, err := scanEquipment(r.db.Querier(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "Equipment")
	}
	return eq, nil
}

func (r *equipmentRepository) Types(ctx context.Context, pred scope.Predicate) ([]string, error) {
	where, args := pred.SQL(1)
	query := `
		SELECT DISTINCT e.equipment_type
		FROM equipment e
		WHERE e.equipment_type IS NOT NULL AND ` + where + `
		ORDER BY e.equipment_type`

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query equipment types: %w", err)
	}
	defer rows.Close()

	types := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan equipment type: %w", err)
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equipment types: %w", err)
	}

	return types, nil
}

func (r *equipmentRepository) Counts(ctx context.Context, id uuid.UUID) (int, int, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM photos WHERE equipment_id = $1 AND status <> 'deleted'),
			(SELECT COUNT(*) FROM tasks WHERE equipment_id = $1)`

	var photoCount, taskCount int
	if err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(&photoCount, &taskCount); err != nil {
		return 0, 0, fmt.Errorf("failed to count equipment activity: %w", err)
	}
	return photoCount, taskCount, nil
}

func (r *equipmentRepository) Upsert(ctx context.Context, eq *models.Equipment) error {
	if eq.ID == uuid.Nil {
		eq.ID = uuid.New()
	}
	if eq.Status == "" {
		eq.Status = models.EquipmentStatusActive
	}

	query := `
		INSERT INTO equipment (
			id, plant_id, equipment_code, equipment_name, equipment_type, description,
			manufacturer, model, serial_number, installation_date, location_area,
			latitude, longitude, qr_code, specifications, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (plant_id, equipment_code) DO UPDATE
		SET equipment_name = EXCLUDED.equipment_name,
		    equipment_type = EXCLUDED.equipment_type,
		    description = EXCLUDED.description,
		    manufacturer = EXCLUDED.manufacturer,
		    model = EXCLUDED.model,
		    serial_number = EXCLUDED.serial_number,
		    installation_date = EXCLUDED.installation_date,
		    location_area = EXCLUDED.location_area,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    qr_code = EXCLUDED.qr_code,
		    specifications = EXCLUDED.specifications,
		    status = EXCLUDED.status,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		eq.ID,
		eq.PlantID,
		eq.EquipmentCode,
		eq.EquipmentName,
		eq.EquipmentType,
		eq.Description,
		eq.Manufacturer,
		eq.Model,
		eq.SerialNumber,
		eq.InstallationDate,
		eq.LocationArea,
		eq.Latitude,
		eq.Longitude,
		eq.QRCode,
		rawJSON(eq.Specifications),
		eq.Status,
	).Scan(&eq.ID, &eq.CreatedAt, &eq.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("equipment %s conflicts with an existing QR code", eq.EquipmentCode)
		}
		if database.IsForeignKeyViolation(err) {
			return apperrors.Validation("plant %s does not exist", eq.PlantID)
		}
		return fmt.Errorf("failed to upsert equipment: %w", err)
	}
	return nil
}

func scanEquipment(row pgx.Row) (*models.Equipment, error) {
	var eq models.Equipment
	err := row.Scan(
		&eq.ID,
		&eq.PlantID,
		&eq.PlantCode,
		&eq.PlantName,
		&eq.EquipmentCode,
		&eq.EquipmentName,
		&eq.EquipmentType,
		&eq.Description,
		&eq.Manufacturer,
		&eq.Model,
		&eq.SerialNumber,
		&eq.InstallationDate,
		&eq.LocationArea,
		&eq.Latitude,
		&eq.Longitude,
		&eq.QRCode,
		&eq.Specifications,
		&eq.Status,
		&eq.CreatedAt,
		&eq.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &eq, nil
}
