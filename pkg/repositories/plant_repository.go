package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
)

// PlantRepository provides data access for plants. Plants are only written by seeding.
type PlantRepository interface {
	// Upsert inserts or updates a plant keyed by plant code.
	Upsert(ctx context.Context, plant *models.Plant) error
	GetByCode(ctx context.Context, code string) (*models.Plant, error)
}

type plantRepository struct {
	db *database.DB
}

// NewPlantRepository creates a new PlantRepository.
func NewPlantRepository(db *database.DB) PlantRepository {
	return &plantRepository{db: db}
}

var _ PlantRepository = (*plantRepository)(nil)

func (r *plantRepository) Upsert(ctx context.Context, plant *models.Plant) error {
	if plant.ID == uuid.Nil {
		plant.ID = uuid.New()
	}

	query := `
		INSERT INTO plants (
			id, plant_code, plant_name, description, location, latitude, longitude,
			contact_person, contact_phone, contact_email, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (plant_code) DO UPDATE
		SET plant_name = EXCLUDED.plant_name,
		    description = EXCLUDED.description,
		    location = EXCLUDED.location,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    contact_person = EXCLUDED.contact_person,
		    contact_phone = EXCLUDED.contact_phone,
		    contact_email = EXCLUDED.contact_email,
		    is_active = EXCLUDED.is_active,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		plant.ID,
		plant.PlantCode,
		plant.PlantName,
		plant.Description,
		plant.Location,
		plant.Latitude,
		plant.Longitude,
		plant.ContactPerson,
		plant.ContactPhone,
		plant.ContactEmail,
		plant.IsActive,
	).Scan(&plant.ID, &plant.CreatedAt, &plant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert plant: %w", err)
	}
	return nil
}

func (r *plantRepository) GetByCode(ctx context.Context, code string) (*models.Plant, error) {
	query := `
		SELECT id, plant_code, plant_name, description, location, latitude, longitude,
		       contact_person, contact_phone, contact_email, is_active, created_at, updated_at
		FROM plants
		WHERE plant_code = $1`

	var p models.Plant
	err := r.db.Querier(ctx).QueryRow(ctx, query, code).Scan(
		&p.ID,
		&p.PlantCode,
		&p.PlantName,
		&p.Description,
		&p.Location,
		&p.Latitude,
		&p.Longitude,
		&p.ContactPerson,
		&p.ContactPhone,
		&p.ContactEmail,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "Plant")
	}
	return &p, nil
}
