// Package seed loads reference data (plants, users and equipment) from a YAML file
// and upserts it into the store at startup.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
)

// File is the top-level layout of a seed file.
type File struct {
	Plants    []Plant     `yaml:"plants"`
	Users     []User      `yaml:"users"`
	Equipment []Equipment `yaml:"equipment"`
}

// Plant is a plant entry keyed by Code.
type Plant struct {
	Code          string   `yaml:"code"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Location      string   `yaml:"location"`
	Latitude      *float64 `yaml:"latitude"`
	Longitude     *float64 `yaml:"longitude"`
	ContactPerson string   `yaml:"contact_person"`
	ContactPhone  string   `yaml:"contact_phone"`
	ContactEmail  string   `yaml:"contact_email"`
	Active        *bool    `yaml:"active"`
}

// User is a user entry keyed by Username. Password is plaintext and hashed on load.
type User struct {
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	Role       string `yaml:"role"`
	EmployeeID string `yaml:"employee_id"`
	Department string `yaml:"department"`
	PlantArea  string `yaml:"plant_area"`
	Phone      string `yaml:"phone"`
	Active     *bool  `yaml:"active"`
}

// Equipment is an equipment entry keyed by Plant and Code.
type Equipment struct {
	Plant            string         `yaml:"plant"`
	Code             string         `yaml:"code"`
	Name             string         `yaml:"name"`
	Type             string         `yaml:"type"`
	Description      string         `yaml:"description"`
	Manufacturer     string         `yaml:"manufacturer"`
	Model            string         `yaml:"model"`
	SerialNumber     string         `yaml:"serial_number"`
	InstallationDate string         `yaml:"installation_date"` // YYYY-MM-DD
	Area             string         `yaml:"area"`
	Latitude         *float64       `yaml:"latitude"`
	Longitude        *float64       `yaml:"longitude"`
	QRCode           string         `yaml:"qr_code"`
	Specifications   map[string]any `yaml:"specifications"`
	Status           string         `yaml:"status"`
}

// Load reads and validates the seed file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a seed document. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) validate() error {
	plants := make(map[string]bool, len(f.Plants))
	for i, p := range f.Plants {
		if p.Code == "" || p.Name == "" {
			return fmt.Errorf("plants[%d]: code and name are required", i)
		}
		if plants[p.Code] {
			return fmt.Errorf("plants[%d]: duplicate plant code %q", i, p.Code)
		}
		plants[p.Code] = true
	}

	usernames := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.Username == "" || u.Email == "" || u.FirstName == "" || u.LastName == "" {
			return fmt.Errorf("users[%d]: username, email, first_name and last_name are required", i)
		}
		if !models.IsValidRole(u.Role) {
			return fmt.Errorf("users[%d]: invalid role %q", i, u.Role)
		}
		if len(u.Password) < auth.MinPasswordLength {
			return fmt.Errorf("users[%d]: password must be at least %d characters", i, auth.MinPasswordLength)
		}
		if usernames[u.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		usernames[u.Username] = true
	}

	for i, e := range f.Equipment {
		if e.Plant == "" || e.Code == "" || e.Name == "" {
			return fmt.Errorf("equipment[%d]: plant, code and name are required", i)
		}
		if e.Status != "" && !models.IsValidEquipmentStatus(e.Status) {
			return fmt.Errorf("equipment[%d]: invalid status %q", i, e.Status)
		}
		if e.InstallationDate != "" {
			if _, err := time.Parse(time.DateOnly, e.InstallationDate); err != nil {
				return fmt.Errorf("equipment[%d]: installation_date must be YYYY-MM-DD", i)
			}
		}
	}
	return nil
}

// PlantStore is the plant write surface used by seeding.
type PlantStore interface {
	Upsert(ctx context.Context, plant *models.Plant) error
	GetByCode(ctx context.Context, code string) (*models.Plant, error)
}

// UserStore is the user write surface used by seeding.
type UserStore interface {
	Upsert(ctx context.Context, user *models.User) error
}

// EquipmentStore is the equipment write surface used by seeding.
type EquipmentStore interface {
	Upsert(ctx context.Context, eq *models.Equipment) error
}

// Result counts the rows written by Apply.
type Result struct {
	Plants    int
	Users     int
	Equipment int
}

// Seeder applies seed files.
type Seeder struct {
	plants    PlantStore
	users     UserStore
	equipment EquipmentStore
	hasher    auth.PasswordHasher
	tx        database.Transactor
	logger    *zap.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(plants PlantStore, users UserStore, equipment EquipmentStore, hasher auth.PasswordHasher, tx database.Transactor, logger *zap.Logger) *Seeder {
	return &Seeder{
		plants:    plants,
		users:     users,
		equipment: equipment,
		hasher:    hasher,
		tx:        tx,
		logger:    logger.Named("seed"),
	}
}

// Apply upserts everything in file in one transaction. Equipment may reference
// plants from the same file or plants already in the store. Existing users keep
// their current password.
func (s *Seeder) Apply(ctx context.Context, file *File) (Result, error) {
	var result Result
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		result = Result{}
		plantIDs := make(map[string]models.Plant, len(file.Plants))

		for _, p := range file.Plants {
			plant := toPlant(p)
			if err := s.plants.Upsert(ctx, plant); err != nil {
				return fmt.Errorf("plant %s: %w", p.Code, err)
			}
			plantIDs[p.Code] = *plant
			result.Plants++
		}

		for _, u := range file.Users {
			digest, err := s.hasher.Hash(u.Password)
			if err != nil {
				return fmt.Errorf("user %s: %w", u.Username, err)
			}
			if err := s.users.Upsert(ctx, toUser(u, digest)); err != nil {
				return fmt.Errorf("user %s: %w", u.Username, err)
			}
			result.Users++
		}

		for _, e := range file.Equipment {
			plant, ok := plantIDs[e.Plant]
			if !ok {
				existing, err := s.plants.GetByCode(ctx, e.Plant)
				if err != nil {
					return fmt.Errorf("equipment %s: unknown plant %q: %w", e.Code, e.Plant, err)
				}
				plant = *existing
				plantIDs[e.Plant] = plant
			}
			eq, err := toEquipment(e, plant)
			if err != nil {
				return fmt.Errorf("equipment %s: %w", e.Code, err)
			}
			if err := s.equipment.Upsert(ctx, eq); err != nil {
				return fmt.Errorf("equipment %s: %w", e.Code, err)
			}
			result.Equipment++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("Seed data applied",
		zap.Int("plants", result.Plants),
		zap.Int("users", result.Users),
		zap.Int("equipment", result.Equipment))
	return result, nil
}

// ApplyFile loads path and applies it.
func (s *Seeder) ApplyFile(ctx context.Context, path string) (Result, error) {
	file, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return s.Apply(ctx, file)
}

func toPlant(p Plant) *models.Plant {
	return &models.Plant{
		PlantCode:     p.Code,
		PlantName:     p.Name,
		Description:   optional(p.Description),
		Location:      optional(p.Location),
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		ContactPerson: optional(p.ContactPerson),
		ContactPhone:  optional(p.ContactPhone),
		ContactEmail:  optional(p.ContactEmail),
		IsActive:      p.Active == nil || *p.Active,
	}
}

func toUser(u User, digest string) *models.User {
	return &models.User{
		Username:      u.Username,
		Email:         strings.ToLower(u.Email),
		PasswordHash:  digest,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          models.Role(u.Role),
		EmployeeID:    optional(u.EmployeeID),
		Department:    optional(u.Department),
		PlantArea:     optional(u.PlantArea),
		Phone:         optional(u.Phone),
		IsActive:      u.Active == nil || *u.Active,
		EmailVerified: true,
	}
}

func toEquipment(e Equipment, plant models.Plant) (*models.Equipment, error) {
	eq := &models.Equipment{
		PlantID:       plant.ID,
		PlantCode:     plant.PlantCode,
		PlantName:     plant.PlantName,
		EquipmentCode: e.Code,
		EquipmentName: e.Name,
		EquipmentType: optional(e.Type),
		Description:   optional(e.Description),
		Manufacturer:  optional(e.Manufacturer),
		Model:         optional(e.Model),
		SerialNumber:  optional(e.SerialNumber),
		LocationArea:  optional(e.Area),
		Latitude:      e.Latitude,
		Longitude:     e.Longitude,
		QRCode:        optional(e.QRCode),
		Status:        models.EquipmentStatus(e.Status),
	}
	if e.InstallationDate != "" {
		d, err := time.Parse(time.DateOnly, e.InstallationDate)
		if err != nil {
			return nil, err
		}
		eq.InstallationDate = &d
	}
	if len(e.Specifications) > 0 {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(e.Specifications); err != nil {
			return nil, fmt.Errorf("failed to encode specifications: %w", err)
		}
		eq.Specifications = bytes.TrimSpace(buf.Bytes())
	}
	return eq, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
