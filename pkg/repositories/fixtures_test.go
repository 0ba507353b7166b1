//go:build integration

package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/testhelpers"
)

// repoTestContext holds the repositories under test and builders for rows that
// satisfy their foreign keys.
type repoTestContext struct {
	t         *testing.T
	ctx       context.Context
	testDB    *testhelpers.TestDB
	users     UserRepository
	plants    PlantRepository
	equipment EquipmentRepository
	photos    PhotoRepository
	tasks     TaskRepository
	audit     AuditRepository
	seq       int
}

// setupRepoTest returns a context over an empty store.
func setupRepoTest(t *testing.T) *repoTestContext {
	testDB := testhelpers.GetTestDB(t)
	tables := []string{"audit_logs", "tasks", "photos", "equipment", "plants", "users"}
	testDB.Truncate(t, tables...)
	t.Cleanup(func() { testDB.Truncate(t, tables...) })

	return &repoTestContext{
		t:         t,
		ctx:       context.Background(),
		testDB:    testDB,
		users:     NewUserRepository(testDB.DB),
		plants:    NewPlantRepository(testDB.DB),
		equipment: NewEquipmentRepository(testDB.DB),
		photos:    NewPhotoRepository(testDB.DB),
		tasks:     NewTaskRepository(testDB.DB),
		audit:     NewAuditRepository(testDB.DB),
	}
}

func (tc *repoTestContext) next() int {
	tc.seq++
	return tc.seq
}

func strPtr(s string) *string { return &s }

func (tc *repoTestContext) createUser(role models.Role, area *string) *models.User {
	tc.t.Helper()
	n := tc.next()
	user := &models.User{
		Username:     fmt.Sprintf("%s%d", role, n),
		Email:        fmt.Sprintf("%s%d@plantvision.test", role, n),
		PasswordHash: "$2a$12$hash",
		FirstName:    "Test",
		LastName:     fmt.Sprintf("User%d", n),
		Role:         role,
		PlantArea:    area,
		IsActive:     true,
	}
	if err := tc.users.Upsert(tc.ctx, user); err != nil {
		tc.t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func (tc *repoTestContext) createPlant() *models.Plant {
	tc.t.Helper()
	n := tc.next()
	plant := &models.Plant{PlantCode: fmt.Sprintf("PLT%03d", n), PlantName: fmt.Sprintf("Plant %d", n), IsActive: true}
	if err := tc.plants.Upsert(tc.ctx, plant); err != nil {
		tc.t.Fatalf("failed to create plant: %v", err)
	}
	return plant
}

func (tc *repoTestContext) createEquipment(plant *models.Plant, area string) *models.Equipment {
	tc.t.Helper()
	n := tc.next()
	eq := &models.Equipment{
		PlantID:       plant.ID,
		EquipmentCode: fmt.Sprintf("EQ-%03d", n),
		EquipmentName: fmt.Sprintf("Pump %d", n),
		EquipmentType: strPtr("pump"),
		LocationArea:  strPtr(area),
		QRCode:        strPtr(fmt.Sprintf("QR-EQ-%03d", n)),
	}
	if err := tc.equipment.Upsert(tc.ctx, eq); err != nil {
		tc.t.Fatalf("failed to create equipment: %v", err)
	}
	return eq
}

func (tc *repoTestContext) createPhoto(owner *models.User, eq *models.Equipment, capturedAt time.Time) *models.Photo {
	tc.t.Helper()
	n := tc.next()
	photo := &models.Photo{
		UserID:      owner.ID,
		EquipmentID: eq.ID,
		Filename:    fmt.Sprintf("photo-%d.jpg", n),
		StorageKey:  fmt.Sprintf("photos/photo-%d.jpg", n),
		MimeType:    "image/jpeg",
		FileSize:    1024,
		Latitude:    29.76,
		Longitude:   -95.36,
		CapturedAt:  capturedAt,
		Checksum:    fmt.Sprintf("%064d", n),
	}
	if err := tc.photos.Create(tc.ctx, photo); err != nil {
		tc.t.Fatalf("failed to create photo: %v", err)
	}
	return photo
}

func (tc *repoTestContext) createTask(assignee, assigner *models.User, eq *models.Equipment) *models.Task {
	tc.t.Helper()
	task := &models.Task{
		AssignedTo:  assignee.ID,
		AssignedBy:  assigner.ID,
		EquipmentID: eq.ID,
		Title:       fmt.Sprintf("Inspect %s", eq.EquipmentCode),
		Priority:    models.PriorityMedium,
		Status:      models.TaskStatusPending,
	}
	if err := tc.tasks.Create(tc.ctx, task); err != nil {
		tc.t.Fatalf("failed to create task: %v", err)
	}
	return task
}

// pageAll pages through a listing and returns every item it yields.
func pageAll[T any](t *testing.T, limit int, list func(models.Page) ([]T, error)) []T {
	t.Helper()
	var all []T
	for n := 1; ; n++ {
		items, err := list(models.Page{Number: n, Limit: limit})
		if err != nil {
			t.Fatalf("failed to list page %d: %v", n, err)
		}
		all = append(all, items...)
		if len(items) < limit {
			return all
		}
	}
}
