package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// Compile-time interface checks.
var (
	_ services.AuthService      = (*mockAuthService)(nil)
	_ services.UserService      = (*mockUserService)(nil)
	_ services.EquipmentService = (*mockEquipmentService)(nil)
	_ services.PhotoService     = (*mockPhotoService)(nil)
	_ services.TaskService      = (*mockTaskService)(nil)
	_ services.AuditService     = (*mockAuditService)(nil)
)

var (
	testManagerArea = "Boiler Section"
	testWorker      = models.Caller{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Role: models.RoleWorker, PlantArea: &testManagerArea, Active: true}
	testManager     = models.Caller{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Role: models.RoleManager, PlantArea: &testManagerArea, Active: true}
	testAdmin       = models.Caller{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000c"), Role: models.RoleAdmin, Active: true}
)

// asCaller attaches caller to the request the way RequireAuth does.
func asCaller(req *http.Request, caller models.Caller) *http.Request {
	return req.WithContext(auth.WithCaller(req.Context(), caller))
}

// contextWithClaims attaches verified token claims the way RequireAuth does.
func contextWithClaims(req *http.Request, claims *auth.Claims) context.Context {
	return context.WithValue(req.Context(), auth.ClaimsKey, claims)
}

// envelope is the decoded shape of every JSON response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body: %s", rr.Body.String())
	return env
}

// ============================================================================
// Auth
// ============================================================================

type mockAuthService struct {
	session   *models.Session
	pair      *models.TokenPair
	user      *models.User
	err       error
	lastLogin models.LoginRequest
	lastToken string
	lastClaim *auth.Claims
	profile   models.ProfileUpdate
	change    models.PasswordChange
}

func (m *mockAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	m.lastLogin = req
	return m.session, m.err
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	m.lastToken = refreshToken
	return m.pair, m.err
}

func (m *mockAuthService) Logout(ctx context.Context, caller models.Caller, claims *auth.Claims) error {
	m.lastClaim = claims
	return m.err
}

func (m *mockAuthService) Me(ctx context.Context, caller models.Caller) (*models.User, error) {
	return m.user, m.err
}

func (m *mockAuthService) UpdateProfile(ctx context.Context, caller models.Caller, update models.ProfileUpdate) (*models.User, error) {
	m.profile = update
	return m.user, m.err
}

func (m *mockAuthService) ChangePassword(ctx context.Context, caller models.Caller, change models.PasswordChange) error {
	m.change = change
	return m.err
}

// ============================================================================
// Users
// ============================================================================

type mockUserService struct {
	list       *models.ListResult[*models.User]
	user       *models.User
	withStats  *models.UserWithStats
	workers    []*models.User
	activity   *models.UserActivity
	overview   *models.UserOverview
	err        error
	lastFilter models.UserFilter
	lastPage   models.Page
	lastDays   int
	lastActive *bool
}

func (m *mockUserService) List(ctx context.Context, caller models.Caller, filter models.UserFilter, page models.Page) (*models.ListResult[*models.User], error) {
	m.lastFilter = filter
	m.lastPage = page
	return m.list, m.err
}

func (m *mockUserService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.UserWithStats, error) {
	return m.withStats, m.err
}

func (m *mockUserService) Workers(ctx context.Context, caller models.Caller) ([]*models.User, error) {
	return m.workers, m.err
}

func (m *mockUserService) Activity(ctx context.Context, caller models.Caller, id uuid.UUID, days int) (*models.UserActivity, error) {
	m.lastDays = days
	return m.activity, m.err
}

func (m *mockUserService) SetActive(ctx context.Context, caller models.Caller, id uuid.UUID, active bool) (*models.User, error) {
	m.lastActive = &active
	return m.user, m.err
}

func (m *mockUserService) Overview(ctx context.Context, caller models.Caller) (*models.UserOverview, error) {
	return m.overview, m.err
}

// ============================================================================
// Equipment
// ============================================================================

type mockEquipmentService struct {
	list       *models.ListResult[*models.Equipment]
	equipment  *models.EquipmentWithCounts
	types      []string
	photos     *models.ListResult[*models.Photo]
	tasks      *models.ListResult[*models.Task]
	err        error
	lastFilter models.EquipmentFilter
	lastPage   models.Page
	lastCode   string
	lastID     uuid.UUID
}

func (m *mockEquipmentService) List(ctx context.Context, caller models.Caller, filter models.EquipmentFilter, page models.Page) (*models.ListResult[*models.Equipment], error) {
	m.lastFilter = filter
	m.lastPage = page
	return m.list, m.err
}

func (m *mockEquipmentService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.EquipmentWithCounts, error) {
	m.lastID = id
	return m.equipment, m.err
}

func (m *mockEquipmentService) GetByQRCode(ctx context.Context, caller models.Caller, code string) (*models.EquipmentWithCounts, error) {
	m.lastCode = code
	return m.equipment, m.err
}

func (m *mockEquipmentService) Types(ctx context.Context, caller models.Caller) ([]string, error) {
	return m.types, m.err
}

func (m *mockEquipmentService) Photos(ctx context.Context, caller models.Caller, id uuid.UUID, page models.Page) (*models.ListResult[*models.Photo], error) {
	m.lastID = id
	m.lastPage = page
	return m.photos, m.err
}

func (m *mockEquipmentService) Tasks(ctx context.Context, caller models.Caller, id uuid.UUID, page models.Page) (*models.ListResult[*models.Task], error) {
	m.lastID = id
	m.lastPage = page
	return m.tasks, m.err
}

// ============================================================================
// Photos
// ============================================================================

type mockPhotoService struct {
	photo      *models.Photo
	list       *models.ListResult[*models.Photo]
	err        error
	lastUpload models.PhotoUpload
	lastFilter models.PhotoFilter
	lastReason string
	deleted    []uuid.UUID
}

func (m *mockPhotoService) Upload(ctx context.Context, caller models.Caller, upload models.PhotoUpload) (*models.Photo, error) {
	m.lastUpload = upload
	return m.photo, m.err
}

func (m *mockPhotoService) List(ctx context.Context, caller models.Caller, filter models.PhotoFilter, page models.Page) (*models.ListResult[*models.Photo], error) {
	m.lastFilter = filter
	return m.list, m.err
}

func (m *mockPhotoService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Photo, error) {
	return m.photo, m.err
}

func (m *mockPhotoService) Approve(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Photo, error) {
	return m.photo, m.err
}

func (m *mockPhotoService) Reject(ctx context.Context, caller models.Caller, id uuid.UUID, reason string) (*models.Photo, error) {
	m.lastReason = reason
	return m.photo, m.err
}

func (m *mockPhotoService) Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return m.err
}

// ============================================================================
// Tasks
// ============================================================================

type mockTaskService struct {
	task       *models.Task
	list       *models.ListResult[*models.Task]
	stats      *models.TaskStats
	err        error
	lastCreate models.TaskCreate
	lastUpdate models.TaskUpdate
	lastStatus models.StatusUpdate
	lastFilter models.TaskFilter
	deleted    []uuid.UUID
}

func (m *mockTaskService) Create(ctx context.Context, caller models.Caller, input models.TaskCreate) (*models.Task, error) {
	m.lastCreate = input
	return m.task, m.err
}

func (m *mockTaskService) List(ctx context.Context, caller models.Caller, filter models.TaskFilter, page models.Page) (*models.ListResult[*models.Task], error) {
	m.lastFilter = filter
	return m.list, m.err
}

func (m *mockTaskService) Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Task, error) {
	return m.task, m.err
}

func (m *mockTaskService) UpdateStatus(ctx context.Context, caller models.Caller, id uuid.UUID, update models.StatusUpdate) (*models.Task, error) {
	m.lastStatus = update
	return m.task, m.err
}

func (m *mockTaskService) Update(ctx context.Context, caller models.Caller, id uuid.UUID, input models.TaskUpdate) (*models.Task, error) {
	m.lastUpdate = input
	return m.task, m.err
}

func (m *mockTaskService) Delete(ctx context.Context, caller models.Caller, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return m.err
}

func (m *mockTaskService) Stats(ctx context.Context, caller models.Caller) (*models.TaskStats, error) {
	return m.stats, m.err
}

// ============================================================================
// Audit
// ============================================================================

type mockAuditService struct {
	list        *models.ListResult[*models.AuditLogEntry]
	stats       *models.AuditStats
	cleanup     *models.CleanupResult
	err         error
	recorded    []models.AuditLogEntry
	lastFilter  models.AuditFilter
	lastPage    models.Page
	lastActor   *models.Caller
	lastCleanup int
}

func (m *mockAuditService) Record(ctx context.Context, entry models.AuditLogEntry) {
	m.recorded = append(m.recorded, entry)
}

func (m *mockAuditService) Flush(ctx context.Context) error { return nil }

func (m *mockAuditService) List(ctx context.Context, filter models.AuditFilter, page models.Page) (*models.ListResult[*models.AuditLogEntry], error) {
	m.lastFilter = filter
	m.lastPage = page
	return m.list, m.err
}

func (m *mockAuditService) Stats(ctx context.Context, filter models.AuditFilter) (*models.AuditStats, error) {
	m.lastFilter = filter
	return m.stats, m.err
}

func (m *mockAuditService) Cleanup(ctx context.Context, actor *models.Caller, retentionDays int) (*models.CleanupResult, error) {
	m.lastActor = actor
	m.lastCleanup = retentionDays
	return m.cleanup, m.err
}

// ============================================================================
// Search screening
// ============================================================================

type mockScreener struct {
	err      error
	screened []string
}

func (m *mockScreener) ScreenSearch(ctx context.Context, field, value string) error {
	m.screened = append(m.screened, value)
	return m.err
}
