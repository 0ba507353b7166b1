package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/models"
)

var auditTestNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func setupAuditTest() (*AuditHandler, *mockAuditService) {
	svc := &mockAuditService{}
	h := NewAuditHandler(svc, zap.NewNop())
	h.now = func() time.Time { return auditTestNow }
	return h, svc
}

func TestAuditHandler_Logs_Filters(t *testing.T) {
	h, svc := setupAuditTest()
	svc.list = &models.ListResult[*models.AuditLogEntry]{Items: []*models.AuditLogEntry{}}
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/audit/logs?userId="+userID.String()+"&action=login_failed&resourceType=AUTH&startDate=2024-06-01", nil)
	rr := httptest.NewRecorder()

	h.Logs(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, &userID, svc.lastFilter.UserID)
	assert.Equal(t, models.AuditActionLoginFailed, *svc.lastFilter.Action)
	assert.Equal(t, models.AuditResourceAuth, *svc.lastFilter.ResourceType)
	assert.Equal(t, DefaultAuditPageLimit, svc.lastPage.Limit)
}

func TestAuditHandler_Logs_UnknownAction(t *testing.T) {
	h, svc := setupAuditTest()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?action=EXPLODE", nil)
	rr := httptest.NewRecorder()

	h.Logs(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid audit action", decodeEnvelope(t, rr).Message)
	assert.Zero(t, svc.lastPage)
}

func TestAuditHandler_Stats(t *testing.T) {
	h, svc := setupAuditTest()
	svc.stats = &models.AuditStats{
		ActionCounts: map[models.AuditAction]int{models.AuditActionView: 3, models.AuditActionCreate: 1},
		TotalActions: 4,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats?days=7", nil)
	rr := httptest.NewRecorder()

	h.Stats(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, svc.lastFilter.StartDate)
	assert.Equal(t, auditTestNow.AddDate(0, 0, -7), *svc.lastFilter.StartDate)

	var resp struct {
		ActionCounts map[string]int   `json:"actionCounts"`
		TotalActions int              `json:"totalActions"`
		Period       AuditStatsPeriod `json:"period"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &resp))
	assert.Equal(t, 4, resp.TotalActions)
	assert.Equal(t, 3, resp.ActionCounts["VIEW"])
	assert.Equal(t, 7, resp.Period.Days)
	assert.True(t, resp.Period.EndDate.Equal(auditTestNow))
}

func TestAuditHandler_Stats_DaysOutOfRange(t *testing.T) {
	for _, days := range []string{"0", "366", "week"} {
		t.Run(days, func(t *testing.T) {
			h, _ := setupAuditTest()
			rr := httptest.NewRecorder()

			h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/stats?days="+days, nil))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "days must be between 1 and 365", decodeEnvelope(t, rr).Message)
		})
	}
}

func TestAuditHandler_UserTrail(t *testing.T) {
	h, svc := setupAuditTest()
	svc.list = &models.ListResult[*models.AuditLogEntry]{Items: []*models.AuditLogEntry{}}
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/user/"+userID.String(), nil)
	req.SetPathValue("userId", userID.String())
	rr := httptest.NewRecorder()

	h.UserTrail(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, &userID, svc.lastFilter.UserID)
	assert.Equal(t, auditTestNow.AddDate(0, 0, -DefaultUserAuditTrailDays), *svc.lastFilter.StartDate)
}

func TestAuditHandler_ResourceTrail(t *testing.T) {
	t.Run("known type", func(t *testing.T) {
		h, svc := setupAuditTest()
		svc.list = &models.ListResult[*models.AuditLogEntry]{Items: []*models.AuditLogEntry{}}
		taskID := uuid.New().String()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/resource/task/"+taskID, nil)
		req.SetPathValue("resourceType", "task")
		req.SetPathValue("resourceId", taskID)
		rr := httptest.NewRecorder()

		h.ResourceTrail(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, models.AuditResourceTask, *svc.lastFilter.ResourceType)
		assert.Equal(t, taskID, *svc.lastFilter.ResourceID)
	})

	t.Run("unknown type", func(t *testing.T) {
		h, _ := setupAuditTest()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/resource/reactor/1", nil)
		req.SetPathValue("resourceType", "reactor")
		req.SetPathValue("resourceId", "1")
		rr := httptest.NewRecorder()

		h.ResourceTrail(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuditHandler_Cleanup(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
		days   int
	}{
		{"default retention", "", http.StatusOK, DefaultCleanupRetention},
		{"minimum", "?retentionDays=30", http.StatusOK, 30},
		{"below minimum", "?retentionDays=29", http.StatusBadRequest, 0},
		{"above maximum", "?retentionDays=3651", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := setupAuditTest()
			svc.cleanup = &models.CleanupResult{DeletedCount: 12, RetentionDays: tt.days}

			req := asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/audit/cleanup"+tt.query, nil), testAdmin)
			rr := httptest.NewRecorder()

			h.Cleanup(rr, req)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.days, svc.lastCleanup)
			if tt.status == http.StatusOK {
				require.NotNil(t, svc.lastActor)
				assert.Equal(t, testAdmin.ID, svc.lastActor.ID)
				assert.Contains(t, string(decodeEnvelope(t, rr).Data), `"deletedCount":12`)
			}
		})
	}
}

func TestAuditHandler_Catalogs(t *testing.T) {
	h, _ := setupAuditTest()

	rr := httptest.NewRecorder()
	h.Actions(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/actions", nil))
	var actions []string
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &actions))
	assert.Len(t, actions, len(models.AuditActions))
	assert.Contains(t, actions, "UNAUTHORIZED_ACCESS")

	rr = httptest.NewRecorder()
	h.ResourceTypes(rr, httptest.NewRequest(http.MethodGet, "/api/v1/audit/resource-types", nil))
	var types []string
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &types))
	assert.Contains(t, types, "audit_logs")
}
