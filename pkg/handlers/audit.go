package handlers

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// Audit query windows, in days.
const (
	DefaultAuditStatsDays     = 30
	MaxAuditStatsDays         = 365
	DefaultCleanupRetention   = 365
	MinCleanupRetentionDays   = 30
	MaxCleanupRetentionDays   = 3650
	DefaultUserAuditTrailDays = 30
)

// AuditHandler exposes the audit trail to managers and admins.
type AuditHandler struct {
	auditService services.AuditService
	logger       *zap.Logger
	now          func() time.Time
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(auditService services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
		now:          time.Now,
	}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/v1/audit"
	supervisor := authMiddleware.Authorize(models.RoleManager, models.RoleAdmin)

	mux.HandleFunc("GET "+base+"/logs", supervisor(h.Logs))
	mux.HandleFunc("GET "+base+"/stats", supervisor(h.Stats))
	mux.HandleFunc("GET "+base+"/user/{userId}", supervisor(h.UserTrail))
	mux.HandleFunc("GET "+base+"/resource/{resourceType}/{resourceId}", supervisor(h.ResourceTrail))
	mux.HandleFunc("POST "+base+"/cleanup", authMiddleware.Authorize(models.RoleAdmin)(h.Cleanup))
	mux.HandleFunc("GET "+base+"/actions", supervisor(h.Actions))
	mux.HandleFunc("GET "+base+"/resource-types", supervisor(h.ResourceTypes))
}

// AuditStatsPeriod is the window an audit stats response covers.
type AuditStatsPeriod struct {
	Days      int       `json:"days"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// AuditStatsResponse is returned by GET /api/v1/audit/stats.
type AuditStatsResponse struct {
	*models.AuditStats
	Period AuditStatsPeriod `json:"period"`
}

// Logs handles GET /api/v1/audit/logs
func (h *AuditHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := models.AuditFilter{
		UserID:     q.optUUID("userId"),
		ResourceID: q.optString("resourceId"),
		StartDate:  q.optTime("startDate"),
		EndDate:    q.optTime("endDate"),
	}
	page := q.page(DefaultAuditPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list audit logs")
		return
	}
	if err := parseAuditKinds(q, &filter); err != nil {
		WriteServiceError(w, h.logger, err, "list audit logs")
		return
	}

	result, err := h.auditService.List(r.Context(), filter, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list audit logs")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// parseAuditKinds reads the action and resourceType query parameters.
func parseAuditKinds(q *query, filter *models.AuditFilter) error {
	if v := q.optString("action"); v != nil {
		action := models.AuditAction(strings.ToUpper(*v))
		if !slices.Contains(models.AuditActions, action) {
			return apperrors.Validation("Invalid audit action")
		}
		filter.Action = &action
	}
	if v := q.optString("resourceType"); v != nil {
		resourceType := models.AuditResourceType(strings.ToLower(*v))
		if !slices.Contains(models.AuditResourceTypes, resourceType) {
			return apperrors.Validation("Invalid resource type")
		}
		filter.ResourceType = &resourceType
	}
	return nil
}

// Stats handles GET /api/v1/audit/stats
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	days := q.intIn("days", DefaultAuditStatsDays, 1, MaxAuditStatsDays)
	userID := q.optUUID("userId")
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "audit stats")
		return
	}

	end := h.now().UTC()
	start := end.AddDate(0, 0, -days)
	stats, err := h.auditService.Stats(r.Context(), models.AuditFilter{UserID: userID, StartDate: &start})
	if err != nil {
		WriteServiceError(w, h.logger, err, "audit stats")
		return
	}

	writeData(w, h.logger, http.StatusOK, AuditStatsResponse{
		AuditStats: stats,
		Period:     AuditStatsPeriod{Days: days, StartDate: start, EndDate: end},
	})
}

// UserTrail handles GET /api/v1/audit/user/{userId}
func (h *AuditHandler) UserTrail(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUID(w, r, "userId", "invalid_id", "Invalid user ID format", h.logger)
	if !ok {
		return
	}

	q := newQuery(r)
	days := q.intIn("days", DefaultUserAuditTrailDays, 1, MaxAuditStatsDays)
	page := q.page(DefaultAuditPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "user audit trail")
		return
	}

	start := h.now().UTC().AddDate(0, 0, -days)
	result, err := h.auditService.List(r.Context(), models.AuditFilter{UserID: &userID, StartDate: &start}, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "user audit trail")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// ResourceTrail handles GET /api/v1/audit/resource/{resourceType}/{resourceId}
func (h *AuditHandler) ResourceTrail(w http.ResponseWriter, r *http.Request) {
	resourceType := models.AuditResourceType(strings.ToLower(r.PathValue("resourceType")))
	if !slices.Contains(models.AuditResourceTypes, resourceType) {
		WriteServiceError(w, h.logger, apperrors.Validation("Invalid resource type"), "resource audit trail")
		return
	}
	resourceID := strings.TrimSpace(r.PathValue("resourceId"))
	if resourceID == "" {
		WriteServiceError(w, h.logger, apperrors.Validation("Resource ID is required"), "resource audit trail")
		return
	}

	q := newQuery(r)
	page := q.page(DefaultAuditPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "resource audit trail")
		return
	}

	filter := models.AuditFilter{ResourceType: &resourceType, ResourceID: &resourceID}
	result, err := h.auditService.List(r.Context(), filter, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "resource audit trail")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Cleanup handles POST /api/v1/audit/cleanup
func (h *AuditHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "audit cleanup")
		return
	}

	q := newQuery(r)
	days := q.intIn("retentionDays", DefaultCleanupRetention, MinCleanupRetentionDays, MaxCleanupRetentionDays)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "audit cleanup")
		return
	}

	result, err := h.auditService.Cleanup(r.Context(), &caller, days)
	if err != nil {
		WriteServiceError(w, h.logger, err, "audit cleanup")
		return
	}

	h.logger.Info("Audit log cleanup completed",
		zap.String("user_id", caller.ID.String()),
		zap.Int64("deleted", result.DeletedCount),
		zap.Int("retention_days", days))
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result, Message: "Audit log cleanup completed"}); err != nil {
		h.logger.Error("Failed to write cleanup response", zap.Error(err))
	}
}

// Actions handles GET /api/v1/audit/actions
func (h *AuditHandler) Actions(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, models.AuditActions)
}

// ResourceTypes handles GET /api/v1/audit/resource-types
func (h *AuditHandler) ResourceTypes(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.logger, http.StatusOK, models.AuditResourceTypes)
}
