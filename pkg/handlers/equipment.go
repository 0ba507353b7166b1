package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// EquipmentHandler handles equipment lookups. Every route requires authentication.
type EquipmentHandler struct {
	equipmentService services.EquipmentService
	screener         SearchScreener
	logger           *zap.Logger
}

// NewEquipmentHandler creates a new equipment handler.
func NewEquipmentHandler(equipmentService services.EquipmentService, screener SearchScreener, logger *zap.Logger) *EquipmentHandler {
	return &EquipmentHandler{
		equipmentService: equipmentService,
		screener:         screener,
		logger:           logger,
	}
}

// RegisterRoutes registers the equipment handler's routes on the given mux.
func (h *EquipmentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/v1/equipment"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET "+base+"/types", authMiddleware.RequireAuth(h.Types))
	mux.HandleFunc("GET "+base+"/qr/{qrCode}", authMiddleware.RequireAuth(h.GetByQRCode))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(h.Get))
	// A literal /{id}/photos would overlap /qr/{qrCode} without either being more specific.
	mux.HandleFunc("GET "+base+"/{id}/{relation}", authMiddleware.RequireAuth(h.Related))
}

// Related dispatches GET /api/v1/equipment/{id}/photos and /{id}/tasks.
func (h *EquipmentHandler) Related(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("relation") {
	case "photos":
		h.Photos(w, r)
	case "tasks":
		h.Tasks(w, r)
	default:
		http.NotFound(w, r)
	}
}

// List handles GET /api/v1/equipment
func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment")
		return
	}

	q := newQuery(r)
	filter := models.EquipmentFilter{
		PlantID:       q.optUUID("plantId"),
		PlantArea:     q.optString("plantArea"),
		EquipmentType: q.optString("equipmentType"),
		Search:        q.str("search"),
	}
	if status := q.optString("status"); status != nil {
		s := models.EquipmentStatus(*status)
		filter.Status = &s
	}
	page := q.page(DefaultEquipmentPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list equipment")
		return
	}
	if err := h.screener.ScreenSearch(r.Context(), "search", filter.Search); err != nil {
		WriteServiceError(w, h.logger, err, "list equipment")
		return
	}

	result, err := h.equipmentService.List(r.Context(), caller, filter, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Get handles GET /api/v1/equipment/{id}
func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "get equipment")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	equipment, err := h.equipmentService.Get(r.Context(), caller, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get equipment")
		return
	}
	writeData(w, h.logger, http.StatusOK, equipment)
}

// GetByQRCode handles GET /api/v1/equipment/qr/{qrCode}
func (h *EquipmentHandler) GetByQRCode(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "scan equipment")
		return
	}
	code := strings.TrimSpace(r.PathValue("qrCode"))
	if code == "" {
		WriteServiceError(w, h.logger, apperrors.Validation("QR code is required"), "scan equipment")
		return
	}

	equipment, err := h.equipmentService.GetByQRCode(r.Context(), caller, code)
	if err != nil {
		WriteServiceError(w, h.logger, err, "scan equipment")
		return
	}
	writeData(w, h.logger, http.StatusOK, equipment)
}

// Types handles GET /api/v1/equipment/types
func (h *EquipmentHandler) Types(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment types")
		return
	}

	types, err := h.equipmentService.Types(r.Context(), caller)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment types")
		return
	}
	writeData(w, h.logger, http.StatusOK, types)
}

// Photos handles GET /api/v1/equipment/{id}/photos
func (h *EquipmentHandler) Photos(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment photos")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	q := newQuery(r)
	page := q.page(DefaultPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list equipment photos")
		return
	}

	result, err := h.equipmentService.Photos(r.Context(), caller, id, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment photos")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Tasks handles GET /api/v1/equipment/{id}/tasks
func (h *EquipmentHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment tasks")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}
	q := newQuery(r)
	page := q.page(DefaultPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list equipment tasks")
		return
	}

	result, err := h.equipmentService.Tasks(r.Context(), caller, id, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list equipment tasks")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}
