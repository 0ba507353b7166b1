package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/auth"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/services"
)

// multipartMemory is the part of an upload form held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// PhotosHandler handles photo upload and review.
type PhotosHandler struct {
	photoService   services.PhotoService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewPhotosHandler creates a new photos handler. maxUploadBytes bounds the photo
// file; the request body may exceed it by the size of the form fields.
func NewPhotosHandler(photoService services.PhotoService, maxUploadBytes int64, logger *zap.Logger) *PhotosHandler {
	return &PhotosHandler{
		photoService:   photoService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the photos handler's routes on the given mux.
func (h *PhotosHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/v1/photos"
	supervisor := authMiddleware.Authorize(models.RoleManager, models.RoleAdmin)

	mux.HandleFunc("POST "+base+"/upload", authMiddleware.RequireAuth(h.Upload))
	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}/approve", supervisor(h.Approve))
	mux.HandleFunc("PUT "+base+"/{id}/reject", supervisor(h.Reject))
	mux.HandleFunc("DELETE "+base+"/{id}", supervisor(h.Delete))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Upload handles POST /api/v1/photos/upload
func (h *PhotosHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "upload photo")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, "file_too_large", "Photo exceeds the maximum upload size")
			return
		}
		WriteServiceError(w, h.logger, apperrors.Validation("Invalid multipart form"), "upload photo")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Failed to remove multipart temp files", zap.Error(err))
		}
	}()

	upload, err := h.parseUpload(r)
	if err != nil {
		WriteServiceError(w, h.logger, err, "upload photo")
		return
	}
	if int64(len(upload.Data)) > h.maxUploadBytes {
		writeError(w, h.logger, http.StatusRequestEntityTooLarge, "file_too_large", "Photo exceeds the maximum upload size")
		return
	}

	photo, err := h.photoService.Upload(r.Context(), caller, upload)
	if err != nil {
		WriteServiceError(w, h.logger, err, "upload photo")
		return
	}
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: photo, Message: "Photo uploaded successfully"}); err != nil {
		h.logger.Error("Failed to write upload response", zap.Error(err))
	}
}

func (h *PhotosHandler) parseUpload(r *http.Request) (models.PhotoUpload, error) {
	var upload models.PhotoUpload

	file, header, err := r.FormFile("photo")
	if err != nil {
		return upload, apperrors.Validation("Photo file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return upload, apperrors.Validation("Failed to read photo file")
	}
	upload.Data = data
	upload.OriginalFilename = header.Filename
	upload.MimeType = header.Header.Get("Content-Type")

	equipmentID, err := uuid.Parse(strings.TrimSpace(r.FormValue("equipmentId")))
	if err != nil {
		return upload, apperrors.Validation("equipmentId must be a valid UUID")
	}
	upload.EquipmentID = equipmentID

	if upload.Latitude, err = formFloat(r, "latitude"); err != nil {
		return upload, err
	}
	if upload.Longitude, err = formFloat(r, "longitude"); err != nil {
		return upload, err
	}
	if v := strings.TrimSpace(r.FormValue("gpsAccuracy")); v != "" {
		accuracy, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return upload, apperrors.Validation("gpsAccuracy must be a number")
		}
		upload.GPSAccuracy = &accuracy
	}
	if v := strings.TrimSpace(r.FormValue("capturedAt")); v != "" {
		capturedAt, err := parseTime(v)
		if err != nil {
			return upload, apperrors.Validation("capturedAt must be a valid ISO 8601 date")
		}
		upload.CapturedAt = &capturedAt
	}
	upload.DeviceInfo = formString(r, "deviceInfo")
	upload.Notes = formString(r, "notes")
	return upload, nil
}

func formFloat(r *http.Request, name string) (float64, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return 0, apperrors.Validation("%s is required", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, apperrors.Validation("%s must be a number", name)
	}
	return f, nil
}

func formString(r *http.Request, name string) *string {
	if v := strings.TrimSpace(r.FormValue(name)); v != "" {
		return &v
	}
	return nil
}

// List handles GET /api/v1/photos
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "list photos")
		return
	}

	q := newQuery(r)
	filter := models.PhotoFilter{
		PlantID:     q.optUUID("plantId"),
		PlantArea:   q.optString("plantArea"),
		EquipmentID: q.optUUID("equipmentId"),
		UserID:      q.optUUID("userId"),
		StartDate:   q.optTime("startDate"),
		EndDate:     q.optTime("endDate"),
	}
	if status := q.optString("status"); status != nil {
		s := models.PhotoStatus(*status)
		filter.Status = &s
	}
	page := q.page(DefaultPageLimit)
	if q.err != nil {
		WriteServiceError(w, h.logger, q.err, "list photos")
		return
	}

	result, err := h.photoService.List(r.Context(), caller, filter, page)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list photos")
		return
	}
	writeData(w, h.logger, http.StatusOK, result)
}

// Get handles GET /api/v1/photos/{id}
func (h *PhotosHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "get photo")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	photo, err := h.photoService.Get(r.Context(), caller, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get photo")
		return
	}
	writeData(w, h.logger, http.StatusOK, photo)
}

// Approve handles PUT /api/v1/photos/{id}/approve
func (h *PhotosHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "approve photo")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	photo, err := h.photoService.Approve(r.Context(), caller, id)
	if err != nil {
		WriteServiceError(w, h.logger, err, "approve photo")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: photo, Message: "Photo approved"}); err != nil {
		h.logger.Error("Failed to write approve response", zap.Error(err))
	}
}

// Reject handles PUT /api/v1/photos/{id}/reject
func (h *PhotosHandler) Reject(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "reject photo")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteServiceError(w, h.logger, err, "reject photo")
		return
	}

	photo, err := h.photoService.Reject(r.Context(), caller, id, req.Reason)
	if err != nil {
		WriteServiceError(w, h.logger, err, "reject photo")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: photo, Message: "Photo rejected"}); err != nil {
		h.logger.Error("Failed to write reject response", zap.Error(err))
	}
}

// Delete handles DELETE /api/v1/photos/{id}
func (h *PhotosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "delete photo")
		return
	}
	id, ok := ParseID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.photoService.Delete(r.Context(), caller, id); err != nil {
		WriteServiceError(w, h.logger, err, "delete photo")
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Photo deleted successfully"}); err != nil {
		h.logger.Error("Failed to write delete response", zap.Error(err))
	}
}
