package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/logging"
)

// ApiResponse is the envelope for successful responses.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeData wraps data in a success envelope.
func writeData(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, code, message string) {
	if err := ErrorResponse(w, statusCode, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// WriteServiceError translates a service error into a response. Business-rule
// failures keep their message; anything else is logged with secrets redacted and
// collapsed to a generic 500.
func WriteServiceError(w http.ResponseWriter, logger *zap.Logger, err error, operation string) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("operation", operation),
			zap.String("error", logging.SanitizeError(err)))
	}
	writeError(w, logger, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "validation_error", apperrors.Message(err, "Validation failed")
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"
	case errors.Is(err, apperrors.ErrInactiveUser):
		return http.StatusUnauthorized, "unauthorized", "Account is inactive"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", apperrors.Message(err, "Authentication required")
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden", apperrors.Message(err, "Access denied")
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", apperrors.Message(err, "Resource not found")
	case errors.Is(err, apperrors.ErrTaskImmutable):
		return http.StatusConflict, "task_immutable", "Completed tasks cannot be modified"
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict", apperrors.Message(err, "Resource conflict")
	default:
		return http.StatusInternalServerError, "internal_error", "Internal server error"
	}
}
