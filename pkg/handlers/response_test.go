package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

func TestWriteJSON_DefaultStatusOmitsWriteHeader(t *testing.T) {
	rr := httptest.NewRecorder()

	require.NoError(t, WriteJSON(rr, http.StatusOK, map[string]string{"status": "ok"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestWriteData_WrapsInEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()

	writeData(rr, zap.NewNop(), http.StatusCreated, map[string]int{"count": 3})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":{"count":3}}`, rr.Body.String())
}

func TestErrorResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	require.NoError(t, ErrorResponse(rr, http.StatusBadRequest, "invalid_id", "Invalid ID format"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"invalid_id","message":"Invalid ID format"}`, rr.Body.String())
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation message", apperrors.Validation("Title is required"), http.StatusBadRequest, "validation_error", "Title is required"},
		{"bare validation", apperrors.ErrValidation, http.StatusBadRequest, "validation_error", "Validation failed"},
		{"invalid credentials", apperrors.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"},
		{"inactive user", apperrors.ErrInactiveUser, http.StatusUnauthorized, "unauthorized", "Account is inactive"},
		{"unauthorized", apperrors.Unauthorized("Invalid or expired refresh token"), http.StatusUnauthorized, "unauthorized", "Invalid or expired refresh token"},
		{"forbidden", apperrors.Forbidden("Access denied to this equipment"), http.StatusForbidden, "forbidden", "Access denied to this equipment"},
		{"not found", apperrors.NotFound("Task not found"), http.StatusNotFound, "not_found", "Task not found"},
		{"wrapped not found", fmt.Errorf("get task: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found", "Resource not found"},
		{"immutable", apperrors.ErrTaskImmutable, http.StatusConflict, "task_immutable", "Completed tasks cannot be modified"},
		{
			"invalid transition",
			&models.InvalidTransitionError{From: models.TaskStatusPending, To: models.TaskStatusCompleted},
			http.StatusConflict, "invalid_transition", "invalid status transition from pending to completed",
		},
		{"conflict", apperrors.Conflict("Username already exists"), http.StatusConflict, "conflict", "Username already exists"},
		{"internal", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal_error", "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			WriteServiceError(rr, zap.NewNop(), tt.err, "test")

			assert.Equal(t, tt.status, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestWriteServiceError_RedactsLoggedSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rr := httptest.NewRecorder()
	err := fmt.Errorf("query photos: %w", errors.New("dial postgres://plantvision:s3cret@db:5432/plantvision: connection refused"))

	WriteServiceError(rr, zap.New(core), err, "list_photos")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "postgres://")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "list_photos", fields["operation"])
	assert.NotContains(t, fields["error"], "s3cret")
	assert.Contains(t, fields["error"], "plantvision:[REDACTED]@db")
}
