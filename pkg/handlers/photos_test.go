package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

const testMaxUpload = 1024

func setupPhotosTest() (*PhotosHandler, *mockPhotoService) {
	svc := &mockPhotoService{}
	return NewPhotosHandler(svc, testMaxUpload, zap.NewNop()), svc
}

// newUploadRequest builds a multipart upload. A nil file omits the photo part.
func newUploadRequest(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		part, err := mw.CreateFormFile("photo", "boiler.jpg")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return asCaller(req, testWorker)
}

func TestPhotosHandler_Upload(t *testing.T) {
	h, svc := setupPhotosTest()
	equipmentID := uuid.New()
	svc.photo = &models.Photo{ID: uuid.New(), EquipmentID: equipmentID, Status: models.PhotoStatusPending}

	req := newUploadRequest(t, map[string]string{
		"equipmentId": equipmentID.String(),
		"latitude":    "24.0950",
		"longitude":   "82.6740",
		"gpsAccuracy": "4.5",
		"capturedAt":  "2024-03-01T08:30:00Z",
		"deviceInfo":  "Pixel 8",
		"notes":       "  corrosion on flange  ",
	}, []byte("\xff\xd8\xff\xe0fake-jpeg"))
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	up := svc.lastUpload
	assert.Equal(t, equipmentID, up.EquipmentID)
	assert.Equal(t, "boiler.jpg", up.OriginalFilename)
	assert.Equal(t, []byte("\xff\xd8\xff\xe0fake-jpeg"), up.Data)
	assert.InDelta(t, 24.095, up.Latitude, 1e-9)
	assert.InDelta(t, 82.674, up.Longitude, 1e-9)
	require.NotNil(t, up.GPSAccuracy)
	assert.InDelta(t, 4.5, *up.GPSAccuracy, 1e-9)
	require.NotNil(t, up.CapturedAt)
	assert.True(t, up.CapturedAt.Equal(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)))
	assert.Equal(t, "Pixel 8", *up.DeviceInfo)
	assert.Equal(t, "corrosion on flange", *up.Notes)

	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)
	assert.Equal(t, "Photo uploaded successfully", env.Message)
}

func TestPhotosHandler_Upload_Rejects(t *testing.T) {
	equipmentID := uuid.New().String()
	valid := map[string]string{"equipmentId": equipmentID, "latitude": "1", "longitude": "2"}
	without := func(key string) map[string]string {
		m := map[string]string{}
		for k, v := range valid {
			if k != key {
				m[k] = v
			}
		}
		return m
	}

	tests := []struct {
		name    string
		fields  map[string]string
		file    []byte
		status  int
		message string
	}{
		{"missing file", valid, nil, http.StatusBadRequest, "Photo file is required"},
		{"missing equipment", without("equipmentId"), []byte("x"), http.StatusBadRequest, "equipmentId must be a valid UUID"},
		{"missing latitude", without("latitude"), []byte("x"), http.StatusBadRequest, "latitude is required"},
		{"bad longitude", map[string]string{"equipmentId": equipmentID, "latitude": "1", "longitude": "east"}, []byte("x"), http.StatusBadRequest, "longitude must be a number"},
		{"file too large", valid, bytes.Repeat([]byte("a"), testMaxUpload+1), http.StatusRequestEntityTooLarge, "Photo exceeds the maximum upload size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := setupPhotosTest()
			rr := httptest.NewRecorder()

			h.Upload(rr, newUploadRequest(t, tt.fields, tt.file))

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.message, decodeEnvelope(t, rr).Message)
			assert.Nil(t, svc.lastUpload.Data, "service must not be called")
		})
	}
}

func TestPhotosHandler_Upload_NotMultipart(t *testing.T) {
	h, _ := setupPhotosTest()
	req := asCaller(httptest.NewRequest(http.MethodPost, "/api/v1/photos/upload", strings.NewReader(`{}`)), testWorker)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPhotosHandler_List_Filters(t *testing.T) {
	h, svc := setupPhotosTest()
	svc.list = &models.ListResult[*models.Photo]{Items: []*models.Photo{}}
	userID := uuid.New()

	req := asCaller(httptest.NewRequest(http.MethodGet,
		"/api/v1/photos?status=pending&userId="+userID.String()+"&startDate=2024-01-01&endDate=2024-01-31", nil), testManager)
	rr := httptest.NewRecorder()

	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.PhotoStatusPending, *svc.lastFilter.Status)
	assert.Equal(t, &userID, svc.lastFilter.UserID)
	require.NotNil(t, svc.lastFilter.StartDate)
	assert.Equal(t, 2024, svc.lastFilter.StartDate.Year())
	require.NotNil(t, svc.lastFilter.EndDate)
}

func TestPhotosHandler_List_BadDate(t *testing.T) {
	h, _ := setupPhotosTest()

	req := asCaller(httptest.NewRequest(http.MethodGet, "/api/v1/photos?startDate=yesterday", nil), testManager)
	rr := httptest.NewRecorder()

	h.List(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "startDate must be a valid ISO 8601 date", decodeEnvelope(t, rr).Message)
}

func TestPhotosHandler_Review(t *testing.T) {
	t.Run("reject passes reason", func(t *testing.T) {
		h, svc := setupPhotosTest()
		id := uuid.New()
		svc.photo = &models.Photo{ID: id, Status: models.PhotoStatusRejected}

		req := asCaller(httptest.NewRequest(http.MethodPut, "/api/v1/photos/"+id.String()+"/reject",
			strings.NewReader(`{"reason":"Blurry"}`)), testManager)
		req.SetPathValue("id", id.String())
		rr := httptest.NewRecorder()

		h.Reject(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Blurry", svc.lastReason)
		assert.Equal(t, "Photo rejected", decodeEnvelope(t, rr).Message)
	})

	t.Run("approve out of area", func(t *testing.T) {
		h, svc := setupPhotosTest()
		svc.err = apperrors.NotFound("Photo not found")
		id := uuid.New()

		req := asCaller(httptest.NewRequest(http.MethodPut, "/api/v1/photos/"+id.String()+"/approve", nil), testManager)
		req.SetPathValue("id", id.String())
		rr := httptest.NewRecorder()

		h.Approve(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("delete", func(t *testing.T) {
		h, svc := setupPhotosTest()
		id := uuid.New()

		req := asCaller(httptest.NewRequest(http.MethodDelete, "/api/v1/photos/"+id.String(), nil), testManager)
		req.SetPathValue("id", id.String())
		rr := httptest.NewRecorder()

		h.Delete(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []uuid.UUID{id}, svc.deleted)
		assert.Equal(t, "Photo deleted successfully", decodeEnvelope(t, rr).Message)
	})
}
