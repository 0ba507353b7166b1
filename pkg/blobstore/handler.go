package blobstore

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Handler serves objects from a LocalStore to holders of a valid signed URL.
type Handler struct {
	store  *LocalStore
	logger *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(store *LocalStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger.Named("files-handler")}
}

// RegisterRoutes registers the signed file route.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+FilesRoute+"{key...}", h.ServeFile)
}

// ServeFile streams the object named by the path after verifying its signature.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		key = strings.TrimPrefix(r.URL.Path, FilesRoute)
	}

	q := r.URL.Query()
	if err := h.store.Verify(key, q.Get("expires"), q.Get("signature")); err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	body, contentType, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("Failed to open object", zap.String("key", key), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Debug("Client went away while streaming object", zap.String("key", key), zap.Error(err))
	}
}
