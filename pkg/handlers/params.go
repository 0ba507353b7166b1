package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

// Default page sizes per listing.
const (
	DefaultPageLimit          = 20
	DefaultEquipmentPageLimit = 50
	DefaultAuditPageLimit     = 50
)

// maxJSONBody bounds JSON request bodies. Uploads use their own limit.
const maxJSONBody = 1 << 20

// ParseID extracts and validates the {id} path parameter.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
func ParseID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_id", "Invalid ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Validation("Invalid request body")
	}
	return nil
}

// query reads typed query parameters and collects the first parse failure.
type query struct {
	values url.Values
	err    error
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) fail(format string, args ...any) {
	if q.err == nil {
		q.err = apperrors.Validation(format, args...)
	}
}

func (q *query) str(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

func (q *query) optString(name string) *string {
	if v := q.str(name); v != "" {
		return &v
	}
	return nil
}

func (q *query) optUUID(name string) *uuid.UUID {
	v := q.str(name)
	if v == "" {
		return nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		q.fail("%s must be a valid UUID", name)
		return nil
	}
	return &id
}

func (q *query) optBool(name string) *bool {
	v := q.str(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail("%s must be true or false", name)
		return nil
	}
	return &b
}

// optTime accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func (q *query) optTime(name string) *time.Time {
	v := q.str(name)
	if v == "" {
		return nil
	}
	t, err := parseTime(v)
	if err != nil {
		q.fail("%s must be a valid ISO 8601 date", name)
		return nil
	}
	return &t
}

// intIn returns the named integer, def when absent, and fails outside [lo, hi].
func (q *query) intIn(name string, def, lo, hi int) int {
	v := q.str(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		q.fail("%s must be between %d and %d", name, lo, hi)
		return def
	}
	return n
}

func (q *query) page(defaultLimit int) models.Page {
	return models.Page{
		Number: q.intIn("page", 1, 1, 1<<31-1),
		Limit:  q.intIn("limit", defaultLimit, 1, models.MaxPageLimit),
	}
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return t, nil
}
