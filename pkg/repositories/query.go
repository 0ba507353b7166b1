package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
	"github.com/plantvision/inspection-api/pkg/scope"
)

// pageClause appends LIMIT/OFFSET placeholders after the predicate's arguments.
func pageClause(args []any, page models.Page) (string, []any) {
	n := len(args)
	clause := fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	return clause, append(args, page.Limit, page.Offset())
}

// countWhere runs SELECT COUNT(*) over from, filtered by pred. from must use the
// same table aliases as the page query so both render the same predicate.
func countWhere(ctx context.Context, q database.Querier, from string, pred scope.Predicate) (int, error) {
	where, args := pred.SQL(1)
	var count int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) "+from+" WHERE "+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// notFound maps pgx.ErrNoRows to a caller-facing not-found error and wraps
// anything else.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("%s not found", what)
	}
	return fmt.Errorf("failed to get %s: %w", strings.ToLower(what), err)
}

func marshalJSONB(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSONB(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// rawJSON substitutes an empty object for a nil document so NOT NULL JSONB columns
// always receive a value.
func rawJSON(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("{}")
	}
	return v
}
