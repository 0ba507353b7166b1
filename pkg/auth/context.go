package auth

import (
	"context"

	"github.com/plantvision/inspection-api/pkg/apperrors"
	"github.com/plantvision/inspection-api/pkg/models"
)

// RequireCaller extracts the caller from context and returns an error if missing.
// Use this in handlers mounted behind RequireAuth.
func RequireCaller(ctx context.Context) (models.Caller, error) {
	caller, ok := GetCaller(ctx)
	if !ok {
		return models.Caller{}, apperrors.ErrUnauthorized
	}
	return caller, nil
}
