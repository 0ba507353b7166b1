package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/plantvision/inspection-api/pkg/database"
	"github.com/plantvision/inspection-api/pkg/models"
)

// listPage runs a listing's page and count queries in one read-only snapshot so the
// total always describes the rows returned.
func listPage[T any](
	ctx context.Context,
	tx database.Transactor,
	page models.Page,
	list func(ctx context.Context) ([]T, error),
	count func(ctx context.Context) (int, error),
) (*models.ListResult[T], error) {
	var (
		items []T
		total int
	)
	err := tx.WithSnapshot(ctx, func(ctx context.Context) error {
		var err error
		if items, err = list(ctx); err != nil {
			return err
		}
		total, err = count(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if items == nil {
		items = []T{}
	}
	return &models.ListResult[T]{
		Items:      items,
		Pagination: models.NewPagination(page, total),
	}, nil
}

// resourceID formats an id for the audit trail's text resource_id column.
func resourceID(id uuid.UUID) *string {
	s := id.String()
	return &s
}

// callerID returns a pointer to the caller's id for audit entries.
func callerID(caller models.Caller) *uuid.UUID {
	id := caller.ID
	return &id
}
