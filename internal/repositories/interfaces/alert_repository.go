package interfaces

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
)

var ErrNotFound = errors.New("record not found")

type AlertRepository interface {
	// Upsert stores the full alert snapshot, replacing any previous version.
	Upsert(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64, error)
	// ListByStatus returns every alert in one of the given statuses, oldest first.
	ListByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]*models.Alert, error)
}
