package interfaces

import (
	"context"

	"campusguard/internal/models"
)

type GuardianRepository interface {
	Upsert(ctx context.Context, guardian *models.Guardian) error
	List(ctx context.Context) ([]*models.Guardian, error)
}
