package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusguard/internal/models"
	"campusguard/internal/repositories/interfaces"
	"campusguard/pkg/database"
)

type guardianRepository struct {
	collection *mongo.Collection
}

func NewGuardianRepository(db *mongo.Database) interfaces.GuardianRepository {
	return &guardianRepository{
		collection: db.Collection(database.CollectionGuardians),
	}
}

func (r *guardianRepository) Upsert(ctx context.Context, guardian *models.Guardian) error {
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": guardian.ID},
		guardian,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert guardian: %w", err)
	}
	return nil
}

func (r *guardianRepository) List(ctx context.Context) ([]*models.Guardian, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to find guardians: %w", err)
	}
	defer cursor.Close(ctx)

	var guardians []*models.Guardian
	if err := cursor.All(ctx, &guardians); err != nil {
		return nil, fmt.Errorf("failed to decode guardians: %w", err)
	}
	return guardians, nil
}
