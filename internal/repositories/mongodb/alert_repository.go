package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusguard/internal/models"
	"campusguard/internal/repositories/interfaces"
	"campusguard/internal/utils"
	"campusguard/pkg/database"
)

type alertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(db *mongo.Database) interfaces.AlertRepository {
	return &alertRepository{
		collection: db.Collection(database.CollectionAlerts),
	}
}

func (r *alertRepository) Upsert(ctx context.Context, alert *models.Alert) error {
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": alert.ID},
		alert,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	return nil
}

func (r *alertRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	var alert models.Alert
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&alert)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

func (r *alertRepository) List(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	if params == nil {
		params = utils.DefaultPagination()
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	alerts, err := r.find(ctx, query, params.GetSortOptions())
	if err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

func (r *alertRepository) ListByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]*models.Alert, error) {
	query := bson.M{}
	if len(statuses) > 0 {
		query["status"] = bson.M{"$in": statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, query, opts)
}

func (r *alertRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*models.Alert, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []*models.Alert
	for cursor.Next(ctx) {
		var alert models.Alert
		if err := cursor.Decode(&alert); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}
