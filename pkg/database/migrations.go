package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusguard/pkg/logger"
)

type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
	Down        func(context.Context, *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	logger     *logger.Logger

	up      func(context.Context) error
	mu      sync.Mutex
	applied bool
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	m := &Migrator{
		db:         db,
		migrations: getMigrations(),
		logger:     log.WithField("component", "migrator"),
	}
	m.up = m.Up
	return m
}

// UpOnce runs Up until it succeeds once; later calls are no-ops. It is safe
// to call from a retry loop while the database is still unreachable.
func (m *Migrator) UpOnce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied {
		return nil
	}
	if err := m.up(ctx); err != nil {
		return err
	}
	m.applied = true
	m.logger.Info("Migrations applied")
	return nil
}

func (m *Migrator) Up(ctx context.Context) error {
	// Create migrations collection if it doesn't exist
	err := m.createMigrationsCollection(ctx)
	if err != nil {
		return err
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}

		m.logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) Down(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version > currentVersion || migration.Version <= targetVersion {
			continue
		}

		m.logger.WithField("version", migration.Version).Infof("Reverting migration: %s", migration.Description)

		if err := migration.Down(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
		}

		previousVersion := targetVersion
		if i > 0 {
			previousVersion = m.migrations[i-1].Version
		}

		if err := m.updateVersion(ctx, previousVersion); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	collections, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}

	for _, name := range collections {
		if name == "migrations" {
			return nil
		}
	}

	return m.db.CreateCollection(ctx, "migrations")
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection("migrations").FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.db.Collection("migrations").ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create alerts collection with indexes",
			Up:          createAlertsIndexes,
			Down: func(ctx context.Context, db *mongo.Database) error {
				return db.Collection(CollectionAlerts).Drop(ctx)
			},
		},
		{
			Version:     2,
			Description: "Create guardians collection with indexes",
			Up:          createGuardiansIndexes,
			Down: func(ctx context.Context, db *mongo.Database) error {
				return db.Collection(CollectionGuardians).Drop(ctx)
			},
		},
	}
}

func createAlertsIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(CollectionAlerts)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "kind", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "requester_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "notified_guardians", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createGuardiansIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(CollectionGuardians)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "role", Value: 1}, {Key: "active", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "last_seen_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
