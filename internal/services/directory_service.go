package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
)

// GuardianMirror receives a snapshot of every accepted directory mutation.
type GuardianMirror interface {
	EnqueueGuardian(guardian *models.Guardian)
}

// DirectoryService tracks known guardians, their last position and availability.
type DirectoryService struct {
	store  DirectoryStore
	mirror GuardianMirror
	locks  *keyedMutex
	now    func() time.Time
	logger *logger.Logger
}

func NewDirectoryService(store DirectoryStore, mirror GuardianMirror, log *logger.Logger) *DirectoryService {
	return &DirectoryService{
		store:  store,
		mirror: mirror,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: log.WithField("component", "guardian_directory"),
	}
}

// Register records a connected guardian without a position fix and marks it active.
func (s *DirectoryService) Register(ctx context.Context, guardianID primitive.ObjectID, role models.Role) (*models.Guardian, error) {
	if !role.IsGuardian() {
		return nil, ErrNotGuardian
	}

	return s.mutate(ctx, guardianID, true, func(g *models.Guardian) {
		g.Role = role
		g.Active = true
	})
}

// UpsertLocation records a position push. Unknown guardians are created active.
func (s *DirectoryService) UpsertLocation(ctx context.Context, guardianID primitive.ObjectID, role models.Role, location models.Location) (*models.Guardian, error) {
	if !role.IsGuardian() {
		return nil, ErrNotGuardian
	}
	if !utils.IsValidLocation(location) {
		return nil, ErrInvalidLocation
	}

	return s.mutate(ctx, guardianID, true, func(g *models.Guardian) {
		loc := location
		g.Role = role
		g.Location = &loc
	})
}

func (s *DirectoryService) SetActive(ctx context.Context, guardianID primitive.ObjectID, active bool) (*models.Guardian, error) {
	return s.mutate(ctx, guardianID, false, func(g *models.Guardian) {
		g.Active = active
	})
}

func (s *DirectoryService) Get(ctx context.Context, guardianID primitive.ObjectID) (*models.Guardian, error) {
	return s.store.Get(ctx, guardianID)
}

// Touch records a heartbeat from a known guardian without changing its position.
func (s *DirectoryService) Touch(ctx context.Context, guardianID primitive.ObjectID) (*models.Guardian, error) {
	return s.mutate(ctx, guardianID, false, func(g *models.Guardian) {})
}

// ListActive returns available guardians (active and not stale), optionally
// limited to one role. Order is unspecified.
func (s *DirectoryService) ListActive(ctx context.Context, roleFilter *models.Role) ([]*models.Guardian, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guardians: %w", err)
	}

	out := make([]*models.Guardian, 0, len(all))
	for _, g := range all {
		if !g.Available() {
			continue
		}
		if roleFilter != nil && g.Role != *roleFilter {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

// SweepStale flags available guardians as stale when nothing was heard from
// them within olderThan. Their availability choice is kept, so the next
// location push or heartbeat makes them matchable again. It returns how many
// were flagged.
func (s *DirectoryService) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	active, err := s.ListActive(ctx, nil)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-olderThan)
	swept := 0
	for _, g := range active {
		if !g.LastSeenAt.Before(cutoff) {
			continue
		}

		unlock := s.locks.Lock(g.ID.Hex())
		current, err := s.store.Get(ctx, g.ID)
		if err == nil && current.Available() && current.LastSeenAt.Before(cutoff) {
			current.Stale = true
			current.UpdatedAt = s.now()
			if err = s.store.Put(ctx, current); err == nil {
				swept++
				s.mirrorGuardian(current)
			}
		}
		unlock()

		if err != nil && !errors.Is(err, ErrGuardianNotFound) {
			s.logger.WithError(err).WithGuardianID(g.ID).Warn("Failed to sweep stale guardian")
		}
	}

	if swept > 0 {
		s.logger.WithField("count", swept).Info("Flagged stale guardians")
	}
	return swept, nil
}

// Restore seeds the directory from durable storage. Restored guardians start
// inactive until they reconnect.
func (s *DirectoryService) Restore(ctx context.Context, guardians []*models.Guardian) error {
	for _, g := range guardians {
		if !g.Role.IsGuardian() {
			continue
		}
		unlock := s.locks.Lock(g.ID.Hex())
		_, err := s.store.Get(ctx, g.ID)
		if errors.Is(err, ErrGuardianNotFound) {
			restored := g.Clone()
			restored.Active = false
			err = s.store.Put(ctx, restored)
		}
		unlock()
		if err != nil {
			return fmt.Errorf("failed to restore guardian %s: %w", g.ID.Hex(), err)
		}
	}
	return nil
}

// mutate applies fn under the guardian's lock. Every mutation is a sign of
// life: it refreshes LastSeenAt and clears Stale.
func (s *DirectoryService) mutate(ctx context.Context, guardianID primitive.ObjectID, create bool, fn func(g *models.Guardian)) (*models.Guardian, error) {
	unlock := s.locks.Lock(guardianID.Hex())
	defer unlock()

	g, err := s.store.Get(ctx, guardianID)
	switch {
	case errors.Is(err, ErrGuardianNotFound) && create:
		g = &models.Guardian{ID: guardianID, Active: true}
	case err != nil:
		return nil, err
	}

	fn(g)
	g.Stale = false
	now := s.now()
	g.LastSeenAt = now
	g.UpdatedAt = now

	if err := s.store.Put(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to store guardian: %w", err)
	}

	s.mirrorGuardian(g)
	return g.Clone(), nil
}

func (s *DirectoryService) mirrorGuardian(g *models.Guardian) {
	if s.mirror != nil {
		s.mirror.EnqueueGuardian(g.Clone())
	}
}
