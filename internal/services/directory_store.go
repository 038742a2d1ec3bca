package services

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
)

// DirectoryStore holds guardian records. Implementations copy on the way in
// and out; Get returns ErrGuardianNotFound for unknown IDs.
type DirectoryStore interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.Guardian, error)
	Put(ctx context.Context, guardian *models.Guardian) error
	List(ctx context.Context) ([]*models.Guardian, error)
}

type MemoryDirectoryStore struct {
	mu        sync.RWMutex
	guardians map[primitive.ObjectID]*models.Guardian
}

func NewMemoryDirectoryStore() *MemoryDirectoryStore {
	return &MemoryDirectoryStore{
		guardians: make(map[primitive.ObjectID]*models.Guardian),
	}
}

func (s *MemoryDirectoryStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Guardian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guardians[id]
	if !ok {
		return nil, ErrGuardianNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryDirectoryStore) Put(ctx context.Context, guardian *models.Guardian) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.guardians[guardian.ID] = guardian.Clone()
	return nil
}

func (s *MemoryDirectoryStore) List(ctx context.Context) ([]*models.Guardian, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Guardian, 0, len(s.guardians))
	for _, g := range s.guardians {
		out = append(out, g.Clone())
	}
	return out, nil
}
