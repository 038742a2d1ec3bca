package services

import (
	"context"
	"sort"

	"campusguard/internal/models"
	"campusguard/internal/utils"
)

// GuardianLister is the read side of the directory the matcher needs.
type GuardianLister interface {
	ListActive(ctx context.Context, roleFilter *models.Role) ([]*models.Guardian, error)
}

// Matcher ranks active guardians by great-circle distance. It scans the whole
// directory, which is fine for a few hundred guardians.
type Matcher struct {
	directory GuardianLister
}

func NewMatcher(directory GuardianLister) *Matcher {
	return &Matcher{directory: directory}
}

// FindNearest returns up to limit active guardians with a known location,
// nearest first, ties broken by guardian ID. Fewer results is not an error.
func (m *Matcher) FindNearest(ctx context.Context, location models.Location, limit int) ([]models.RankedGuardian, error) {
	if limit <= 0 {
		return []models.RankedGuardian{}, nil
	}

	guardians, err := m.directory.ListActive(ctx, nil)
	if err != nil {
		return nil, err
	}

	return rankByDistance(location, guardians, limit), nil
}

func rankByDistance(location models.Location, guardians []*models.Guardian, limit int) []models.RankedGuardian {
	ranked := make([]models.RankedGuardian, 0, len(guardians))
	for _, g := range guardians {
		if !g.Available() || !g.HasLocation() {
			continue
		}
		ranked = append(ranked, models.RankedGuardian{
			Guardian:       g,
			DistanceMeters: utils.DistanceMeters(location, *g.Location),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].DistanceMeters != ranked[j].DistanceMeters {
			return ranked[i].DistanceMeters < ranked[j].DistanceMeters
		}
		return ranked[i].Guardian.ID.Hex() < ranked[j].Guardian.ID.Hex()
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
