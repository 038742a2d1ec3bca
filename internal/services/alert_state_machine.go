package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/utils"
)

type NewAlertParams struct {
	Kind             models.AlertKind
	RequesterID      primitive.ObjectID
	Location         models.Location
	Destination      *models.Location
	DestinationLabel string
}

// AlertStateMachine owns every alert and its transitions:
//
//	active -> acknowledged -> resolved
//	active -> escalated -> acknowledged -> resolved
//	active | escalated -> resolved
//
// Each alert has its own lock, so transitions on one alert are serialized
// while different alerts never contend. Every returned alert is a copy.
type AlertStateMachine struct {
	mu       sync.RWMutex
	alerts   map[primitive.ObjectID]*alertEntry
	notesMax int
	now      func() time.Time
}

type alertEntry struct {
	mu    sync.Mutex
	alert *models.Alert
}

func NewAlertStateMachine(notesMax int) *AlertStateMachine {
	if notesMax <= 0 {
		notesMax = utils.DefaultResolutionNotesMax
	}
	return &AlertStateMachine{
		alerts:   make(map[primitive.ObjectID]*alertEntry),
		notesMax: notesMax,
		now:      time.Now,
	}
}

func (m *AlertStateMachine) Create(ctx context.Context, params NewAlertParams) *models.Alert {
	now := m.now()
	alert := &models.Alert{
		ID:                primitive.NewObjectID(),
		Kind:              params.Kind,
		RequesterID:       params.RequesterID,
		Location:          params.Location,
		DestinationLabel:  params.DestinationLabel,
		Status:            models.AlertStatusActive,
		NotifiedGuardians: []primitive.ObjectID{},
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if params.Destination != nil {
		d := *params.Destination
		alert.Destination = &d
	}

	m.mu.Lock()
	m.alerts[alert.ID] = &alertEntry{alert: alert}
	m.mu.Unlock()

	return alert.Clone()
}

// RecordNotified stores the guardians targeted by the initial fan-out.
func (m *AlertStateMachine) RecordNotified(ctx context.Context, id primitive.ObjectID, guardianIDs []primitive.ObjectID) (*models.Alert, error) {
	return m.transition(id, "", func(a *models.Alert, now time.Time) error {
		a.NotifiedGuardians = append([]primitive.ObjectID(nil), guardianIDs...)
		return nil
	})
}

// Acknowledge is legal from active or escalated. A second acknowledger gets
// ErrAlreadyAcknowledged rather than being silently ignored.
func (m *AlertStateMachine) Acknowledge(ctx context.Context, kind models.AlertKind, id, guardianID primitive.ObjectID) (*models.Alert, error) {
	return m.transition(id, kind, func(a *models.Alert, now time.Time) error {
		switch a.Status {
		case models.AlertStatusResolved:
			return ErrAlreadyResolved
		case models.AlertStatusAcknowledged:
			return ErrAlreadyAcknowledged
		}

		by := guardianID
		a.Status = models.AlertStatusAcknowledged
		a.AcknowledgedBy = &by
		a.AcknowledgedAt = &now
		return nil
	})
}

// Resolve is legal from any non-resolved status. Notes over the limit are rejected, not truncated.
func (m *AlertStateMachine) Resolve(ctx context.Context, kind models.AlertKind, id, resolverID primitive.ObjectID, notes string) (*models.Alert, error) {
	if utf8.RuneCountInString(notes) > m.notesMax {
		return nil, ErrNotesTooLong
	}

	return m.transition(id, kind, func(a *models.Alert, now time.Time) error {
		if a.Status == models.AlertStatusResolved {
			return ErrAlreadyResolved
		}

		by := resolverID
		a.Status = models.AlertStatusResolved
		a.ResolvedBy = &by
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
		return nil
	})
}

// Decline records that a guardian passed on an escort. Status does not change.
func (m *AlertStateMachine) Decline(ctx context.Context, kind models.AlertKind, id, guardianID primitive.ObjectID) (*models.Alert, error) {
	return m.transition(id, kind, func(a *models.Alert, now time.Time) error {
		switch a.Status {
		case models.AlertStatusResolved:
			return ErrAlreadyResolved
		case models.AlertStatusAcknowledged:
			return ErrAlreadyAcknowledged
		}

		if !a.HasDeclined(guardianID) {
			a.DeclinedBy = append(a.DeclinedBy, guardianID)
		}
		return nil
	})
}

// MarkEscalated moves an alert from active to escalated. For any other status
// it is a no-op and reports false.
func (m *AlertStateMachine) MarkEscalated(ctx context.Context, id primitive.ObjectID) (*models.Alert, bool, error) {
	escalated := false
	alert, err := m.transition(id, "", func(a *models.Alert, now time.Time) error {
		if a.Status != models.AlertStatusActive {
			return errNoop
		}
		a.Status = models.AlertStatusEscalated
		a.EscalatedAt = &now
		escalated = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return alert, escalated, nil
}

func (m *AlertStateMachine) Get(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	entry := m.entry(id)
	if entry == nil {
		return nil, ErrAlertNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.alert.Clone(), nil
}

// List returns one page of matching alerts, newest first, and the total match count.
func (m *AlertStateMachine) List(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64) {
	if params == nil {
		params = utils.DefaultPagination()
	}

	m.mu.RLock()
	entries := make([]*alertEntry, 0, len(m.alerts))
	for _, e := range m.alerts {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	matched := make([]*models.Alert, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		a := e.alert
		if (filter.Kind == "" || a.Kind == filter.Kind) && (filter.Status == "" || a.Status == filter.Status) {
			matched = append(matched, a.Clone())
		}
		e.mu.Unlock()
	}

	sortNewestFirst(matched)

	start, end := params.Window(len(matched))
	return matched[start:end], int64(len(matched))
}

func sortNewestFirst(alerts []*models.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID.Hex() > alerts[j].ID.Hex()
	})
}

// Restore loads alerts from durable storage. Alerts already held in memory
// are kept unless the stored copy has a higher version.
func (m *AlertStateMachine) Restore(alerts []*models.Alert) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, a := range alerts {
		if a == nil || a.ID.IsZero() || !a.Status.Valid() {
			continue
		}
		if existing, ok := m.alerts[a.ID]; ok && existing.alert.Version >= a.Version {
			continue
		}
		m.alerts[a.ID] = &alertEntry{alert: a.Clone()}
		restored++
	}
	return restored
}

func (m *AlertStateMachine) entry(id primitive.ObjectID) *alertEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alerts[id]
}

// errNoop aborts a transition without an error being reported to the caller.
var errNoop = errors.New("no-op transition")

// transition runs fn under the alert's lock. fn sees the live alert; on
// success the version is bumped and a copy returned. kind, when set, must match.
func (m *AlertStateMachine) transition(id primitive.ObjectID, kind models.AlertKind, fn func(a *models.Alert, now time.Time) error) (*models.Alert, error) {
	entry := m.entry(id)
	if entry == nil {
		return nil, ErrAlertNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if kind != "" && entry.alert.Kind != kind {
		return nil, ErrAlertNotFound
	}

	// work on a copy so a failed check leaves the alert untouched
	next := entry.alert.Clone()
	now := m.now()
	if err := fn(next, now); err != nil {
		if errors.Is(err, errNoop) {
			return entry.alert.Clone(), nil
		}
		return nil, err
	}

	next.Version++
	next.UpdatedAt = now
	entry.alert = next
	return next.Clone(), nil
}
