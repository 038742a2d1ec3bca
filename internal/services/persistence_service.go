package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/repositories/interfaces"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
)

// Persister mirrors engine state into MongoDB behind the request path. Only the
// latest snapshot per record is kept; failed writes stay pending until a later
// Flush succeeds, so a database outage never fails an engine operation.
type Persister struct {
	alerts    interfaces.AlertRepository
	guardians interfaces.GuardianRepository

	mu      sync.Mutex
	pending map[string]*persistOp
	flushMu sync.Mutex
	wake    chan struct{}

	opTimeout time.Duration
	logger    *logger.Logger
}

type persistOp struct {
	alert    *models.Alert
	guardian *models.Guardian
}

func (op *persistOp) apply(ctx context.Context, p *Persister) error {
	switch {
	case op.alert != nil:
		return p.alerts.Upsert(ctx, op.alert)
	case op.guardian != nil:
		return p.guardians.Upsert(ctx, op.guardian)
	}
	return nil
}

func NewPersister(alerts interfaces.AlertRepository, guardians interfaces.GuardianRepository, log *logger.Logger) *Persister {
	return &Persister{
		alerts:    alerts,
		guardians: guardians,
		pending:   make(map[string]*persistOp),
		wake:      make(chan struct{}, 1),
		opTimeout: 5 * time.Second,
		logger:    log.WithField("component", "persister"),
	}
}

func (p *Persister) EnqueueAlert(alert *models.Alert) {
	if alert == nil || p.alerts == nil {
		return
	}
	key := "alert:" + alert.ID.Hex()

	p.mu.Lock()
	if existing, ok := p.pending[key]; ok && existing.alert.Version > alert.Version {
		p.mu.Unlock()
		return
	}
	p.pending[key] = &persistOp{alert: alert.Clone()}
	p.updateGaugeLocked()
	p.mu.Unlock()

	p.signal()
}

func (p *Persister) EnqueueGuardian(guardian *models.Guardian) {
	if guardian == nil || p.guardians == nil {
		return
	}
	key := "guardian:" + guardian.ID.Hex()

	p.mu.Lock()
	if existing, ok := p.pending[key]; ok && existing.guardian.UpdatedAt.After(guardian.UpdatedAt) {
		p.mu.Unlock()
		return
	}
	p.pending[key] = &persistOp{guardian: guardian.Clone()}
	p.updateGaugeLocked()
	p.mu.Unlock()

	p.signal()
}

func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run flushes whenever new work arrives until ctx is cancelled, then makes one
// last attempt with a short deadline.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-p.wake:
			if _, err := p.Flush(ctx); err != nil {
				p.logger.WithError(err).Warn("Persistence degraded, will retry")
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := p.Flush(final); err != nil {
				p.logger.WithError(err).WithField("pending", p.Pending()).Warn("Pending writes dropped at shutdown")
			}
			cancel()
			return
		}
	}
}

// Flush writes every pending op once. It returns how many were written and
// the first error seen; failed ops remain pending.
func (p *Persister) Flush(ctx context.Context) (int, error) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	batch := make(map[string]*persistOp, len(p.pending))
	for k, op := range p.pending {
		batch[k] = op
	}
	p.mu.Unlock()

	written := 0
	var firstErr error
	for key, op := range batch {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}

		opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
		err := op.apply(opCtx, p)
		cancel()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("persist %s: %w", key, err)
			}
			continue
		}

		written++
		p.mu.Lock()
		// a newer snapshot may have replaced this one while we were writing
		if p.pending[key] == op {
			delete(p.pending, key)
		}
		p.updateGaugeLocked()
		p.mu.Unlock()
	}

	return written, firstErr
}

// LoadOpenAlerts reads alerts that still need engine attention after a restart.
func (p *Persister) LoadOpenAlerts(ctx context.Context) ([]*models.Alert, error) {
	if p.alerts == nil {
		return nil, errors.New("alert repository not configured")
	}
	return p.alerts.ListByStatus(ctx, models.AlertStatusActive, models.AlertStatusEscalated, models.AlertStatusAcknowledged)
}

// FindAlert reads one alert from durable storage.
func (p *Persister) FindAlert(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	if p.alerts == nil {
		return nil, errors.New("alert repository not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	alert, err := p.alerts.GetByID(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, ErrAlertNotFound
	}
	return alert, err
}

// ListAlerts pages through durable storage, newest first.
func (p *Persister) ListAlerts(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	if p.alerts == nil {
		return nil, 0, errors.New("alert repository not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()
	return p.alerts.List(ctx, filter, params)
}

func (p *Persister) LoadGuardians(ctx context.Context) ([]*models.Guardian, error) {
	if p.guardians == nil {
		return nil, errors.New("guardian repository not configured")
	}
	return p.guardians.List(ctx)
}

func (p *Persister) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Persister) updateGaugeLocked() {
	metrics.PersistencePending.Set(float64(len(p.pending)))
}
