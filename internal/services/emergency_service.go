package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/config"
	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
)

const (
	EscalationCauseTimeout     = "timeout"
	EscalationCauseAllDeclined = "all_declined"
	EscalationCauseRestored    = "restored_past_deadline"
)

type EscortRequest struct {
	Location         models.Location
	Destination      *models.Location
	DestinationLabel string
}

// AlertMirror receives a snapshot after every committed alert change.
type AlertMirror interface {
	EnqueueAlert(alert *models.Alert)
}

// AlertLoader reads back what an earlier process persisted.
type AlertLoader interface {
	LoadOpenAlerts(ctx context.Context) ([]*models.Alert, error)
	LoadGuardians(ctx context.Context) ([]*models.Guardian, error)
}

// AlertArchive answers reads for alerts the engine no longer holds, such as
// alerts resolved before a restart.
type AlertArchive interface {
	FindAlert(ctx context.Context, id primitive.ObjectID) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64, error)
}

type EmergencyService interface {
	SubmitSOS(ctx context.Context, requesterID primitive.ObjectID, location models.Location) (*models.Alert, error)
	RequestEscort(ctx context.Context, requesterID primitive.ObjectID, request EscortRequest) (*models.Alert, error)
	Acknowledge(ctx context.Context, kind models.AlertKind, alertID, guardianID primitive.ObjectID) (*models.Alert, error)
	Resolve(ctx context.Context, kind models.AlertKind, alertID, resolverID primitive.ObjectID, notes string) (*models.Alert, error)
	DeclineEscort(ctx context.Context, alertID, guardianID primitive.ObjectID) (*models.Alert, error)
	Get(ctx context.Context, kind models.AlertKind, alertID primitive.ObjectID) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64)
	FindNearest(ctx context.Context, location models.Location, limit int) ([]models.RankedGuardian, error)
	Restore(ctx context.Context) error
	Shutdown()
}

type EmergencyDeps struct {
	Throttle  *ThrottleService
	Alerts    *AlertStateMachine
	Matcher   *Matcher
	Directory *DirectoryService
	Router    *NotificationRouter
	Scheduler *EscalationScheduler
	Mirror    AlertMirror
	Loader    AlertLoader
	Archive   AlertArchive
	Audit     *logger.AuditLogger
}

// emergencyService runs the submission and transition flows. State changes
// commit inside the state machine; persistence, audit and publishing happen
// after the commit with no engine lock held.
type emergencyService struct {
	config    *config.EmergencyConfig
	throttle  *ThrottleService
	alerts    *AlertStateMachine
	matcher   *Matcher
	directory *DirectoryService
	router    *NotificationRouter
	scheduler *EscalationScheduler
	mirror    AlertMirror
	loader    AlertLoader
	archive   AlertArchive
	audit     *logger.AuditLogger
	now       func() time.Time
	logger    *logger.Logger
}

func NewEmergencyService(cfg *config.EmergencyConfig, deps EmergencyDeps, log *logger.Logger) EmergencyService {
	return &emergencyService{
		config:    cfg,
		throttle:  deps.Throttle,
		alerts:    deps.Alerts,
		matcher:   deps.Matcher,
		directory: deps.Directory,
		router:    deps.Router,
		scheduler: deps.Scheduler,
		mirror:    deps.Mirror,
		loader:    deps.Loader,
		archive:   deps.Archive,
		audit:     deps.Audit,
		now:       time.Now,
		logger:    log.WithField("component", "emergency_service"),
	}
}

func (s *emergencyService) SubmitSOS(ctx context.Context, requesterID primitive.ObjectID, location models.Location) (*models.Alert, error) {
	if !utils.IsValidLocation(location) {
		return nil, ErrInvalidLocation
	}

	return s.submit(ctx, NewAlertParams{
		Kind:        models.AlertKindSOS,
		RequesterID: requesterID,
		Location:    location,
	})
}

func (s *emergencyService) RequestEscort(ctx context.Context, requesterID primitive.ObjectID, request EscortRequest) (*models.Alert, error) {
	if !utils.IsValidLocation(request.Location) {
		return nil, ErrInvalidLocation
	}
	if request.Destination == nil {
		return nil, ErrMissingDestination
	}
	if !utils.IsValidLocation(*request.Destination) {
		return nil, ErrInvalidLocation
	}

	return s.submit(ctx, NewAlertParams{
		Kind:             models.AlertKindEscort,
		RequesterID:      requesterID,
		Location:         request.Location,
		Destination:      request.Destination,
		DestinationLabel: request.DestinationLabel,
	})
}

func (s *emergencyService) submit(ctx context.Context, params NewAlertParams) (*models.Alert, error) {
	decision := s.throttle.TryAccept(ctx, params.RequesterID, s.config.ThrottleInterval)
	if !decision.Accepted {
		return nil, &ThrottledError{RetryAfter: decision.RetryAfter}
	}

	alert := s.alerts.Create(ctx, params)
	metrics.AlertsCreated.WithLabelValues(string(alert.Kind)).Inc()

	matched, err := s.matcher.FindNearest(ctx, alert.Location, s.config.NearestFanOut)
	if err != nil {
		// fall back to broadcasting rather than blocking intake
		s.logger.WithError(err).WithAlertID(alert.ID).Warn("Matcher unavailable, broadcasting to all guardians")
		matched = nil
	}

	notified := make([]primitive.ObjectID, 0, len(matched))
	for _, m := range matched {
		notified = append(notified, m.Guardian.ID)
	}
	if updated, err := s.alerts.RecordNotified(ctx, alert.ID, notified); err == nil {
		alert = updated
	}

	s.committed(alert, nil)
	s.logger.LogAlertEvent(alert.ID, "created", map[string]interface{}{
		"kind":     alert.Kind,
		"notified": len(notified),
	})

	// armed before publishing so an acknowledgement racing the broadcast
	// always finds a timer to cancel
	s.armEscalation(alert.ID, s.config.EscalationTimeout)
	s.router.AlertCreated(alert, matched)

	return alert, nil
}

func (s *emergencyService) Acknowledge(ctx context.Context, kind models.AlertKind, alertID, guardianID primitive.ObjectID) (*models.Alert, error) {
	alert, err := s.alerts.Acknowledge(ctx, kind, alertID, guardianID)
	if err != nil {
		return nil, err
	}

	s.scheduler.Cancel(alertID)
	s.committed(alert, &guardianID)
	s.router.AlertAcknowledged(alert, guardianID)
	return alert, nil
}

func (s *emergencyService) Resolve(ctx context.Context, kind models.AlertKind, alertID, resolverID primitive.ObjectID, notes string) (*models.Alert, error) {
	alert, err := s.alerts.Resolve(ctx, kind, alertID, resolverID, notes)
	if err != nil {
		return nil, err
	}

	s.scheduler.Cancel(alertID)
	s.committed(alert, &resolverID)
	s.router.AlertResolved(alert, resolverID)
	return alert, nil
}

// DeclineEscort records the decline and escalates at once when every
// originally notified guardian has declined.
func (s *emergencyService) DeclineEscort(ctx context.Context, alertID, guardianID primitive.ObjectID) (*models.Alert, error) {
	alert, err := s.alerts.Decline(ctx, models.AlertKindEscort, alertID, guardianID)
	if err != nil {
		return nil, err
	}

	s.committed(alert, &guardianID)
	s.router.EscortDeclined(alert, guardianID)

	if alert.Status == models.AlertStatusActive && alert.AllNotifiedDeclined() {
		s.scheduler.Cancel(alertID)
		if escalated := s.escalate(alertID, EscalationCauseAllDeclined); escalated != nil {
			return escalated, nil
		}
	}
	return alert, nil
}

// Get serves open alerts from memory and falls back to the archive for
// alerts that were resolved before this process started.
func (s *emergencyService) Get(ctx context.Context, kind models.AlertKind, alertID primitive.ObjectID) (*models.Alert, error) {
	alert, err := s.alerts.Get(ctx, alertID)
	if errors.Is(err, ErrAlertNotFound) && s.archive != nil {
		alert, err = s.archive.FindAlert(ctx, alertID)
		if err != nil && !errors.Is(err, ErrAlertNotFound) {
			s.logger.WithError(err).WithAlertID(alertID).Warn("Alert archive unavailable")
			err = ErrAlertNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	if kind != "" && alert.Kind != kind {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// List serves open statuses from memory. Resolved alerts are read from the
// archive merged with resolutions not yet flushed; if the archive is down
// only the in-memory resolutions are returned.
func (s *emergencyService) List(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64) {
	if filter.Status != models.AlertStatusResolved || s.archive == nil {
		return s.alerts.List(ctx, filter, params)
	}
	if params == nil {
		params = utils.DefaultPagination()
	}

	// everything up to the end of the requested page, so unflushed
	// resolutions can be interleaved before windowing
	head := &utils.PaginationParams{
		Page:     1,
		PageSize: params.Page * params.PageSize,
		Sort:     "created_at",
		Order:    "desc",
	}
	archived, total, err := s.archive.ListAlerts(ctx, filter, head)
	if err != nil {
		s.logger.WithError(err).Warn("Alert archive unavailable, listing in-memory resolutions only")
		return s.alerts.List(ctx, filter, params)
	}

	local, _ := s.alerts.List(ctx, filter, &utils.PaginationParams{Page: 1, PageSize: math.MaxInt32})
	merged := mergeByVersion(archived, local)
	sortNewestFirst(merged)

	if n := int64(len(merged)); n > total {
		total = n
	}
	start, end := params.Window(len(merged))
	return merged[start:end], total
}

// mergeByVersion de-duplicates by ID, keeping the highest version.
func mergeByVersion(sets ...[]*models.Alert) []*models.Alert {
	byID := make(map[primitive.ObjectID]*models.Alert)
	for _, set := range sets {
		for _, a := range set {
			if cur, ok := byID[a.ID]; !ok || a.Version > cur.Version {
				byID[a.ID] = a
			}
		}
	}

	out := make([]*models.Alert, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	return out
}

func (s *emergencyService) FindNearest(ctx context.Context, location models.Location, limit int) ([]models.RankedGuardian, error) {
	if !utils.IsValidLocation(location) {
		return nil, ErrInvalidLocation
	}
	return s.matcher.FindNearest(ctx, location, limit)
}

// Restore reloads open alerts and known guardians from durable storage and
// re-arms escalation for alerts still active, honouring the original deadline.
func (s *emergencyService) Restore(ctx context.Context) error {
	if s.loader == nil {
		return nil
	}

	if guardians, err := s.loader.LoadGuardians(ctx); err != nil {
		s.logger.WithError(err).Warn("Could not restore guardian directory")
	} else if err := s.directory.Restore(ctx, guardians); err != nil {
		s.logger.WithError(err).Warn("Could not restore guardian directory")
	}

	open, err := s.loader.LoadOpenAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open alerts: %w", err)
	}

	restored := s.alerts.Restore(open)
	rearmed := 0
	for _, a := range open {
		if a.Status != models.AlertStatusActive {
			continue
		}
		remaining := a.CreatedAt.Add(s.config.EscalationTimeout).Sub(s.now())
		if remaining <= 0 {
			s.escalate(a.ID, EscalationCauseRestored)
			continue
		}
		s.armEscalation(a.ID, remaining)
		rearmed++
	}

	s.logger.WithFields(map[string]interface{}{
		"restored": restored,
		"rearmed":  rearmed,
	}).Info("Restored alerts from storage")
	return nil
}

func (s *emergencyService) Shutdown() {
	s.scheduler.Stop()
}

func (s *emergencyService) armEscalation(alertID primitive.ObjectID, after time.Duration) {
	s.scheduler.Arm(alertID, after, func() {
		s.escalate(alertID, EscalationCauseTimeout)
	})
}

// escalate re-checks state through MarkEscalated; it returns nil when the
// alert already left active.
func (s *emergencyService) escalate(alertID primitive.ObjectID, cause string) *models.Alert {
	alert, escalated, err := s.alerts.MarkEscalated(context.Background(), alertID)
	if err != nil {
		s.logger.WithError(err).WithAlertID(alertID).Warn("Escalation skipped")
		return nil
	}
	if !escalated {
		return nil
	}

	metrics.Escalations.WithLabelValues(string(alert.Kind), cause).Inc()
	s.committed(alert, nil)
	s.logger.WithAlertID(alertID).WithField("cause", cause).Warn("Alert escalated")
	s.router.AlertEscalated(alert, cause)
	return alert
}

// committed records a transition that already took effect.
func (s *emergencyService) committed(alert *models.Alert, actorID *primitive.ObjectID) {
	metrics.AlertTransitions.WithLabelValues(string(alert.Kind), string(alert.Status)).Inc()
	if s.mirror != nil {
		s.mirror.EnqueueAlert(alert)
	}
	if s.audit != nil {
		s.audit.LogAlertTransition(alert.ID, string(alert.Kind), string(alert.Status), alert.Version, actorID)
	}
}
