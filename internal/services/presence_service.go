package services

import (
	"context"
	"errors"
	"time"

	"campusguard/internal/models"
	"campusguard/internal/utils"
	"campusguard/pkg/logger"
	"campusguard/pkg/websocket"
)

// PresenceService maps realtime sessions onto topic subscriptions and the
// guardian directory. It never touches alert state.
type PresenceService struct {
	broker    Broker
	directory *DirectoryService
	timeout   time.Duration
	logger    *logger.Logger
}

func NewPresenceService(broker Broker, directory *DirectoryService, log *logger.Logger) *PresenceService {
	return &PresenceService{
		broker:    broker,
		directory: directory,
		timeout:   5 * time.Second,
		logger:    log.WithField("component", "presence"),
	}
}

// SessionTopics lists the topics a session of this role joins.
func SessionTopics(session websocket.Session) []string {
	topics := []string{UserTopic(session.UserID)}

	role := models.Role(session.Role)
	if role.IsGuardian() {
		topics = append(topics,
			GuardianTopic(session.UserID),
			RoleTopic(role),
			utils.TopicAllGuardians,
		)
	}
	return topics
}

func (p *PresenceService) OnConnect(session websocket.Session) {
	sub := session.SubscriberID()
	for _, topic := range SessionTopics(session) {
		p.broker.Subscribe(sub, topic)
	}

	role := models.Role(session.Role)
	if !role.IsGuardian() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if _, err := p.directory.Register(ctx, session.UserID, role); err != nil {
		p.logger.WithError(err).WithGuardianID(session.UserID).Warn("Failed to register guardian session")
	}
}

// OnDisconnect marks the guardian inactive once its last session is gone.
// The hub has already dropped the subscriptions at that point.
func (p *PresenceService) OnDisconnect(session websocket.Session, lastSession bool) {
	if !lastSession || !models.Role(session.Role).IsGuardian() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_, err := p.directory.SetActive(ctx, session.UserID, false)
	if err != nil && !errors.Is(err, ErrGuardianNotFound) {
		p.logger.WithError(err).WithGuardianID(session.UserID).Warn("Failed to mark guardian inactive")
	}
}

func (p *PresenceService) OnLocation(session websocket.Session, lat, lng float64) {
	role := models.Role(session.Role)
	if !role.IsGuardian() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_, err := p.directory.UpsertLocation(ctx, session.UserID, role, models.Location{Lat: lat, Lng: lng})
	if err != nil {
		p.logger.WithError(err).WithGuardianID(session.UserID).Debug("Rejected location update")
	}
}

// OnHeartbeat keeps a connected guardian from being flagged stale while it
// stands still. Guardians the directory has not seen yet are ignored.
func (p *PresenceService) OnHeartbeat(session websocket.Session) {
	if !models.Role(session.Role).IsGuardian() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_, err := p.directory.Touch(ctx, session.UserID)
	if err != nil && !errors.Is(err, ErrGuardianNotFound) {
		p.logger.WithError(err).WithGuardianID(session.UserID).Debug("Failed to record guardian heartbeat")
	}
}
