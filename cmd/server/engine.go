package main

import (
	"context"
	"time"

	"campusguard/internal/config"
	"campusguard/internal/services"
	"campusguard/pkg/cache"
	"campusguard/pkg/database"
	"campusguard/pkg/logger"
	"campusguard/pkg/push"
	"campusguard/pkg/sms"
	"campusguard/pkg/websocket"
)

type engine struct {
	service   services.EmergencyService
	directory *services.DirectoryService
	persister *services.Persister
	backend   string
}

func (e *engine) shutdown() {
	e.service.Shutdown()
}

func buildEngine(cfg *config.Config, db *database.MongoDB, redisCache *cache.RedisCache, hub *websocket.Hub, log *logger.Logger) *engine {
	backend := cfg.Emergency.StateBackend
	if backend == config.StateBackendRedis && redisCache == nil {
		log.Warn("STATE_BACKEND=redis but Redis is unavailable, falling back to memory")
		backend = config.StateBackendMemory
	}

	var (
		directoryStore services.DirectoryStore
		throttleStore  services.ThrottleStore
	)
	switch backend {
	case config.StateBackendRedis:
		directoryStore = services.NewRedisDirectoryStore(redisCache)
		throttleStore = services.NewRedisThrottleStore(redisCache)
	default:
		directoryStore = services.NewMemoryDirectoryStore()
		throttleStore = services.NewMemoryThrottleStore(cfg.Emergency.ThrottleInterval)
	}

	persister := newPersister(db, log)
	directory := services.NewDirectoryService(directoryStore, persister, log)
	hub.SetListener(services.NewPresenceService(hub, directory, log))

	var outbound services.OutboundNotifier
	smsProvider := newSMSProvider(cfg.SMS, log)
	pushProvider := newPushProvider(cfg.Push, log)
	if smsProvider != nil || pushProvider != nil {
		outbound = services.NewEscalationNotifier(smsProvider, pushProvider, services.EscalationNotifierConfig{
			OnCallNumbers: cfg.Emergency.OnCallNumbers,
			SMSFrom:       cfg.SMS.DefaultFrom,
			PushTopic:     cfg.Emergency.PushGuardianTopic,
			PushTokens:    cfg.Emergency.PushOnCallTokens,
		}, log)
	}

	service := services.NewEmergencyService(cfg.Emergency, services.EmergencyDeps{
		Throttle:  services.NewThrottleService(throttleStore, log),
		Alerts:    services.NewAlertStateMachine(cfg.Emergency.ResolutionNotesMax),
		Matcher:   services.NewMatcher(directory),
		Directory: directory,
		Router:    services.NewNotificationRouter(hub, outbound, log),
		Scheduler: services.NewEscalationScheduler(log),
		Mirror:    persister,
		Loader:    persister,
		Archive:   persister,
		Audit:     logger.NewAuditLoggerFrom(log),
	}, log)

	log.WithField("state_backend", backend).Info("Emergency engine ready")

	return &engine{
		service:   service,
		directory: directory,
		persister: persister,
		backend:   backend,
	}
}

// newSMSProvider returns nil when SMS is disabled or misconfigured.
func newSMSProvider(cfg *config.SMSConfig, log *logger.Logger) sms.SMSProvider {
	switch cfg.Provider {
	case "twilio":
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			log.Warn("Twilio selected but credentials are missing, SMS disabled")
			return nil
		}
		return sms.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	case "aws":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		provider, err := sms.NewAWSSNSProvider(ctx, cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.DefaultFrom)
		if err != nil {
			log.WithError(err).Warn("Failed to initialise AWS SNS, SMS disabled")
			return nil
		}
		return provider
	default:
		return nil
	}
}

// newPushProvider returns nil when push is disabled or misconfigured.
func newPushProvider(cfg *config.PushConfig, log *logger.Logger) push.PushProvider {
	switch cfg.Provider {
	case "fcm":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		provider, err := push.NewFCMProvider(ctx, cfg.FCM.Credentials, cfg.FCM.ProjectID)
		if err != nil {
			log.WithError(err).Warn("Failed to initialise FCM, push disabled")
			return nil
		}
		return provider
	case "apns":
		provider, err := push.NewAPNSProvider(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.BundleID, cfg.APNS.Production)
		if err != nil {
			log.WithError(err).Warn("Failed to initialise APNs, push disabled")
			return nil
		}
		return provider
	default:
		return nil
	}
}
