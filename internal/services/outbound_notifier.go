package services

import (
	"context"
	"fmt"

	"campusguard/internal/models"
	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
	"campusguard/pkg/push"
	"campusguard/pkg/sms"
)

type EscalationNotifierConfig struct {
	OnCallNumbers []string
	SMSFrom       string
	PushTopic     string
	// PushTokens, when set, are addressed individually instead of PushTopic.
	PushTokens []string
}

// EscalationNotifier sends SMS to on-call security and a push to guardians
// when an alert escalates. Either provider may be nil.
type EscalationNotifier struct {
	sms    sms.SMSProvider
	push   push.PushProvider
	config EscalationNotifierConfig
	logger *logger.Logger
}

func NewEscalationNotifier(smsProvider sms.SMSProvider, pushProvider push.PushProvider, cfg EscalationNotifierConfig, log *logger.Logger) *EscalationNotifier {
	return &EscalationNotifier{
		sms:    smsProvider,
		push:   pushProvider,
		config: cfg,
		logger: log.WithField("component", "escalation_notifier"),
	}
}

func (n *EscalationNotifier) NotifyEscalation(ctx context.Context, alert *models.Alert) {
	title, body := escalationText(alert)
	n.sendSMS(ctx, alert, title+": "+body)
	n.sendPush(ctx, alert, title, body)
}

func (n *EscalationNotifier) sendSMS(ctx context.Context, alert *models.Alert, text string) {
	if n.sms == nil || len(n.config.OnCallNumbers) == 0 {
		return
	}

	requests := make([]*sms.SMSRequest, 0, len(n.config.OnCallNumbers))
	for _, number := range n.config.OnCallNumbers {
		requests = append(requests, &sms.SMSRequest{
			To:      number,
			From:    n.config.SMSFrom,
			Message: text,
			Type:    "transactional",
		})
	}

	responses, err := n.sms.SendBulkSMS(ctx, requests)
	if err != nil {
		metrics.OutboundNotifications.WithLabelValues("sms", "error").Add(float64(len(requests)))
		n.logger.WithError(err).WithAlertID(alert.ID).Error("Escalation SMS failed")
		return
	}

	for _, resp := range responses {
		if resp == nil || resp.Error != "" {
			metrics.OutboundNotifications.WithLabelValues("sms", "error").Inc()
			if resp != nil {
				n.logger.WithAlertID(alert.ID).WithFields(map[string]interface{}{
					"to":    resp.To,
					"error": resp.Error,
				}).Warn("Escalation SMS not delivered")
			}
			continue
		}
		metrics.OutboundNotifications.WithLabelValues("sms", "sent").Inc()
	}
}

func (n *EscalationNotifier) sendPush(ctx context.Context, alert *models.Alert, title, body string) {
	if n.push == nil {
		return
	}

	base := push.NotificationRequest{
		Title:       title,
		Body:        body,
		Priority:    "high",
		TTL:         300,
		CollapseKey: "alert-" + alert.ID.Hex(),
		Data: map[string]string{
			"alert_id": alert.ID.Hex(),
			"kind":     string(alert.Kind),
			"status":   string(alert.Status),
		},
		IOS:     &push.IOSConfig{Sound: "default", InterruptionLevel: "time-sensitive"},
		Android: &push.AndroidConfig{Priority: "high", ChannelID: "emergency", Tag: alert.ID.Hex()},
	}

	var requests []*push.NotificationRequest
	if len(n.config.PushTokens) > 0 {
		for _, token := range n.config.PushTokens {
			req := base
			req.Token = token
			requests = append(requests, &req)
		}
	} else if n.config.PushTopic != "" {
		req := base
		req.Topic = n.config.PushTopic
		requests = append(requests, &req)
	} else {
		return
	}

	responses, err := n.push.SendBulkNotifications(ctx, requests)
	if err != nil {
		metrics.OutboundNotifications.WithLabelValues("push", "error").Add(float64(len(requests)))
		n.logger.WithError(err).WithAlertID(alert.ID).Error("Escalation push failed")
		return
	}

	for _, resp := range responses {
		if resp == nil || !resp.Success {
			metrics.OutboundNotifications.WithLabelValues("push", "error").Inc()
			continue
		}
		metrics.OutboundNotifications.WithLabelValues("push", "sent").Inc()
	}
}

func escalationText(alert *models.Alert) (string, string) {
	where := alert.Location.String()
	switch alert.Kind {
	case models.AlertKindEscort:
		body := fmt.Sprintf("Escort request from %s not accepted", where)
		if alert.DestinationLabel != "" {
			body += " (to " + alert.DestinationLabel + ")"
		}
		return "Escort request escalated", body
	default:
		return "SOS escalated", fmt.Sprintf("Unacknowledged SOS at %s, alert %s", where, alert.ID.Hex())
	}
}
