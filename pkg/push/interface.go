package push

import "context"

type PushProvider interface {
	SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error)
	SendBulkNotifications(ctx context.Context, requests []*NotificationRequest) ([]*NotificationResponse, error)
}

// NotificationRequest targets either a single device Token or a Topic.
type NotificationRequest struct {
	Token       string            `json:"token,omitempty"`
	Topic       string            `json:"topic,omitempty"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	Priority    string            `json:"priority,omitempty"` // high, normal
	TTL         int               `json:"ttl,omitempty"`      // seconds
	CollapseKey string            `json:"collapse_key,omitempty"`
	IOS         *IOSConfig        `json:"ios,omitempty"`
	Android     *AndroidConfig    `json:"android,omitempty"`
}

type NotificationResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Token     string `json:"token,omitempty"`
}

type IOSConfig struct {
	Sound             string `json:"sound,omitempty"`
	Category          string `json:"category,omitempty"`
	InterruptionLevel string `json:"interruption_level,omitempty"` // active, time-sensitive, critical
}

type AndroidConfig struct {
	Priority  string `json:"priority,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Tag       string `json:"tag,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}
