package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/pkg/logger"
	"campusguard/pkg/metrics"
)

// Session identifies one live connection.
type Session struct {
	ID     string
	UserID primitive.ObjectID
	Role   string
}

// SubscriberID is the key sessions of the same user share for topic membership.
func (s Session) SubscriberID() string {
	return s.UserID.Hex()
}

// SessionListener is told about session lifecycle and client-originated updates.
// OnConnect and OnDisconnect run in order on a single dispatcher goroutine.
// OnLocation and OnHeartbeat run on the client's read goroutine. None run under a hub lock.
type SessionListener interface {
	OnConnect(session Session)
	OnDisconnect(session Session, lastSession bool)
	OnLocation(session Session, lat, lng float64)
	OnHeartbeat(session Session)
}

const listenerQueueSize = 1024

type Hub struct {
	clients       map[*Client]bool
	register      chan *Client
	unregister    chan *Client
	sessions      map[string]map[*Client]bool // subscriber -> live clients
	topics        map[string]map[string]bool  // topic -> subscribers
	subscriptions map[string]map[string]bool  // subscriber -> topics
	listener      SessionListener
	logger        *logger.Logger
	mutex         sync.RWMutex
	events        chan func()
	dispatchOnce  sync.Once
	done          chan struct{}
	stopOnce      sync.Once
}

type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		sessions:      make(map[string]map[*Client]bool),
		topics:        make(map[string]map[string]bool),
		subscriptions: make(map[string]map[string]bool),
		logger:        log.WithField("component", "websocket_hub"),
		events:        make(chan func(), listenerQueueSize),
		done:          make(chan struct{}),
	}
}

// SetListener must be called before Run.
func (h *Hub) SetListener(listener SessionListener) {
	h.listener = listener
}

func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			return
		}
	}
}

// notify queues a listener callback so slow listeners never stall the hub loop.
func (h *Hub) notify(fn func()) {
	h.dispatchOnce.Do(func() { go h.dispatch() })

	select {
	case h.events <- fn:
	case <-h.done:
	}
}

func (h *Hub) dispatch() {
	for {
		select {
		case fn := <-h.events:
			fn()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.sessions = make(map[string]map[*Client]bool)
	metrics.WebsocketSessions.Set(0)
}

// Register hands a new client to the hub loop. It returns false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	sub := client.Session.SubscriberID()
	if h.sessions[sub] == nil {
		h.sessions[sub] = make(map[*Client]bool)
	}
	h.sessions[sub][client] = true
	h.mutex.Unlock()

	metrics.WebsocketSessions.Inc()
	h.logger.WithFields(map[string]interface{}{
		"session_id": client.Session.ID,
		"user_id":    sub,
		"role":       client.Session.Role,
	}).Debug("Client registered")

	h.sendToClient(client, Message{
		Type:      "welcome",
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"session_id": client.Session.ID,
			"message":    "Connected successfully",
		},
	})

	if h.listener != nil {
		session := client.Session
		h.notify(func() { h.listener.OnConnect(session) })
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}

	delete(h.clients, client)
	close(client.send)

	sub := client.Session.SubscriberID()
	last := false
	if set, ok := h.sessions[sub]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.sessions, sub)
			h.unsubscribeAllLocked(sub)
			last = true
		}
	}
	h.mutex.Unlock()

	metrics.WebsocketSessions.Dec()
	h.logger.WithFields(map[string]interface{}{
		"session_id": client.Session.ID,
		"user_id":    sub,
		"last":       last,
	}).Debug("Client unregistered")

	if h.listener != nil {
		session := client.Session
		h.notify(func() { h.listener.OnDisconnect(session, last) })
	}
}

func (h *Hub) Subscribe(subscriberID, topic string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]bool)
	}
	h.topics[topic][subscriberID] = true

	if h.subscriptions[subscriberID] == nil {
		h.subscriptions[subscriberID] = make(map[string]bool)
	}
	h.subscriptions[subscriberID][topic] = true
}

func (h *Hub) Unsubscribe(subscriberID, topic string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if subs, ok := h.topics[topic]; ok {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	if topics, ok := h.subscriptions[subscriberID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(h.subscriptions, subscriberID)
		}
	}
}

func (h *Hub) UnsubscribeAll(subscriberID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.unsubscribeAllLocked(subscriberID)
}

func (h *Hub) unsubscribeAllLocked(subscriberID string) {
	for topic := range h.subscriptions[subscriberID] {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, subscriberID)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	delete(h.subscriptions, subscriberID)
}

// Publish delivers message to every connected session subscribed to topic and
// returns how many sessions accepted it. Sessions whose buffer is full are dropped.
func (h *Hub) Publish(topic string, message Message) int {
	message.Topic = topic
	if message.Timestamp == 0 {
		message.Timestamp = getCurrentTimestamp()
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).WithField("topic", topic).Error("Failed to marshal message")
		return 0
	}

	delivered := 0
	var slow []*Client

	h.mutex.RLock()
	for sub := range h.topics[topic] {
		for client := range h.sessions[sub] {
			select {
			case client.send <- data:
				delivered++
			default:
				slow = append(slow, client)
			}
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		h.logger.WithField("session_id", client.Session.ID).Warn("Dropping slow client")
		go h.Unregister(client)
	}

	return delivered
}

// SessionCount reports live sessions.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) sendToClient(client *Client, message Message) bool {
	data, err := json.Marshal(message)
	if err != nil {
		return false
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.clients[client] {
		return false
	}

	select {
	case client.send <- data:
		return true
	default:
		go h.Unregister(client)
		return false
	}
}

func newSessionID() string {
	return uuid.NewString()
}

func getCurrentTimestamp() int64 {
	return time.Now().Unix()
}
