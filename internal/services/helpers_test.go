package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/models"
	"campusguard/internal/repositories/interfaces"
	"campusguard/internal/utils"
	"campusguard/pkg/cache"
	"campusguard/pkg/websocket"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type published struct {
	Topic   string
	Message websocket.Message
}

// fakeBroker delivers every publish to exactly one pretend subscriber.
type fakeBroker struct {
	mu            sync.Mutex
	subscriptions map[string]map[string]bool
	messages      []published
	onPublish     func(topic string, message websocket.Message)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscriptions: make(map[string]map[string]bool)}
}

func (b *fakeBroker) Subscribe(subscriberID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscriptions[subscriberID] == nil {
		b.subscriptions[subscriberID] = make(map[string]bool)
	}
	b.subscriptions[subscriberID][topic] = true
}

func (b *fakeBroker) Unsubscribe(subscriberID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions[subscriberID], topic)
}

func (b *fakeBroker) UnsubscribeAll(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, subscriberID)
}

func (b *fakeBroker) Publish(topic string, message websocket.Message) int {
	b.mu.Lock()
	b.messages = append(b.messages, published{Topic: topic, Message: message})
	hook := b.onPublish
	b.mu.Unlock()

	if hook != nil {
		hook(topic, message)
	}
	return 1
}

// OnPublish runs fn synchronously for every later publish, like a subscriber
// that reacts before the publisher returns.
func (b *fakeBroker) OnPublish(fn func(topic string, message websocket.Message)) {
	b.mu.Lock()
	b.onPublish = fn
	b.mu.Unlock()
}

func (b *fakeBroker) Topics(subscriberID string) map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool)
	for t := range b.subscriptions[subscriberID] {
		out[t] = true
	}
	return out
}

// Sent returns the topics that received an event of the given type, in order.
func (b *fakeBroker) Sent(eventType models.EventType) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var topics []string
	for _, m := range b.messages {
		if m.Message.Type == string(eventType) {
			topics = append(topics, m.Topic)
		}
	}
	return topics
}

func (b *fakeBroker) Events() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.messages...)
}

func (b *fakeBroker) Reset() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}

type kvEntry struct {
	data     []byte
	expireAt time.Time
}

// fakeKV is an in-process stand-in for the redis cache, expiring keys against a fake clock.
type fakeKV struct {
	mu    sync.Mutex
	clock *fakeClock
	kv    map[string]kvEntry
	sets  map[string]map[string]bool
	err   error
}

func newFakeKV(clock *fakeClock) *fakeKV {
	return &fakeKV{
		clock: clock,
		kv:    make(map[string]kvEntry),
		sets:  make(map[string]map[string]bool),
	}
}

func (f *fakeKV) live(key string) (kvEntry, bool) {
	e, ok := f.kv[key]
	if !ok {
		return kvEntry{}, false
	}
	if !e.expireAt.IsZero() && !f.clock.Now().Before(e.expireAt) {
		delete(f.kv, key)
		return kvEntry{}, false
	}
	return e, true
}

func (f *fakeKV) put(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := kvEntry{data: data}
	if expiration > 0 {
		e.expireAt = f.clock.Now().Add(expiration)
	}
	f.kv[key] = e
	return nil
}

func (f *fakeKV) Get(ctx context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e, ok := f.live(key)
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(e.data, dest)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return f.put(key, value, expiration)
}

func (f *fakeKV) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.live(key); ok {
		return false, nil
	}
	return true, f.put(key, value, expiration)
}

func (f *fakeKV) PTTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	e, ok := f.live(key)
	if !ok || e.expireAt.IsZero() {
		return 0, nil
	}
	return e.expireAt.Sub(f.clock.Now()), nil
}

func (f *fakeKV) SAdd(ctx context.Context, key string, members ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]bool)
	}
	for _, m := range members {
		f.sets[key][m.(string)] = true
	}
	return nil
}

func (f *fakeKV) SMembers(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeKV) SRem(ctx context.Context, key string, members ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return nil
}

func (f *fakeKV) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.kv, key)
}

var errStoreDown = errors.New("store unavailable")

type fakeAlertRepo struct {
	mu      sync.Mutex
	alerts  map[primitive.ObjectID]*models.Alert
	upserts int
	err     error
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[primitive.ObjectID]*models.Alert)}
}

func (r *fakeAlertRepo) Upsert(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.upserts++
	r.alerts[alert.ID] = alert.Clone()
	return nil
}

func (r *fakeAlertRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.alerts[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *fakeAlertRepo) List(ctx context.Context, filter models.AlertFilter, params *utils.PaginationParams) ([]*models.Alert, int64, error) {
	all, err := r.ListByStatus(ctx)
	if err != nil {
		return nil, 0, err
	}
	var matched []*models.Alert
	for _, a := range all {
		if (filter.Kind == "" || a.Kind == filter.Kind) && (filter.Status == "" || a.Status == filter.Status) {
			matched = append(matched, a)
		}
	}
	sortNewestFirst(matched)
	if params == nil {
		params = utils.DefaultPagination()
	}
	start, end := params.Window(len(matched))
	return matched[start:end], int64(len(matched)), nil
}

func (r *fakeAlertRepo) ListByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*models.Alert
	for _, a := range r.alerts {
		if len(statuses) == 0 {
			out = append(out, a.Clone())
			continue
		}
		for _, s := range statuses {
			if a.Status == s {
				out = append(out, a.Clone())
				break
			}
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) Stored(id primitive.ObjectID) *models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alerts[id].Clone()
}

func (r *fakeAlertRepo) SetErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

type fakeGuardianRepo struct {
	mu        sync.Mutex
	guardians map[primitive.ObjectID]*models.Guardian
	err       error
}

func newFakeGuardianRepo() *fakeGuardianRepo {
	return &fakeGuardianRepo{guardians: make(map[primitive.ObjectID]*models.Guardian)}
}

func (r *fakeGuardianRepo) Upsert(ctx context.Context, guardian *models.Guardian) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.guardians[guardian.ID] = guardian.Clone()
	return nil
}

func (r *fakeGuardianRepo) List(ctx context.Context) ([]*models.Guardian, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*models.Guardian
	for _, g := range r.guardians {
		out = append(out, g.Clone())
	}
	return out, nil
}

// campus origin used across tests
var campus = models.Location{Lat: 37.4275, Lng: -122.1697}

// guardianAt places an active guardian the given distance north of campus.
func guardianAt(t *testing.T, dir *DirectoryService, role models.Role, northMeters float64) primitive.ObjectID {
	t.Helper()
	id := primitive.NewObjectID()
	_, err := dir.UpsertLocation(context.Background(), id, role, utils.OffsetMeters(campus, northMeters, 0))
	require.NoError(t, err)
	return id
}
