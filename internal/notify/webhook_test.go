package notify_test

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/notify"
)

type memStore struct {
	mu         sync.Mutex
	endpoints  map[string]notify.Endpoint
	deliveries map[string]notify.Delivery
	events     map[int64]events.Event
	nextID     int
}

func newMemStore() *memStore {
	return &memStore{
		endpoints:  map[string]notify.Endpoint{},
		deliveries: map[string]notify.Delivery{},
		events:     map[int64]events.Event{},
	}
}

func (m *memStore) CreateEndpoint(_ context.Context, ep notify.Endpoint) (notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ep.ID == "" {
		m.nextID++
		ep.ID = fmt.Sprintf("ep-%d", m.nextID)
	}
	ep.CreatedAt = time.Now()
	m.endpoints[ep.ID] = ep
	return ep, nil
}

func (m *memStore) UpdateEndpoint(_ context.Context, ep notify.Endpoint) (notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.ID] = ep
	return ep, nil
}

func (m *memStore) GetEndpoint(_ context.Context, id string) (notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return notify.Endpoint{}, fmt.Errorf("endpoint %s not found", id)
	}
	return ep, nil
}

func (m *memStore) ListEndpoints(_ context.Context, _, _ int) ([]notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		out = append(out, ep)
	}
	return out, nil
}

func (m *memStore) DeleteEndpoint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, id)
	return nil
}

func (m *memStore) ListActiveEndpointsForTopic(_ context.Context, topic string) ([]notify.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Endpoint
	for _, ep := range m.endpoints {
		if !ep.Active {
			continue
		}
		if len(ep.Topics) == 0 {
			out = append(out, ep)
			continue
		}
		for _, t := range ep.Topics {
			if t == topic {
				out = append(out, ep)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) EnqueueDelivery(_ context.Context, endpointID string, eventID int64, maxAttempt int32) (notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, del := range m.deliveries {
		if del.EndpointID == endpointID && del.EventID == eventID {
			return notify.Delivery{}, notify.ErrDuplicateDelivery
		}
	}
	m.nextID++
	del := notify.Delivery{
		ID:         fmt.Sprintf("del-%d", m.nextID),
		EndpointID: endpointID,
		EventID:    eventID,
		Status:     notify.StatusPending,
		MaxAttempt: maxAttempt,
		CreatedAt:  time.Now(),
	}
	m.deliveries[del.ID] = del
	return del, nil
}

func (m *memStore) GetDelivery(_ context.Context, id string) (notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	del, ok := m.deliveries[id]
	if !ok {
		return notify.Delivery{}, fmt.Errorf("delivery %s not found", id)
	}
	return del, nil
}

func (m *memStore) MarkDelivering(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	del := m.deliveries[id]
	del.Status = notify.StatusDelivering
	del.Attempt++
	m.deliveries[id] = del
	return nil
}

func (m *memStore) MarkDelivered(_ context.Context, id string, responseStatus int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	del := m.deliveries[id]
	del.Status = notify.StatusDelivered
	del.ResponseStatus = &responseStatus
	m.deliveries[id] = del
	return nil
}

func (m *memStore) MarkFailedWithBackoff(_ context.Context, id string, _ int32, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	del := m.deliveries[id]
	del.Status = notify.StatusFailed
	del.LastError = &lastError
	m.deliveries[id] = del
	return nil
}

func (m *memStore) MoveToDLQ(_ context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	del := m.deliveries[id]
	del.Status = notify.StatusDLQ
	del.LastError = &lastError
	m.deliveries[id] = del
	return nil
}

func (m *memStore) ResetDeliveryForReplay(_ context.Context, id string) (notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	del := m.deliveries[id]
	del.Status = notify.StatusPending
	del.Attempt = 0
	del.LastError = nil
	m.deliveries[id] = del
	return del, nil
}

func (m *memStore) ListDeliveries(_ context.Context, _ string, _, _ int) ([]notify.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Delivery, 0, len(m.deliveries))
	for _, del := range m.deliveries {
		out = append(out, del)
	}
	return out, nil
}

func (m *memStore) GetDomainEvent(_ context.Context, id int64) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return events.Event{}, fmt.Errorf("event %d not found", id)
	}
	return ev, nil
}

func TestComputeSignatureStable(t *testing.T) {
	sig1 := notify.ComputeSignature("secret", 1700000000, "42", []byte(`{"a":1}`))
	sig2 := notify.ComputeSignature("secret", 1700000000, "42", []byte(`{"a":1}`))
	require.Equal(t, sig1, sig2)
	require.NotEqual(t, sig1, notify.ComputeSignature("other", 1700000000, "42", []byte(`{"a":1}`)))
}

func TestScheduleAndDeliver(t *testing.T) {
	store := newMemStore()

	var received struct {
		sync.Mutex
		body      []byte
		signature string
		timestamp string
		eventID   string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Lock()
		defer received.Unlock()
		received.signature = r.Header.Get("X-Signature")
		received.timestamp = r.Header.Get("X-Timestamp")
		received.eventID = r.Header.Get("X-Event-ID")
		var buf [4096]byte
		n, _ := r.Body.Read(buf[:])
		received.body = append([]byte(nil), buf[:n]...)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	ep, err := store.CreateEndpoint(context.Background(), notify.Endpoint{
		URL:    server.URL,
		Secret: "super-secret-value",
		Topics: []string{events.TopicOrderCreated},
		Active: true,
	})
	require.NoError(t, err)

	ev := events.Event{
		ID:          7,
		Topic:       events.TopicOrderCreated,
		AggregateID: "order-1",
		Payload:     []byte(`{"orderId":"order-1"}`),
		OccurredAt:  time.Now(),
	}
	store.events[ev.ID] = ev

	dispatcher := &notify.Dispatcher{
		Store:              store,
		Enabled:            true,
		DefaultMaxAttempts: 3,
	}

	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.Len(t, store.deliveries, 1)

	// scheduling the same event twice is a no-op
	require.NoError(t, dispatcher.Schedule(context.Background(), ev))
	require.Len(t, store.deliveries, 1)

	var deliveryID string
	for id := range store.deliveries {
		deliveryID = id
	}
	require.NoError(t, dispatcher.DeliverByID(context.Background(), deliveryID))

	del, err := store.GetDelivery(context.Background(), deliveryID)
	require.NoError(t, err)
	require.Equal(t, notify.StatusDelivered, del.Status)
	require.NotNil(t, del.ResponseStatus)
	require.Equal(t, int32(http.StatusOK), *del.ResponseStatus)

	received.Lock()
	defer received.Unlock()
	require.Equal(t, "7", received.eventID)

	var payload struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(received.body, &payload))
	require.Equal(t, events.TopicOrderCreated, payload.Topic)

	var ts int64
	_, err = fmt.Sscanf(received.timestamp, "%d", &ts)
	require.NoError(t, err)
	expected := notify.ComputeSignature(ep.Secret, ts, "7", received.body)
	require.True(t, hmac.Equal([]byte(expected), []byte(received.signature)))
}

func TestDeliverMovesToDLQAfterMaxAttempts(t *testing.T) {
	store := newMemStore()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	ep, err := store.CreateEndpoint(context.Background(), notify.Endpoint{
		URL: server.URL, Secret: "super-secret-value", Active: true,
	})
	require.NoError(t, err)

	ev := events.Event{ID: 9, Topic: events.TopicOrderCreated, AggregateID: "order-2", Payload: []byte(`{}`), OccurredAt: time.Now()}
	store.events[ev.ID] = ev

	del, err := store.EnqueueDelivery(context.Background(), ep.ID, ev.ID, 2)
	require.NoError(t, err)

	dispatcher := &notify.Dispatcher{Store: store, Enabled: true, BackoffBaseSec: 1}

	// first attempt fails and is retryable
	require.Error(t, dispatcher.DeliverByID(context.Background(), del.ID))
	got, _ := store.GetDelivery(context.Background(), del.ID)
	require.Equal(t, notify.StatusFailed, got.Status)

	// second attempt exhausts the budget
	require.NoError(t, dispatcher.DeliverByID(context.Background(), del.ID))
	got, _ = store.GetDelivery(context.Background(), del.ID)
	require.Equal(t, notify.StatusDLQ, got.Status)
	require.NotNil(t, got.LastError)
}
