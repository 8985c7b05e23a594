package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradesChanged    EventType = "TRADES_CHANGED"
	EventMetricsUpdated   EventType = "METRICS_UPDATED"
	EventKYCSubmitted     EventType = "KYC_SUBMITTED"
	EventKYCStatusChanged EventType = "KYC_STATUS_CHANGED"
	EventProfileUpdated   EventType = "PROFILE_UPDATED"
	EventUserCreated      EventType = "USER_CREATED"
)

// Event represents a system event. UserID names the user the event concerns;
// it is empty for system-wide events.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions.
// A nil *EventBus drops every event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
	now         func() time.Time
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		now:         time.Now,
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers, each on its own goroutine
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = eb.now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradesChanged announces that a user's stored trades changed.
// added is the net change in trade count; edits pass 0 and deletes -1.
func (eb *EventBus) PublishTradesChanged(userID string, added int) {
	eb.Publish(Event{
		Type:   EventTradesChanged,
		UserID: userID,
		Data: map[string]interface{}{
			"added": added,
		},
	})
}

// PublishMetricsUpdated pushes a recomputed metrics summary to a user
func (eb *EventBus) PublishMetricsUpdated(userID string, metrics interface{}) {
	eb.Publish(Event{
		Type:   EventMetricsUpdated,
		UserID: userID,
		Data: map[string]interface{}{
			"metrics": metrics,
		},
	})
}

// PublishKYCSubmitted announces a new KYC submission
func (eb *EventBus) PublishKYCSubmitted(userID string) {
	eb.Publish(Event{
		Type:   EventKYCSubmitted,
		UserID: userID,
		Data: map[string]interface{}{
			"user_id": userID,
		},
	})
}

// PublishKYCStatusChanged tells a user their verification status moved
func (eb *EventBus) PublishKYCStatusChanged(userID, status string) {
	eb.Publish(Event{
		Type:   EventKYCStatusChanged,
		UserID: userID,
		Data: map[string]interface{}{
			"status": status,
		},
	})
}

// PublishProfileUpdated announces a profile change
func (eb *EventBus) PublishProfileUpdated(userID string) {
	eb.Publish(Event{
		Type:   EventProfileUpdated,
		UserID: userID,
	})
}

// PublishUserCreated announces an admin-provisioned account
func (eb *EventBus) PublishUserCreated(userID, email string) {
	eb.Publish(Event{
		Type:   EventUserCreated,
		UserID: userID,
		Data: map[string]interface{}{
			"email": email,
		},
	})
}
