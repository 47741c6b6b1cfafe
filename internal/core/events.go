package core

import "sync"

// EventType identifies the kind of event fired on the bus.
type EventType int

const (
	EventConnectionStateChanged EventType = iota
	EventCoreExited
	EventRuleAdded
	EventRuleRemoved
	EventAppPolicyChanged
	EventSettingsSaved
)

// Event carries data about something that happened in the system.
type Event struct {
	Type    EventType
	Payload any
}

// ConnectionStatePayload is the payload for EventConnectionStateChanged.
type ConnectionStatePayload struct {
	OldState ConnectionState
	NewState ConnectionState
	ServerID string
}

// CoreExitPayload is the payload for EventCoreExited.
type CoreExitPayload struct {
	ServerID string
	// Requested is true when the exit was caused by a disconnect call.
	Requested bool
	Err       error
}

// RulePayload is the payload for rule-related events.
type RulePayload struct {
	Rule RoutingRule
}

// AppPolicyPayload is the payload for EventAppPolicyChanged.
type AppPolicyPayload struct {
	AppPath string
	Policy  AppPolicy
}

// Handler is a callback for bus subscribers.
type Handler func(Event)

// EventBus provides pub/sub between system components.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a ready-to-use event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a given event type.
func (eb *EventBus) Subscribe(t EventType, h Handler) {
	eb.mu.Lock()
	eb.handlers[t] = append(eb.handlers[t], h)
	eb.mu.Unlock()
}

// Publish fires an event to all subscribed handlers synchronously.
func (eb *EventBus) Publish(e Event) {
	eb.mu.RLock()
	handlers := eb.handlers[e.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
