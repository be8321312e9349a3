// Package bus provides the in-process notification channel between the
// gateway core and its observers (websocket hub, logs, tests).
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/perdanaw/wagate/internal/logging"
)

// Well-known notification topics. The payload shape per topic is fixed;
// see the Payload* types in payloads.go.
const (
	TopicPairingCode      = "pairing-code-available"
	TopicConnectionReady  = "connection-ready"
	TopicConnectionLost   = "connection-lost"
	TopicMessageObserved  = "message-observed"
	TopicMessageSkipped   = "message-skipped"
	TopicMessageBlocked   = "message-blocked"
	TopicMessageSent      = "message-sent"
	TopicAIResponseSent   = "ai-response-sent"
	TopicProviderReloaded = "provider-reloaded"
	TopicPolicyReloaded   = "policy-reloaded"
	TopicSessionCleared   = "session-cleared"
	TopicError            = "error"
)

// Event represents a notification broadcast to subscribers
type Event struct {
	Topic     string    // One of the Topic* constants
	Data      any       // Payload, nil for bare signals
	Timestamp time.Time // When the event was published
}

// EventHandler processes an event (no return value - fire and forget)
type EventHandler func(Event)

// SubscriptionID uniquely identifies an event subscription
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	topic   string // "" subscribes to every topic
	handler EventHandler
}

var (
	subscriptions   []subscription
	subscriptionsMu sync.RWMutex

	nextSubscriptionID uint64
)

// Subscribe registers a handler for a notification topic.
// Returns a SubscriptionID that can be used to unsubscribe.
func Subscribe(topic string, handler EventHandler) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&nextSubscriptionID, 1))

	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	subscriptions = append(subscriptions, subscription{id: id, topic: topic, handler: handler})
	L_debug("bus: subscribed", "topic", topic, "subscriptionID", id)
	return id
}

// SubscribeAll registers a handler for every topic (used by the websocket hub).
func SubscribeAll(handler EventHandler) SubscriptionID {
	return Subscribe("", handler)
}

// Unsubscribe removes a subscription by its ID.
// Returns true if the subscription was found and removed.
func Unsubscribe(id SubscriptionID) bool {
	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()

	for i, sub := range subscriptions {
		if sub.id == id {
			subscriptions = append(subscriptions[:i], subscriptions[i+1:]...)
			L_debug("bus: unsubscribed", "subscriptionID", id)
			return true
		}
	}
	return false
}

// Publish broadcasts an event to all subscribers of the topic.
// Handlers are called asynchronously in separate goroutines so a slow
// observer never stalls the connection state machine.
func Publish(topic string, data any) {
	event := Event{
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
	}

	subscriptionsMu.RLock()
	var matched []subscription
	for _, sub := range subscriptions {
		if sub.topic == "" || sub.topic == topic {
			matched = append(matched, sub)
		}
	}
	subscriptionsMu.RUnlock()

	if len(matched) == 0 {
		L_debug("bus: published (no subscribers)", "topic", topic)
		return
	}

	L_debug("bus: published", "topic", topic, "subscribers", len(matched))

	for _, sub := range matched {
		go func(s subscription) {
			defer func() {
				if r := recover(); r != nil {
					L_error("bus: handler panic", "topic", topic, "subscriptionID", s.id, "panic", r)
				}
			}()
			s.handler(event)
		}(sub)
	}
}

// SubscriberCount returns the number of subscribers matching a topic
func SubscriberCount(topic string) int {
	subscriptionsMu.RLock()
	defer subscriptionsMu.RUnlock()

	n := 0
	for _, sub := range subscriptions {
		if sub.topic == "" || sub.topic == topic {
			n++
		}
	}
	return n
}
