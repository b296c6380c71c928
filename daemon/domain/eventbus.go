// Package domain provides core configuration and runtime-context types for
// the fleet manager, including the in-process event bus used to fan change
// notifications from the client registry out to the notification sink.
package domain

import "github.com/cskr/pubsub"

// EventBus is a type-safe publish/subscribe event bus built directly on
// cskr/pubsub.PubSub. It exposes cskr/pubsub's untyped API (Sub/Pub/Unsub)
// for multi-topic receivers, plus a typed generic API (Publish[T]/Topic[T])
// that catches publisher type mismatches at compile time.
//
// The router's change-detection handlers, the MQTT session and the
// supervisor publish dto.Notification values here; the notify.Sink
// subscribes and fans them out to delivery backends.
type EventBus struct {
	ps *pubsub.PubSub
}

// NewEventBus creates a new EventBus whose subscriber channels are buffered
// to bufferSize. If bufferSize is less than 1, it defaults to 1.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &EventBus{ps: pubsub.New(bufferSize)}
}

// Sub subscribes to one or more topics and returns a channel that receives
// messages published to any of those topics. The channel is shared across all
// requested topics, so a type switch is required when reading.
func (bus *EventBus) Sub(topics ...string) chan any {
	return bus.ps.Sub(topics...)
}

// Pub publishes msg to all subscribers of the given topics without blocking:
// a subscriber whose buffer is full simply misses the message, so a slow
// consumer can never stall a publisher.
// Argument order matches cskr/pubsub: data first, then topic(s).
func (bus *EventBus) Pub(msg any, topics ...string) {
	bus.ps.TryPub(msg, topics...)
}

// Unsub removes ch from the given topics. If no topics are specified,
// ch is removed from all topics. cskr/pubsub closes ch once it is no longer
// subscribed to any topic, unblocking any goroutine reading from it.
func (bus *EventBus) Unsub(ch chan any, topics ...string) {
	bus.ps.Unsub(ch, topics...)
}

// ---------------------------------------------------------------------------
// Typed generic API
// ---------------------------------------------------------------------------

// Topic is a typed topic identifier. The type parameter T documents (and
// enforces at compile time) what Go type is published on this topic.
type Topic[T any] struct {
	Name string
}

// NewTopic creates a typed topic with the given name.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{Name: name}
}

// Publish sends typed data to all subscribers of topic.
// Because topic carries type parameter T, passing the wrong data type is
// a compile-time error.
func Publish[T any](bus *EventBus, topic Topic[T], data T) {
	bus.Pub(data, topic.Name)
}

// topicNamer is satisfied by any Topic[T] and allows accepting mixed generic
// topic types in a single variadic argument list.
type topicNamer interface{ TopicName() string }

// TopicName returns the string name of the topic (implements topicNamer).
func (t Topic[T]) TopicName() string { return t.Name }

// SubTopics subscribes to one or more typed topics. It extracts the string
// name from each Topic[T] automatically, avoiding manual .Name access.
func (bus *EventBus) SubTopics(topics ...topicNamer) chan any {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.TopicName()
	}
	return bus.Sub(names...)
}
