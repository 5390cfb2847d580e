package pubsub

import "context"

type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

type Event[T any] struct {
	Type    EventType
	Payload T
}

// Handler consumes an event synchronously on the publisher's goroutine.
type Handler[T any] func(Event[T])

type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

type Listener[T any] interface {
	Listen(fn Handler[T]) (unlisten func())
}

type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
