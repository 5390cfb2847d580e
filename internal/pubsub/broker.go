package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultChannelBufferSize = 100

// Broker fans events out to two kinds of consumers. Listeners registered with
// Listen run synchronously inside Publish, in registration order, so a
// publisher observes their side effects as soon as Publish returns. Channel
// subscribers receive the same events asynchronously.
type Broker[T any] struct {
	subs      map[chan Event[T]]context.CancelFunc
	listeners []*listener[T]
	mu        sync.RWMutex
	isClosed  bool
}

type listener[T any] struct {
	fn Handler[T]
}

func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]context.CancelFunc),
	}
}

func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	if b.isClosed {
		b.mu.Unlock()
		return
	}
	b.isClosed = true

	for ch, cancel := range b.subs {
		cancel()
		close(ch)
		delete(b.subs, ch)
	}
	b.listeners = nil
	b.mu.Unlock()
	slog.Debug("PubSub broker shut down", "type", fmt.Sprintf("%T", *new(T)))
}

func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		closedCh := make(chan Event[T])
		close(closedCh)
		return closedCh
	}

	subCtx, subCancel := context.WithCancel(ctx)
	subscriberChannel := make(chan Event[T], defaultChannelBufferSize)
	b.subs[subscriberChannel] = subCancel

	go func() {
		<-subCtx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[subscriberChannel]; ok {
			close(subscriberChannel)
			delete(b.subs, subscriberChannel)
		}
	}()

	return subscriberChannel
}

// Listen registers fn to be called synchronously for every published event.
// The returned function removes the listener.
func (b *Broker[T]) Listen(fn Handler[T]) (unlisten func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed {
		return func() {}
	}

	l := &listener[T]{fn: fn}
	b.listeners = append(b.listeners, l)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, existing := range b.listeners {
			if existing == l {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

func (b *Broker[T]) Publish(eventType EventType, payload T) {
	b.mu.RLock()
	if b.isClosed {
		b.mu.RUnlock()
		slog.Warn("Attempted to publish on a closed pubsub broker", "type", eventType, "payload_type", fmt.Sprintf("%T", payload))
		return
	}
	// Listeners may publish again or unlisten, so run them on a copy and
	// without holding the lock.
	listeners := make([]*listener[T], len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	event := Event[T]{Type: eventType, Payload: payload}

	for _, l := range listeners {
		l.fn(event)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; hand off to a goroutine so the publisher never
			// blocks. Delivery order for this subscriber is not guaranteed.
			go func(sChan chan Event[T], ev Event[T]) {
				b.mu.RLock()
				isBrokerClosed := b.isClosed
				b.mu.RUnlock()
				if isBrokerClosed {
					return
				}

				select {
				case sChan <- ev:
				case <-time.After(2 * time.Second):
					slog.Warn("PubSub: Dropped event for slow subscriber after timeout", "type", ev.Type)
				}
			}(ch, event)
		}
	}
}

func (b *Broker[T]) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker[T]) GetListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
