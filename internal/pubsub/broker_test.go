package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("with cancellable context", func(t *testing.T) {
		t.Parallel()
		broker := NewBroker[string]()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch := broker.Subscribe(ctx)
		assert.NotNil(t, ch)
		assert.Equal(t, 1, broker.GetSubscriberCount())

		cancel()
		assert.Eventually(t, func() bool {
			return broker.GetSubscriberCount() == 0
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("after shutdown", func(t *testing.T) {
		t.Parallel()
		broker := NewBroker[string]()
		broker.Shutdown()

		ch := broker.Subscribe(context.Background())
		_, ok := <-ch
		assert.False(t, ok, "subscribing to a closed broker yields a closed channel")
	})
}

func TestBrokerPublish(t *testing.T) {
	t.Parallel()
	broker := NewBroker[string]()

	ch := broker.Subscribe(t.Context())
	broker.Publish(EventTypeCreated, "node-1")

	select {
	case event := <-ch:
		assert.Equal(t, EventTypeCreated, event.Type)
		assert.Equal(t, "node-1", event.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestBrokerListen(t *testing.T) {
	t.Parallel()

	t.Run("runs before publish returns", func(t *testing.T) {
		t.Parallel()
		broker := NewBroker[int]()

		var got []Event[int]
		broker.Listen(func(e Event[int]) { got = append(got, e) })

		broker.Publish(EventTypeCreated, 1)
		broker.Publish(EventTypeDeleted, 1)

		require.Len(t, got, 2)
		assert.Equal(t, EventTypeCreated, got[0].Type)
		assert.Equal(t, EventTypeDeleted, got[1].Type)
	})

	t.Run("registration order", func(t *testing.T) {
		t.Parallel()
		broker := NewBroker[int]()

		var order []string
		broker.Listen(func(Event[int]) { order = append(order, "first") })
		broker.Listen(func(Event[int]) { order = append(order, "second") })
		broker.Publish(EventTypeUpdated, 0)

		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("unlisten", func(t *testing.T) {
		t.Parallel()
		broker := NewBroker[int]()

		calls := 0
		unlisten := broker.Listen(func(Event[int]) { calls++ })
		assert.Equal(t, 1, broker.GetListenerCount())

		broker.Publish(EventTypeCreated, 0)
		unlisten()
		broker.Publish(EventTypeCreated, 0)

		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, broker.GetListenerCount())
	})

	t.Run("listener may publish", func(t *testing.T) {
		t.Parallel()
		broker := NewBroker[int]()

		var seen []int
		broker.Listen(func(e Event[int]) {
			seen = append(seen, e.Payload)
			if e.Payload == 1 {
				broker.Publish(EventTypeCreated, 2)
			}
		})
		broker.Publish(EventTypeCreated, 1)

		assert.Equal(t, []int{1, 2}, seen)
	})
}

func TestBrokerShutdown(t *testing.T) {
	t.Parallel()
	broker := NewBroker[string]()

	ch1 := broker.Subscribe(context.Background())
	ch2 := broker.Subscribe(context.Background())
	broker.Listen(func(Event[string]) { t.Error("listener called after shutdown") })

	assert.Equal(t, 2, broker.GetSubscriberCount())

	broker.Shutdown()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1, "channel 1 should be closed")
	assert.False(t, ok2, "channel 2 should be closed")
	assert.Equal(t, 0, broker.GetSubscriberCount())
	assert.Equal(t, 0, broker.GetListenerCount())

	broker.Publish(EventTypeCreated, "ignored")
}

func TestBrokerConcurrency(t *testing.T) {
	t.Parallel()
	broker := NewBroker[int]()

	const numSubscribers = 50
	var ready, done sync.WaitGroup
	ready.Add(numSubscribers)
	done.Add(numSubscribers)

	received := make(chan int, numSubscribers)

	for i := range numSubscribers {
		go func(id int) {
			defer done.Done()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch := broker.Subscribe(ctx)
			ready.Done()

			select {
			case event := <-ch:
				received <- event.Payload
			case <-time.After(time.Second):
				t.Errorf("timeout waiting for event %d", id)
			}
		}(i)
	}

	ready.Wait()
	broker.Publish(EventTypeCreated, 7)
	done.Wait()
	close(received)

	count := 0
	for payload := range received {
		assert.Equal(t, 7, payload)
		count++
	}
	assert.Equal(t, numSubscribers, count)

	assert.Eventually(t, func() bool {
		return broker.GetSubscriberCount() == 0
	}, time.Second, 5*time.Millisecond)
}
