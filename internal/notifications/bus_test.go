package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"socialgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func requestEvent(t EventType, sender, receiver string) Event {
	req := models.FriendRequest{
		ID:          models.RequestID(sender, receiver),
		SenderUID:   sender,
		ReceiverUID: receiver,
		Status:      models.RequestStatusPending,
	}
	return NewRequestEvent(t, req, time.Now().UTC())
}

func TestBus_FiltersByParticipant(t *testing.T) {
	bus := NewBus(8)
	alice := bus.SubscribeUser("test", "alice")
	carol := bus.SubscribeUser("test", "carol")
	defer alice.Unsubscribe()
	defer carol.Unsubscribe()

	bus.Publish(context.Background(), requestEvent(EventRequestCreated, "alice", "bob"))

	select {
	case ev := <-alice.Events():
		assert.Equal(t, EventRequestCreated, ev.Type)
		assert.Equal(t, []string{"alice", "bob"}, ev.Participants)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(testEventuallyTimeout):
		t.Fatal("alice did not receive her event")
	}

	assert.Never(t, func() bool { return len(carol.Events()) > 0 }, 10*testPollInterval, testPollInterval)
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe("test", nil)
	assert.Equal(t, 1, bus.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, bus.Len())

	_, open := <-sub.Events()
	assert.False(t, open)

	// publishing after cancellation must not panic
	bus.Publish(context.Background(), requestEvent(EventRequestCreated, "a", "b"))
}

func TestBus_SlowSubscriberGetsDegradedMarker(t *testing.T) {
	bus := NewBus(2)
	slow := bus.Subscribe("slow", nil)
	defer slow.Unsubscribe()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		bus.Publish(ctx, requestEvent(EventRequestCreated, "a", "b"))
	}
	assert.Equal(t, int64(3), slow.Dropped())

	<-slow.Events()
	<-slow.Events()

	bus.Publish(ctx, requestEvent(EventRequestCancelled, "a", "b"))

	marker := <-slow.Events()
	assert.Equal(t, EventStreamDegraded, marker.Type)
	assert.Equal(t, int64(3), marker.Dropped)

	next := <-slow.Events()
	assert.Equal(t, EventRequestCancelled, next.Type)
	assert.Zero(t, slow.Dropped())
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	stuck := bus.Subscribe("stuck", nil)
	defer stuck.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(context.Background(), requestEvent(EventRequestCreated, "a", "b"))
		}
	}()

	select {
	case <-done:
	case <-time.After(testEventuallyTimeout):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBus_ConcurrentUnsubscribeAndPublish(t *testing.T) {
	bus := NewBus(4)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sub := bus.Subscribe("race", nil)
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), requestEvent(EventRequestCreated, "a", "b"))
		}()
		go func() {
			defer wg.Done()
			sub.Unsubscribe()
		}()
	}
	wg.Wait()
	require.Equal(t, 0, bus.Len())
}

func TestBus_CloseCancelsAll(t *testing.T) {
	bus := NewBus(1)
	a := bus.Subscribe("a", nil)
	b := bus.Subscribe("b", nil)
	bus.Close()

	_, openA := <-a.Events()
	_, openB := <-b.Events()
	assert.False(t, openA)
	assert.False(t, openB)
	assert.Equal(t, 0, bus.Len())
}
