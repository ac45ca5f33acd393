package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBroker(client)
}

func TestGroups(t *testing.T) {
	assert.Equal(t, "chat_12", ChatGroup(12))
	assert.Equal(t, "notifications_3", NotificationGroup(3))
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscribe(ctx, ChatGroup(1))
	require.NoError(t, err)
	defer sub.Close()

	other, err := b.Subscribe(ctx, ChatGroup(2))
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, b.Publish(ctx, ChatGroup(1), Event{Type: EventChatMessage, MsgID: 42}))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, EventChatMessage, ev.Type)
		assert.Equal(t, uint(42), ev.MsgID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other group: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriptionCloseEndsEvents(t *testing.T) {
	b := newTestBroker(t)
	sub, err := b.Subscribe(context.Background(), NotificationGroup(1))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestSubscriptionConcurrentClose(t *testing.T) {
	b := newTestBroker(t)
	sub, err := b.Subscribe(context.Background(), ChatGroup(7))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sub.Close()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}
