package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBus_PublishReachesOnlyTheTargetUser(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	alice, bob := uuid.New(), uuid.New()

	subA, err := bus.Subscribe(alice, SubscribeOptions{})
	require.NoError(t, err)
	subB, err := bus.Subscribe(bob, SubscribeOptions{})
	require.NoError(t, err)

	msg := &models.Message{ID: 7, Body: "hi"}
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventMessageCreated, UserID: alice, Message: msg}))

	ev := receive(t, subA)
	assert.Equal(t, EventMessageCreated, ev.Type)
	assert.Equal(t, int64(7), ev.Message.ID)

	select {
	case <-subB.Events():
		t.Fatal("bob should not receive alice's event")
	default:
	}
}

func TestBus_PublishRequiresUser(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	assert.Error(t, bus.Publish(context.Background(), Event{Type: EventMessageCreated}))
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	sub, err := bus.Subscribe(uuid.New(), SubscribeOptions{})
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after close must not panic on a closed channel.
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventMessageRead, UserID: sub.UserID()}))
}

func TestBus_DropsSlowSubscriber(t *testing.T) {
	bus := NewBus(nil, zap.NewNop(), WithBufferSize(1))
	user := uuid.New()

	slow, err := bus.Subscribe(user, SubscribeOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Event{Type: EventNotificationCreated, UserID: user}))
	require.NoError(t, bus.Publish(ctx, Event{Type: EventNotificationCreated, UserID: user}))

	// The buffered event is still readable, then the channel is closed.
	_, ok := <-slow.Events()
	assert.True(t, ok)
	_, ok = <-slow.Events()
	assert.False(t, ok)
}

func TestBus_IsViewing(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	user, chat := uuid.New(), uuid.New()

	assert.False(t, bus.IsViewing(user, chat))

	sub, err := bus.Subscribe(user, SubscribeOptions{ViewingChat: chat})
	require.NoError(t, err)
	assert.True(t, bus.IsViewing(user, chat))
	assert.False(t, bus.IsViewing(user, uuid.New()))

	sub.Close()
	assert.False(t, bus.IsViewing(user, chat))
}

func TestBus_CloseUser(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	user, other := uuid.New(), uuid.New()

	s1, _ := bus.Subscribe(user, SubscribeOptions{})
	s2, _ := bus.Subscribe(user, SubscribeOptions{})
	s3, _ := bus.Subscribe(other, SubscribeOptions{})

	bus.CloseUser(user)

	_, ok := <-s1.Events()
	assert.False(t, ok)
	_, ok = <-s2.Events()
	assert.False(t, ok)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventMessageRead, UserID: other}))
	receive(t, s3)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	sub, err := bus.Subscribe(uuid.New(), SubscribeOptions{})
	require.NoError(t, err)

	bus.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err = bus.Subscribe(uuid.New(), SubscribeOptions{})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBus_RunWithoutRedisStopsOnCancel(t *testing.T) {
	bus := NewBus(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
