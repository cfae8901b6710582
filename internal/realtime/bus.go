package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventType string

const (
	EventMessageCreated      EventType = "message.created"
	EventMessageRead         EventType = "message.read"
	EventNotificationCreated EventType = "notification.created"
)

// Event is one push to one user. Delivery is at-least-once with no ordering
// across users, so clients treat events as hints and refetch.
type Event struct {
	Type         EventType            `json:"type"`
	UserID       uuid.UUID            `json:"user_id"`
	Message      *models.Message      `json:"message,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

var ErrBusClosed = errors.New("realtime bus closed")

const (
	channelPrefix     = "collab:user:"
	defaultBufferSize = 64
)

func channelFor(userID uuid.UUID) string {
	return channelPrefix + userID.String()
}

// Bus fans events out to the subscriptions of each user.
//
// With Redis, Publish goes through PUBLISH and every instance's Run loop
// dispatches what it hears to its own subscribers, so a user connected to
// another instance still gets the event. Without Redis, Publish dispatches
// in-process.
type Bus struct {
	rdb        *redis.Client
	logger     *zap.Logger
	bufferSize int

	mu     sync.Mutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	closed bool
}

type Option func(*Bus)

// WithBufferSize sets the per-subscription queue length. A subscriber that
// falls this far behind is dropped.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBus builds a bus. rdb may be nil for a single-process deployment.
func NewBus(rdb *redis.Client, logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		rdb:        rdb,
		logger:     logger,
		bufferSize: defaultBufferSize,
		subs:       make(map[uuid.UUID]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SubscribeOptions describe what the subscriber is looking at.
type SubscribeOptions struct {
	// ViewingChat marks the user as present in this chat. uuid.Nil means none.
	ViewingChat uuid.UUID
}

func (b *Bus) Subscribe(userID uuid.UUID, opts SubscribeOptions) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &Subscription{
		bus:         b,
		userID:      userID,
		viewingChat: opts.ViewingChat,
		ch:          make(chan Event, b.bufferSize),
	}
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[userID] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// Publish delivers ev to ev.UserID on every instance.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.UserID == uuid.Nil {
		return fmt.Errorf("publish %s: missing user id", ev.Type)
	}
	if b.rdb == nil {
		b.dispatch(ev)
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if err := b.rdb.Publish(ctx, channelFor(ev.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Run bridges Redis to local subscribers until ctx is cancelled. Without
// Redis it just waits.
func (b *Bus) Run(ctx context.Context) error {
	if b.rdb == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription confirmation so publishes after Run starts
	// aren't missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s*: %w", channelPrefix, err)
	}
	b.logger.Info("realtime listener started", zap.String("pattern", channelPrefix+"*"))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("dropping undecodable event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if ev.UserID.String() != strings.TrimPrefix(msg.Channel, channelPrefix) {
				b.logger.Warn("dropping event published on the wrong channel", zap.String("channel", msg.Channel))
				continue
			}
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[ev.UserID] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping slow subscriber",
				zap.String("user_id", ev.UserID.String()),
				zap.String("event", string(ev.Type)),
			)
			b.removeLocked(sub)
		}
	}
}

// IsViewing reports whether any of userID's subscriptions is open on chatID.
func (b *Bus) IsViewing(userID, chatID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[userID] {
		if sub.viewingChat == chatID {
			return true
		}
	}
	return false
}

// CloseUser ends every subscription userID holds on this instance.
func (b *Bus) CloseUser(userID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[userID] {
		b.removeLocked(sub)
	}
}

// Close ends all subscriptions and refuses new ones.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			b.removeLocked(sub)
		}
	}
}

// removeLocked must be called with b.mu held. Closing the channel happens
// here and only here, so a send can never race a close.
func (b *Bus) removeLocked(sub *Subscription) {
	set, ok := b.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, sub.userID)
	}
}

// Subscription is one consumer's event stream. The channel is closed when the
// subscription ends for any reason.
type Subscription struct {
	bus         *Bus
	userID      uuid.UUID
	viewingChat uuid.UUID
	ch          chan Event
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) UserID() uuid.UUID {
	return s.userID
}

// Close is idempotent.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.removeLocked(s)
}
