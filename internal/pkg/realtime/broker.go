// Package realtime fans chat and notification events out to websocket
// connections through Redis pub/sub, so every app instance sees every event.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	EventChatMessage      = "chat_message"
	EventSendNotification = "send_notification"
)

const channelPrefix = "realtime:"

// Event is the envelope published to a group.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	MsgID   uint   `json:"msg_id,omitempty"`
}

func ChatGroup(dataSourceID uint) string {
	return fmt.Sprintf("chat_%d", dataSourceID)
}

func NotificationGroup(userID uint) string {
	return fmt.Sprintf("notifications_%d", userID)
}

// Publisher is the write side, used by services that only push events.
type Publisher interface {
	Publish(ctx context.Context, group string, ev Event) error
}

// Broker publishes and subscribes over Redis pub/sub.
type Broker struct {
	client *redis.Client
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func (b *Broker) Publish(ctx context.Context, group string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channelPrefix+group, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", group, err)
	}
	return nil
}

// Subscription delivers decoded events until Close is called or ctx ends.
type Subscription struct {
	ps     *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
	err    error
}

// Subscribe blocks until Redis confirms the subscription.
func (b *Broker) Subscribe(ctx context.Context, group string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, channelPrefix+group)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", group, err)
	}

	s := &Subscription{ps: ps, events: make(chan Event, 16), done: make(chan struct{})}
	go s.pump(ctx, group)
	return s, nil
}

func (s *Subscription) pump(ctx context.Context, group string) {
	defer close(s.events)
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Warnf("[Realtime] dropping malformed event on %s: %v", group, err)
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close is safe to call more than once and from several goroutines.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
