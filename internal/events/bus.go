// Package events is the in-process bus the stores publish to after commit.
// Subscribers (the realtime gateway, the broker mirror) run after the store
// call has already succeeded, so a failing subscriber never undoes a write.
package events

import (
	"context"
	"sync"
	"time"

	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/models"
)

// Topics published on the bus. They double as AMQP routing keys.
const (
	TopicNotificationCreated = "notification.created"
	TopicMessageSent         = "message.sent"
	TopicMessagesRead        = "messages.read"
)

// NotificationCreated is published once per inserted (non-duplicate) notification.
type NotificationCreated struct {
	Notification models.Notification `json:"notification"`
}

// MessageSent is published after a message and its chat timestamp are committed.
type MessageSent struct {
	Message     models.Message `json:"message"`
	RecipientID string         `json:"recipientId"`
}

// MessagesRead is published after a reader marks a chat read.
type MessagesRead struct {
	ChatID        string `json:"chatId"`
	ReaderID      string `json:"readerId"`
	CounterpartID string `json:"counterpartId"`
	Count         int    `json:"count"`
}

// Handler consumes one event payload.
type Handler func(ctx context.Context, payload any)

// Publisher is the subset of the broker publisher the bus mirrors to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	mirror   Publisher
	timeout  time.Duration
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler), timeout: 5 * time.Second}
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Mirror forwards every published event to p asynchronously.
func (b *Bus) Mirror(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = p
}

// Publish runs the topic's handlers and then hands the event to the mirror.
// Handler panics are recovered and logged.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[topic]...)
	mirror := b.mirror
	b.mu.RUnlock()

	for _, h := range handlers {
		b.run(ctx, topic, h, payload)
	}

	if mirror != nil {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		go func() {
			defer cancel()
			if err := mirror.Publish(mctx, topic, payload); err != nil {
				logging.Warn().Err(err).Str("topic", topic).Msg("event mirror publish failed")
			}
		}()
	}
}

func (b *Bus) run(ctx context.Context, topic string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("topic", topic).Msg("event handler panicked")
		}
	}()
	h(ctx, payload)
}
