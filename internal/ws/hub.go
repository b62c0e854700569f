package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/events"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/models"
	"recipe-realtime/internal/observability"
	"recipe-realtime/internal/telemetry"
)

// Lifecycle routing keys.
const (
	RoutingKeyConnect    = "ws_events.connect"
	RoutingKeyDisconnect = "ws_events.disconnect"
)

// ChatOperations is the message store as used by the gateway.
type ChatOperations interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, error)
	MarkChatRead(ctx context.Context, chatID, readerID string) (int, error)
}

// PresenceStore persists the online flag of a user.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

// HubOptions tunes a Hub.
type HubOptions struct {
	// EventTimeout bounds the handling of one inbound event.
	EventTimeout time.Duration
	// PresenceTimeout bounds one online/offline write.
	PresenceTimeout time.Duration
	// Lifecycle receives connect/disconnect envelopes. Optional.
	Lifecycle events.Publisher
	// Audit records socket chat actions. Optional.
	Audit *telemetry.AuditEmitter
}

const presenceQueueSize = 1024

type presenceWrite struct {
	ctx    context.Context
	userID string
	online bool
}

// Hub is the realtime gateway: it owns the presence registry, handles inbound
// socket events and pushes server events to online users.
type Hub struct {
	registry        *Registry
	chats           ChatOperations
	presence        PresenceStore
	lifecycle       events.Publisher
	audit           *telemetry.AuditEmitter
	eventTimeout    time.Duration
	presenceTimeout time.Duration

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool

	// presence writes are applied in order by a single writer.
	presenceMu     sync.Mutex
	presenceQueue  chan presenceWrite
	presenceDone   chan struct{}
	presenceClosed bool
}

// NewHub creates a gateway. presence may be nil.
func NewHub(chats ChatOperations, presence PresenceStore, opts HubOptions) *Hub {
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = 5 * time.Second
	}
	h := &Hub{
		registry:        NewRegistry(),
		chats:           chats,
		presence:        presence,
		lifecycle:       opts.Lifecycle,
		audit:           opts.Audit,
		eventTimeout:    opts.EventTimeout,
		presenceTimeout: opts.PresenceTimeout,
		sessions:        make(map[*Session]struct{}),
		presenceQueue:   make(chan presenceWrite, presenceQueueSize),
		presenceDone:    make(chan struct{}),
	}
	go h.writePresence()
	return h
}

// Registry exposes the presence registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Subscribe wires the hub's push paths to the bus.
func (h *Hub) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TopicMessageSent, func(_ context.Context, payload any) {
		ev, ok := payload.(events.MessageSent)
		if !ok {
			return
		}
		h.Push(ev.RecipientID, EventNewMessage, ev.Message)
	})
	bus.Subscribe(events.TopicMessagesRead, func(_ context.Context, payload any) {
		ev, ok := payload.(events.MessagesRead)
		if !ok {
			return
		}
		h.Push(ev.CounterpartID, EventMessagesRead, MessagesReadPayload{ChatID: ev.ChatID, ReaderID: ev.ReaderID, Count: ev.Count})
	})
	bus.Subscribe(events.TopicNotificationCreated, func(_ context.Context, payload any) {
		ev, ok := payload.(events.NotificationCreated)
		if !ok {
			return
		}
		h.Push(ev.Notification.UserID, EventNotification, ev.Notification)
	})
}

// Push sends an event to the user's active connection. Offline users and full
// queues drop the event.
func (h *Hub) Push(userID, event string, data any) bool {
	conn, ok := h.registry.Resolve(userID)
	if !ok {
		observability.IncPush(event, "offline")
		return false
	}
	if err := conn.Send(event, data); err != nil {
		observability.IncPush(event, "dropped")
		logging.Debug().Err(err).Str("user_id", userID).Str("event", event).Msg("push dropped")
		return false
	}
	observability.IncPush(event, "delivered")
	observability.IncWSEvent("out", event)
	return true
}

// Connect registers a new anonymous session. It fails once the hub is shut down.
func (h *Hub) Connect(ctx context.Context, s *Session) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("gateway is shutting down")
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	observability.IncWSActive()
	observability.IncWSEvent("in", "ws_connect")
	h.publishLifecycle(ctx, RoutingKeyConnect, s, "")
	return nil
}

// Disconnect ends the session and releases its presence entry.
func (h *Hub) Disconnect(ctx context.Context, s *Session, reason string) {
	h.mu.Lock()
	_, tracked := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	s.end()
	if userID, ok := h.registry.Disconnect(s.conn); ok {
		h.setOnline(ctx, userID, false)
	}
	if !tracked {
		return
	}

	observability.DecWSActive()
	observability.IncWSEvent("in", "ws_disconnect")
	h.publishLifecycle(ctx, RoutingKeyDisconnect, s, reason)
}

// Shutdown closes every connection and clears the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	online := h.registry.ListOnline()
	h.registry.Clear()
	for _, s := range sessions {
		s.end()
		s.conn.Close()
	}
	for _, userID := range online {
		h.setOnline(context.Background(), userID, false)
	}
	h.drainPresence()
	logging.Info().Int("sessions", len(sessions)).Int("online", len(online)).Msg("gateway shut down")
}

// Dispatch handles one inbound frame. Failures are reported to the
// originating connection only.
func (h *Hub) Dispatch(ctx context.Context, s *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.sendError(ctx, s, "", fmt.Errorf("malformed frame: %w", apperr.ErrValidation))
		return
	}
	observability.IncWSEvent("in", env.Event)

	if s.State() == StateDisconnected {
		return
	}
	if env.Event != EventJoin && env.Event != EventPing && s.State() != StateJoined {
		h.sendError(ctx, s, env.Event, fmt.Errorf("join required: %w", apperr.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.eventTimeout)
	defer cancel()

	var err error
	switch env.Event {
	case EventJoin:
		err = h.handleJoin(ctx, s, env.Data)
	case EventLeave:
		h.handleLeave(ctx, s)
	case EventSendMessage:
		err = h.handleSendMessage(ctx, s, env.Data)
	case EventTyping:
		err = h.handleTyping(ctx, s, env.Data)
	case EventMarkAsRead:
		err = h.handleMarkAsRead(ctx, s, env.Data)
	case EventPing:
		h.reply(s, EventPong, PongPayload{Time: time.Now().UTC()})
	default:
		err = fmt.Errorf("unknown event %q: %w", env.Event, apperr.ErrValidation)
	}
	if err != nil {
		h.sendError(ctx, s, env.Event, err)
	}
}

func (h *Hub) handleJoin(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p JoinPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if auth := s.info.UserID; auth != "" && auth != p.UserID {
		return fmt.Errorf("cannot join as another user: %w", apperr.ErrForbidden)
	}

	prev, ok := s.join(p.UserID)
	if !ok {
		return nil
	}
	if prev != "" && prev != p.UserID {
		if current, found := h.registry.Resolve(prev); found && current == s.conn {
			h.registry.Leave(prev)
			h.setOnline(ctx, prev, false)
		}
	}
	h.registry.Join(p.UserID, s.conn)
	h.setOnline(ctx, p.UserID, true)

	logging.Ctx(ctx).Info().Str("user_id", p.UserID).Str("conn_id", s.info.ConnID).Msg("user joined")
	h.reply(s, EventJoined, JoinedPayload{UserID: p.UserID})
	return nil
}

func (h *Hub) handleLeave(ctx context.Context, s *Session) {
	userID := s.end()
	if current, found := h.registry.Resolve(userID); found && current == s.conn {
		h.registry.Leave(userID)
		h.setOnline(ctx, userID, false)
	}
	logging.Ctx(ctx).Info().Str("user_id", userID).Str("conn_id", s.info.ConnID).Msg("user left")
	s.conn.Close()
}

// actingUser resolves the user an event acts for. An explicit id must match
// the joined user.
func actingUser(s *Session, claimed string) (string, error) {
	joined := s.UserID()
	if claimed != "" && claimed != joined {
		return "", fmt.Errorf("cannot act as another user: %w", apperr.ErrForbidden)
	}
	return joined, nil
}

func (h *Hub) handleSendMessage(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p SendMessagePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	senderID, err := actingUser(s, p.SenderID)
	if err != nil {
		return err
	}

	msg, err := h.chats.SendMessage(ctx, p.ChatID, senderID, p.Content)
	if err != nil {
		return err
	}
	h.audit.Emit(ctx, "INFO", "chat.message", "message sent", logging.RequestIDFromContext(ctx), &senderID,
		map[string]string{"chat_id": msg.ChatID, "message_id": msg.ID, "conn_id": s.info.ConnID})
	h.reply(s, EventMessageSent, msg)
	return nil
}

func (h *Hub) handleTyping(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p TypingPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	userID, err := actingUser(s, p.UserID)
	if err != nil {
		return err
	}

	chat, err := h.chats.GetChat(ctx, p.ChatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return fmt.Errorf("not a chat participant: %w", apperr.ErrForbidden)
	}
	h.Push(chat.Counterpart(userID), EventUserTyping, UserTypingPayload{ChatID: chat.ID, UserID: userID, IsTyping: p.IsTyping})
	return nil
}

func (h *Hub) handleMarkAsRead(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p MarkAsReadPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	readerID, err := actingUser(s, p.UserID)
	if err != nil {
		return err
	}
	_, err = h.chats.MarkChatRead(ctx, p.ChatID, readerID)
	return err
}

func (h *Hub) reply(s *Session, event string, data any) {
	if err := s.conn.Send(event, data); err != nil {
		logging.Debug().Err(err).Str("conn_id", s.info.ConnID).Str("event", event).Msg("reply dropped")
		return
	}
	observability.IncWSEvent("out", event)
}

func (h *Hub) sendError(ctx context.Context, s *Session, event string, err error) {
	code := apperr.Code(err)
	l := logging.Ctx(ctx)
	if code == apperr.CodeInternal {
		l.Error().Err(err).Str("event", event).Str("conn_id", s.info.ConnID).Msg("socket event failed")
	} else {
		l.Debug().Err(err).Str("event", event).Str("conn_id", s.info.ConnID).Msg("socket event rejected")
	}
	h.reply(s, EventError, ErrorPayload{Code: code, Message: apperr.Message(err), Event: event})
}

// setOnline queues a presence write. Writes are persisted in call order.
func (h *Hub) setOnline(ctx context.Context, userID string, online bool) {
	if h.presence == nil || userID == "" {
		return
	}
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()
	if h.presenceClosed {
		return
	}
	h.presenceQueue <- presenceWrite{ctx: context.WithoutCancel(ctx), userID: userID, online: online}
}

func (h *Hub) writePresence() {
	defer close(h.presenceDone)
	for w := range h.presenceQueue {
		if h.presence == nil {
			continue
		}
		pctx, cancel := context.WithTimeout(w.ctx, h.presenceTimeout)
		if err := h.presence.SetOnline(pctx, w.userID, w.online); err != nil {
			logging.Warn().Err(err).Str("user_id", w.userID).Bool("online", w.online).Msg("presence update failed")
		}
		cancel()
	}
}

// drainPresence stops accepting presence writes and waits for queued ones.
func (h *Hub) drainPresence() {
	h.presenceMu.Lock()
	if !h.presenceClosed {
		h.presenceClosed = true
		close(h.presenceQueue)
	}
	h.presenceMu.Unlock()
	<-h.presenceDone
}

func (h *Hub) publishLifecycle(ctx context.Context, routingKey string, s *Session, reason string) {
	if h.lifecycle == nil {
		return
	}
	info := s.info
	durationMS := int64(0)
	if !info.ConnectedAt.IsZero() && routingKey == RoutingKeyDisconnect {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	eventName := "ws_connect"
	if routingKey == RoutingKeyDisconnect {
		eventName = "ws_disconnect"
	}

	envelope := observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  eventName,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       eventName,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}

	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.presenceTimeout)
		defer cancel()
		if err := h.lifecycle.Publish(pctx, routingKey, envelope); err != nil {
			observability.IncAMQPPublishError()
			logging.Warn().Err(err).Str("routing_key", routingKey).Msg("lifecycle publish failed")
		}
	}()
}
