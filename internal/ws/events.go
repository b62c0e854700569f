package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"recipe-realtime/internal/apperr"
)

// Client to server events.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventMarkAsRead  = "markAsRead"
	EventPing        = "ping"
)

// Server to client events.
const (
	EventJoined       = "joined"
	EventNewMessage   = "newMessage"
	EventMessageSent  = "messageSent"
	EventUserTyping   = "userTyping"
	EventMessagesRead = "messagesRead"
	EventNotification = "notification"
	EventError        = "error"
	EventPong         = "pong"
)

// Envelope is one socket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// EncodeFrame renders an outbound frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// JoinPayload accepts either a bare user id string or {"userId": "..."}.
type JoinPayload struct {
	UserID string `json:"userId" validate:"required"`
}

func (p *JoinPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.UserID)
	}
	type plain JoinPayload
	return json.Unmarshal(data, (*plain)(p))
}

type SendMessagePayload struct {
	ChatID   string `json:"chatId" validate:"required"`
	SenderID string `json:"senderId,omitempty"`
	Content  string `json:"content" validate:"required"`
}

type TypingPayload struct {
	ChatID   string `json:"chatId" validate:"required"`
	UserID   string `json:"userId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type MarkAsReadPayload struct {
	ChatID string `json:"chatId" validate:"required"`
	UserID string `json:"userId,omitempty"`
}

type JoinedPayload struct {
	UserID string `json:"userId"`
}

type UserTypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type MessagesReadPayload struct {
	ChatID   string `json:"chatId"`
	ReaderID string `json:"readerId"`
	Count    int    `json:"count"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type PongPayload struct {
	Time time.Time `json:"time"`
}

var validate = validator.New()

// decodePayload unmarshals and validates an inbound payload.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload: %w", apperr.ErrValidation)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", apperr.ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), apperr.ErrValidation)
	}
	return nil
}
