package telemetry

import (
	"context"
	"time"

	"recipe-realtime/internal/logging"
)

// RoutingKeyAuditChat is the routing key for chat audit envelopes.
const RoutingKeyAuditChat = "audit.chat"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEmitter publishes audit envelopes for user-initiated chat actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string            `json:"level"`
	Action string            `json:"action"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	if routingKey == "" {
		routingKey = RoutingKeyAuditChat
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// BuildEnvelope renders an audit envelope without publishing it.
func (e *AuditEmitter) BuildEnvelope(level, action, text, requestID string, userID *string, fields map[string]string) AuditEnvelope {
	return AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Action: action,
			Text:   text,
			Fields: fields,
		},
	}
}

// Emit publishes an audit envelope. Publish failures are logged only.
func (e *AuditEmitter) Emit(ctx context.Context, level, action, text, requestID string, userID *string, fields map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := e.BuildEnvelope(level, action, text, requestID, userID, fields)
	logging.Ctx(ctx).Debug().Str("action", action).Str("request_id", requestID).Msg("audit emit")

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("action", action).Msg("audit publish failed")
	}
}
