package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Deal audit actions.
const (
	ActionDealProposed = "deal_proposed"
	ActionDealAccepted = "deal_accepted"
	ActionDealRejected = "deal_rejected"
	ActionChatRated    = "chat_rated"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

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
	Level  string  `json:"level"`
	Action string  `json:"action"`
	Text   string  `json:"text"`
	RoomID string  `json:"room_id,omitempty"`
	DealID string  `json:"deal_id,omitempty"`
	Budget float64 `json:"budget,omitempty"`
	Rating int     `json:"rating,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request id for audit correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the request id carried by ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func (e *AuditEmitter) Emit(ctx context.Context, userID string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}
	if payload.Level == "" {
		payload.Level = "info"
	}
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	var user *string
	if userID != "" {
		user = &userID
	}

	log.Printf("audit emit: action=%s request_id=%s user_id=%s room_id=%s text=%q", payload.Action, requestID, userID, payload.RoomID, payload.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        user,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
