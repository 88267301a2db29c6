package observability

import (
	"context"
	"log"
	"time"
)

// Lifecycle event names published for the backend connection.
const (
	EventWSConnect    = "ws_connect"
	EventWSDisconnect = "ws_disconnect"
	EventWSError      = "ws_error"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// ConnectionEvent is the payload of a lifecycle event.
type ConnectionEvent struct {
	ConnID     string `json:"conn_id"`
	UserID     string `json:"user_id,omitempty"`
	URL        string `json:"url"`
	Attempt    int    `json:"attempt,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// PublishLifecycle publishes a connection lifecycle event. Failures are logged only.
func PublishLifecycle(ctx context.Context, name string, payload ConnectionEvent, traceID string) {
	envelope := EventEnvelope{
		EventType:  "ws_events",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
	if err := PublishEvent(ctx, "ws_events.backend", envelope, BuildHeaders(payload.ConnID, traceID)); err != nil {
		log.Printf("lifecycle publish failed event=%s: %v", name, err)
	}
}
