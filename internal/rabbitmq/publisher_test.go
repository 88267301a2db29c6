package rabbitmq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/telemetry"
)

func TestNewPublisherEmptyURLIsNoop(t *testing.T) {
	pub := NewPublisher("", "chat.events")

	assert.Equal(t, "noop", PublisherMode(pub))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(pub))
	assert.NoError(t, pub.Publish(context.Background(), "chat.audit", telemetry.AuditEnvelope{EventType: "audit_log"}))
	assert.NoError(t, pub.PublishJSON(context.Background(), "ws_events.backend", observability.EventEnvelope{EventName: "ws_connect"}, nil))
	assert.NoError(t, pub.Close())
}
