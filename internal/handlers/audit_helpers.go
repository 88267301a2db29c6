package handlers

import (
	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.EnsureRequestID(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// RequestIDMiddleware tags every request with an id and carries it into the
// request context so audit events can reuse it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := requestIDFromContext(c)
		c.Header(observability.RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(telemetry.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) string {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(string); ok {
			return userID
		}
	}
	return c.GetHeader("X-User-ID")
}
