package observability

import (
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// EnsureRequestID returns the request's id, generating one when absent.
func EnsureRequestID(r *http.Request) string {
	if id := RequestIDFromRequest(r); id != "" {
		return id
	}
	return uuid.NewString()
}
