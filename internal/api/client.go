package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Endpoint, e.Status, e.Message)
}

// Client calls the marketplace REST backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client with an otelhttp-instrumented transport.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// CloseDeal proposes closing at a final budget.
func (c *Client) CloseDeal(ctx context.Context, req models.CloseDealRequest) (models.DealClosure, error) {
	var closure models.DealClosure
	err := c.do(ctx, http.MethodPost, "/requirement/close-deal", req, &closure)
	return closure, err
}

// CheckClosedDeal returns the current deal of a conversation. No deal is a
// closure with status none.
func (c *Client) CheckClosedDeal(ctx context.Context, key models.DealKey) (models.DealClosure, error) {
	var resp struct {
		models.DealClosure
		DealID   string              `json:"dealId"`
		IsClosed bool                `json:"isClosed"`
		Deal     *models.DealClosure `json:"deal"`
	}
	if err := c.do(ctx, http.MethodPost, "/requirement/closed-deal-check", key, &resp); err != nil {
		return models.DealClosure{}, err
	}

	closure := resp.DealClosure
	if resp.Deal != nil {
		closure = *resp.Deal
	}
	if closure.DealID == "" {
		closure.DealID = resp.DealID
	}
	if closure.Status == "" {
		closure.Status = models.DealNone
		if resp.IsClosed {
			closure.Status = models.DealAccepted
		}
	}
	return closure, nil
}

// RespondToCloseDeal accepts or rejects a pending deal.
func (c *Client) RespondToCloseDeal(ctx context.Context, req models.RespondDealRequest) (models.DealClosure, error) {
	var closure models.DealClosure
	err := c.do(ctx, http.MethodPost, "/requirement/respond-close-deal", req, &closure)
	return closure, err
}

// GetRequirement fetches a requirement document as sent by the backend.
func (c *Client) GetRequirement(ctx context.Context, id string) (map[string]any, error) {
	var doc map[string]any
	err := c.do(ctx, http.MethodGet, "/requirement/get-requirement/"+url.PathEscape(id), nil, &doc)
	return doc, err
}

// GetBidNotifications fetches the persisted bid notifications.
func (c *Client) GetBidNotifications(ctx context.Context) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/requirement/bid-notifications", nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var list []map[string]any
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode bid notifications: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Notifications []map[string]any `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode bid notifications: %w", err)
	}
	return wrapped.Notifications, nil
}

// DeleteNotification removes a persisted notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/product/notifications/"+url.PathEscape(id), nil, nil)
}

// MarkNotificationsSeen flags persisted notifications as seen.
func (c *Client) MarkNotificationsSeen(ctx context.Context, ids []string) error {
	body := map[string][]string{"notificationIds": ids}
	return c.do(ctx, http.MethodPost, "/product/notifications/mark-seen", body, nil)
}

// RateChat submits a rating for a chat.
func (c *Client) RateChat(ctx context.Context, req models.RateChatRequest) error {
	return c.do(ctx, http.MethodPost, "/chat/rate", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	endpoint := method + " " + endpointName(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.IncRESTRequest(endpoint, 0)
		log.Printf("rest call failed endpoint=%q: %v", endpoint, err)
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	observability.IncRESTRequest(endpoint, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Endpoint: endpoint, Status: resp.StatusCode, Message: errorMessage(data)}
		log.Printf("rest call rejected endpoint=%q status=%d message=%q", endpoint, resp.StatusCode, statusErr.Message)
		return statusErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrap(data), out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// unwrap returns the "data" member of an envelope, or data itself.
func unwrap(data []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return data
	}
	inner, ok := env["data"]
	if !ok || bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		return data
	}
	return inner
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

// endpointName keeps metric labels bounded by dropping trailing ids.
func endpointName(path string) string {
	switch {
	case strings.HasPrefix(path, "/requirement/get-requirement/"):
		return "/requirement/get-requirement/:id"
	case strings.HasPrefix(path, "/product/notifications/") && path != "/product/notifications/mark-seen":
		return "/product/notifications/:id"
	}
	return path
}
