package ws

import (
	"encoding/json"
	"log"

	"marketplace-chat/internal/models"
)

func onTyped[T any](c *Client, event string, fn func(T)) func() {
	return c.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			log.Printf("ws payload decode failed event=%s: %v", event, err)
			return
		}
		fn(v)
	})
}

func (c *Client) OnReceiveMessage(fn func(models.IncomingMessage)) func() {
	return onTyped(c, EventReceiveMessage, fn)
}

func (c *Client) OnRecentChatUpdate(fn func(models.ChatPatch)) func() {
	return onTyped(c, EventRecentChatUpdate, fn)
}

func (c *Client) OnLastMessageUpdate(fn func(models.LastMessageUpdate)) func() {
	return onTyped(c, EventChatLastMessageUpdate, fn)
}

func (c *Client) OnUserOnline(fn func(models.PresenceEvent)) func() {
	return onTyped(c, EventUserOnline, fn)
}

func (c *Client) OnUserOffline(fn func(models.PresenceEvent)) func() {
	return onTyped(c, EventUserOffline, fn)
}

func (c *Client) OnCloseDealRequest(fn func(models.DealEvent)) func() {
	return onTyped(c, EventCloseDealRequest, fn)
}

func (c *Client) OnDealResolution(fn func(models.DealEvent)) func() {
	return onTyped(c, EventCloseDealResolution, fn)
}

func (c *Client) OnDealClosed(fn func(models.DealEvent)) func() {
	return onTyped(c, EventDealClosed, fn)
}

// Notification-shaped events are handed over raw for the normalizer.

func (c *Client) OnProductNotification(fn func(map[string]any)) func() {
	return onTyped(c, EventProductNotification, fn)
}

func (c *Client) OnNewBid(fn func(map[string]any)) func() {
	return onTyped(c, EventNewBid, fn)
}

func (c *Client) OnChatRating(fn func(map[string]any)) func() {
	return onTyped(c, EventChatRating, fn)
}

func (c *Client) OnNewMessageNotification(fn func(map[string]any)) func() {
	return onTyped(c, EventNewMessageNotification, fn)
}

// OnBidNotifications accepts either a bare list or {"notifications": [...]}.
func (c *Client) OnBidNotifications(fn func([]map[string]any)) func() {
	return c.On(EventBidNotificationsList, func(data json.RawMessage) {
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err == nil {
			fn(list)
			return
		}
		var wrapped struct {
			Notifications []map[string]any `json:"notifications"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			log.Printf("ws payload decode failed event=%s: %v", EventBidNotificationsList, err)
			return
		}
		fn(wrapped.Notifications)
	})
}
