package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"marketplace-chat/internal/models"
)

// JoinRoom joins the conversation room, leaving the previous one first. The
// room is re-joined automatically after a reconnect.
func (c *Client) JoinRoom(req models.JoinRoomRequest) error {
	roomID := roomOf(&req)

	// The requested room is recorded even when the emit fails so a
	// reconnect joins the latest selection.
	c.mu.Lock()
	prev := c.room
	c.room = &req
	c.mu.Unlock()
	if prev != nil {
		if prevID := roomOf(prev); prevID != roomID {
			if err := c.Emit(EmitLeaveRoom, map[string]string{"roomId": prevID}); err != nil {
				log.Printf("ws leave room failed room_id=%s: %v", prevID, err)
			}
		}
	}

	return c.Emit(EmitJoinRoom, req)
}

// LeaveRoom leaves the current room, if any.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	prev := c.room
	c.room = nil
	c.mu.Unlock()
	if prev == nil {
		return nil
	}
	return c.Emit(EmitLeaveRoom, map[string]string{"roomId": roomOf(prev)})
}

// CurrentRoom returns the joined room id, if any.
func (c *Client) CurrentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return roomOf(c.room)
}

// SendMessage emits a chat message.
func (c *Client) SendMessage(msg models.OutgoingMessage) error {
	return c.Emit(EmitSendMessage, msg)
}

// SendTyping emits typing_start or typing_stop.
func (c *Client) SendTyping(req models.TypingRequest, typing bool) error {
	if typing {
		return c.Emit(EmitTypingStart, req)
	}
	return c.Emit(EmitTypingStop, req)
}

// MarkAsRead emits mark_as_read. Callers throttle.
func (c *Client) MarkAsRead(req models.MarkAsReadRequest) error {
	return c.Emit(EmitMarkAsRead, req)
}

// GetBidNotifications asks for the bid notification list; the answer arrives
// as bid_notifications_list.
func (c *Client) GetBidNotifications(userID string) error {
	return c.Emit(EmitGetBidNotifications, map[string]string{"userId": userID})
}

// MarkBidNotificationsRead marks bid notifications read on the server.
func (c *Client) MarkBidNotificationsRead(userID string, ids []string) error {
	return c.Emit(EmitMarkBidNotificationsRead, map[string]any{
		"userId":          userID,
		"notificationIds": ids,
	})
}

// GetChatHistory fetches the history of one room. Histories for other rooms
// arriving meanwhile are ignored.
func (c *Client) GetChatHistory(ctx context.Context, req models.HistoryRequest) (models.ChatHistory, error) {
	roomID := req.Room()
	reply, err := c.Request(ctx, EmitGetChatHistory, req, []string{EventChatHistory}, func(_ string, data json.RawMessage) bool {
		var h models.ChatHistory
		if err := json.Unmarshal(data, &h); err != nil {
			return false
		}
		if h.RoomID != "" {
			return h.RoomID == roomID
		}
		if h.ProductID != "" && h.BuyerID != "" && h.SellerID != "" {
			return models.RoomID(h.ProductID, h.BuyerID, h.SellerID) == roomID
		}
		return true
	})
	if err != nil {
		return models.ChatHistory{}, fmt.Errorf("get chat history %s: %w", roomID, err)
	}

	var history models.ChatHistory
	if err := json.Unmarshal(reply.Data, &history); err != nil {
		return models.ChatHistory{}, fmt.Errorf("decode chat history: %w", err)
	}
	return history, nil
}

// GetRecentChats fetches the viewer's recent chats.
func (c *Client) GetRecentChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	reply, err := c.Request(ctx, EmitGetRecentChats, map[string]string{"userId": userID}, []string{EventRecentChats}, nil)
	if err != nil {
		return nil, fmt.Errorf("get recent chats: %w", err)
	}

	var wire []models.RecentChat
	if data := bytes.TrimSpace(reply.Data); len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &wire)
	} else {
		var resp models.RecentChatsResponse
		err = json.Unmarshal(data, &resp)
		wire = resp.Chats
	}
	if err != nil {
		return nil, fmt.Errorf("decode recent chats: %w", err)
	}

	chats := make([]models.ChatSummary, 0, len(wire))
	for _, rc := range wire {
		chats = append(chats, rc.Summary())
	}
	return chats, nil
}
