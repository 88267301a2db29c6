package models

import "time"

// AttachmentKind classifies an attachment for rendering.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is an uploaded file referenced by a message.
type Attachment struct {
	URL      string         `json:"url"`
	Type     AttachmentKind `json:"type"`
	MimeType string         `json:"mimeType"`
	FileName string         `json:"fileName"`
	FileSize int64          `json:"fileSize,omitempty"`
}

// Message is one entry of a room's message list.
type Message struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	SenderID     string      `json:"senderId"`
	SenderType   Role        `json:"senderType"`
	Timestamp    time.Time   `json:"timestamp"`
	Attachment   *Attachment `json:"attachment,omitempty"`
	IsOptimistic bool        `json:"isOptimistic,omitempty"`
}

// IncomingMessage is the receive_message payload.
type IncomingMessage struct {
	ID                string       `json:"_id"`
	AltID             string       `json:"id"`
	RoomID            string       `json:"roomId"`
	ProductID         string       `json:"productId"`
	BuyerID           string       `json:"buyerId"`
	SellerID          string       `json:"sellerId"`
	Message           string       `json:"message"`
	SenderID          string       `json:"senderId"`
	SenderType        Role         `json:"senderType"`
	Timestamp         time.Time    `json:"timestamp"`
	Attachment        *Attachment  `json:"attachment,omitempty"`
	LastMessage       *LastMessage `json:"lastMessage,omitempty"`
	BuyerUnreadCount  *int         `json:"buyerUnreadCount,omitempty"`
	SellerUnreadCount *int         `json:"sellerUnreadCount,omitempty"`
}

// Room returns the payload's room id, deriving the canonical one when absent.
func (m IncomingMessage) Room() string {
	if m.RoomID != "" {
		return m.RoomID
	}
	return RoomID(m.ProductID, m.BuyerID, m.SellerID)
}

// ServerID returns whichever id the server attached.
func (m IncomingMessage) ServerID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.AltID
}

// Snapshot builds the last-message snapshot for this payload.
func (m IncomingMessage) Snapshot() LastMessage {
	if m.LastMessage != nil {
		return *m.LastMessage
	}
	return LastMessage{
		Message:    m.Message,
		Timestamp:  m.Timestamp,
		SenderID:   m.SenderID,
		SenderType: m.SenderType,
	}
}

// ToMessage converts the payload into a confirmed message.
func (m IncomingMessage) ToMessage() Message {
	return Message{
		ID:         m.ServerID(),
		Text:       m.Message,
		SenderID:   m.SenderID,
		SenderType: m.SenderType,
		Timestamp:  m.Timestamp,
		Attachment: m.Attachment,
	}
}

// OutgoingMessage is the send_message payload.
type OutgoingMessage struct {
	ProductID  string      `json:"productId"`
	SellerID   string      `json:"sellerId"`
	BuyerID    string      `json:"buyerId,omitempty"`
	Message    string      `json:"message"`
	SenderID   string      `json:"senderId"`
	SenderType Role        `json:"senderType"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// HistoryMessage is one message in a chat_history payload.
type HistoryMessage struct {
	ID         string      `json:"_id"`
	Message    string      `json:"message"`
	SenderID   string      `json:"senderId"`
	SenderType Role        `json:"senderType"`
	Timestamp  time.Time   `json:"timestamp"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// ChatHistory is the chat_history payload.
type ChatHistory struct {
	RoomID            string           `json:"roomId,omitempty"`
	ProductID         string           `json:"productId,omitempty"`
	BuyerID           string           `json:"buyerId,omitempty"`
	SellerID          string           `json:"sellerId,omitempty"`
	Messages          []HistoryMessage `json:"messages"`
	LastMessage       *LastMessage     `json:"lastMessage,omitempty"`
	BuyerUnreadCount  int              `json:"buyerUnreadCount"`
	SellerUnreadCount int              `json:"sellerUnreadCount"`
}

// LastMessageUpdate is the chat_last_message_update payload.
type LastMessageUpdate struct {
	RoomID            string       `json:"roomId"`
	ProductID         string       `json:"productId"`
	BuyerID           string       `json:"buyerId"`
	SellerID          string       `json:"sellerId"`
	LastMessage       *LastMessage `json:"lastMessage"`
	BuyerUnreadCount  *int         `json:"buyerUnreadCount,omitempty"`
	SellerUnreadCount *int         `json:"sellerUnreadCount,omitempty"`
}

// Room returns the payload's room id, deriving the canonical one when absent.
func (u LastMessageUpdate) Room() string {
	if u.RoomID != "" {
		return u.RoomID
	}
	return RoomID(u.ProductID, u.BuyerID, u.SellerID)
}

// PresenceEvent is the user_online / user_offline payload.
type PresenceEvent struct {
	UserID string `json:"userId"`
}

// JoinRoomRequest is the join_room payload.
type JoinRoomRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	UserType  Role   `json:"userType"`
	BuyerID   string `json:"buyerId,omitempty"`
}

// MarkAsReadRequest is the mark_as_read payload.
type MarkAsReadRequest struct {
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	BuyerID   string `json:"buyerId"`
}

// TypingRequest is the typing_start / typing_stop payload.
type TypingRequest struct {
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
	SellerID  string `json:"sellerId"`
	BuyerID   string `json:"buyerId,omitempty"`
}

// HistoryRequest is the get_chat_history payload.
type HistoryRequest struct {
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	BuyerID   string `json:"buyerId,omitempty"`
	UserID    string `json:"userId"`
}

// Room returns the canonical room id the request targets.
func (r HistoryRequest) Room() string {
	return RoomID(r.ProductID, r.BuyerID, r.SellerID)
}
