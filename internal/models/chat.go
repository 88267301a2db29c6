package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// FlexID decodes an id that the backend sends either as a bare string or as a
// populated document ({"_id": "...", ...}).
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
	case '{':
		var doc struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		*f = FlexID(doc.ID)
	default:
		*f = FlexID(string(data))
	}
	return nil
}

// String returns the bare id.
func (f FlexID) String() string { return string(f) }

// LastMessage is the snapshot of the newest message in a room.
type LastMessage struct {
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	SenderID   string    `json:"senderId"`
	SenderType Role      `json:"senderType"`
}

// ClosedDeal is the deal snapshot attached to a chat summary.
type ClosedDeal struct {
	Budget float64    `json:"budget"`
	Status DealStatus `json:"status"`
}

// ChatSummary is the client-side view of one (product, buyer, seller) conversation.
type ChatSummary struct {
	ID                string       `json:"_id,omitempty"`
	RoomID            string       `json:"roomId"`
	ProductID         string       `json:"productId"`
	BuyerID           string       `json:"buyerId"`
	SellerID          string       `json:"sellerId"`
	Name              string       `json:"name"`
	Avatar            string       `json:"avatar"`
	ProductName       string       `json:"productName"`
	UserType          Role         `json:"userType"`
	LastMessage       *LastMessage `json:"lastMessage"`
	MessageCount      int          `json:"messageCount"`
	BuyerUnreadCount  int          `json:"buyerUnreadCount"`
	SellerUnreadCount int          `json:"sellerUnreadCount"`
	ChatRating        int          `json:"chatrating,omitempty"`
	IsDealClosed      bool         `json:"isDealClosed"`
	ClosedDeal        *ClosedDeal  `json:"closedDeal,omitempty"`
	IsOnline          bool         `json:"isOnline"`
}

// Persisted reports whether the backend has issued an id for this chat.
// Locally synthesized placeholders have none.
func (c ChatSummary) Persisted() bool {
	return c.ID != ""
}

// SelfChat reports whether buyer and seller are the same user.
func (c ChatSummary) SelfChat() bool {
	return c.BuyerID != "" && c.BuyerID == c.SellerID
}

// RoleOf returns the role userID plays in the chat.
func (c ChatSummary) RoleOf(userID string) (Role, bool) {
	switch userID {
	case "":
		return "", false
	case c.BuyerID:
		return RoleBuyer, true
	case c.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// UnreadFor returns the unread counter belonging to userID's role.
func (c ChatSummary) UnreadFor(userID string) int {
	role, ok := c.RoleOf(userID)
	if !ok {
		return 0
	}
	if role == RoleBuyer {
		return c.BuyerUnreadCount
	}
	return c.SellerUnreadCount
}

// ChatPatch is a partial chat summary pushed by the server. Nil fields are
// left untouched when merged.
type ChatPatch struct {
	RoomID            string       `json:"roomId"`
	ID                *string      `json:"_id,omitempty"`
	ProductID         *string      `json:"productId,omitempty"`
	BuyerID           *string      `json:"buyerId,omitempty"`
	SellerID          *string      `json:"sellerId,omitempty"`
	Name              *string      `json:"name,omitempty"`
	Avatar            *string      `json:"avatar,omitempty"`
	ProductName       *string      `json:"productName,omitempty"`
	UserType          *Role        `json:"userType,omitempty"`
	LastMessage       *LastMessage `json:"lastMessage,omitempty"`
	MessageCount      *int         `json:"messageCount,omitempty"`
	BuyerUnreadCount  *int         `json:"buyerUnreadCount,omitempty"`
	SellerUnreadCount *int         `json:"sellerUnreadCount,omitempty"`
	ChatRating        *int         `json:"chatrating,omitempty"`
	IsDealClosed      *bool        `json:"isDealClosed,omitempty"`
	ClosedDeal        *ClosedDeal  `json:"closedDeal,omitempty"`
}

// Apply shallow-merges the patch into c.
func (p ChatPatch) Apply(c ChatSummary) ChatSummary {
	if p.ID != nil {
		c.ID = *p.ID
	}
	if p.ProductID != nil {
		c.ProductID = *p.ProductID
	}
	if p.BuyerID != nil {
		c.BuyerID = *p.BuyerID
	}
	if p.SellerID != nil {
		c.SellerID = *p.SellerID
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Avatar != nil {
		c.Avatar = *p.Avatar
	}
	if p.ProductName != nil {
		c.ProductName = *p.ProductName
	}
	if p.UserType != nil {
		c.UserType = *p.UserType
	}
	if p.LastMessage != nil {
		lm := *p.LastMessage
		c.LastMessage = &lm
	}
	if p.MessageCount != nil {
		c.MessageCount = *p.MessageCount
	}
	if p.BuyerUnreadCount != nil {
		c.BuyerUnreadCount = *p.BuyerUnreadCount
	}
	if p.SellerUnreadCount != nil {
		c.SellerUnreadCount = *p.SellerUnreadCount
	}
	if p.ChatRating != nil {
		c.ChatRating = *p.ChatRating
	}
	if p.IsDealClosed != nil {
		c.IsDealClosed = *p.IsDealClosed
	}
	if p.ClosedDeal != nil {
		cd := *p.ClosedDeal
		c.ClosedDeal = &cd
	}
	return c
}

// Summary builds a new chat summary from the patch alone.
func (p ChatPatch) Summary() ChatSummary {
	return p.Apply(ChatSummary{RoomID: p.RoomID})
}

// Party is a populated buyer or seller document.
type Party struct {
	ID           string `json:"_id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ProfileImage string `json:"profileImage"`
}

// DisplayName joins the party's names, falling back when both are empty.
func (p *Party) DisplayName(fallback string) string {
	if p == nil {
		return fallback
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return fallback
	}
	return name
}

// RecentChat is one entry of the recent_chats payload.
type RecentChat struct {
	ID      string `json:"_id"`
	RoomID  string `json:"roomId"`
	Product *struct {
		ID    string `json:"_id"`
		Title string `json:"title"`
	} `json:"product"`
	ProductID         FlexID       `json:"productId"`
	Buyer             *Party       `json:"buyer"`
	Seller            *Party       `json:"seller"`
	BuyerID           FlexID       `json:"buyerId"`
	SellerID          FlexID       `json:"sellerId"`
	UserType          Role         `json:"userType"`
	LastMessage       *LastMessage `json:"lastMessage"`
	MessageCount      int          `json:"messageCount"`
	BuyerUnreadCount  int          `json:"buyerUnreadCount"`
	SellerUnreadCount int          `json:"sellerUnreadCount"`
	ChatRating        int          `json:"chatrating"`
	IsDealClosed      bool         `json:"isDealClosed"`
	ClosedDeal        *ClosedDeal  `json:"closedDeal"`
}

// RecentChatsResponse is the recent_chats payload.
type RecentChatsResponse struct {
	Chats []RecentChat `json:"chats"`
}

// Summary converts the wire entry into a ChatSummary, naming the chat after
// the counterpart of the viewer's side.
func (r RecentChat) Summary() ChatSummary {
	productID := r.ProductID.String()
	productName := "Product Discussion"
	if r.Product != nil {
		if r.Product.ID != "" {
			productID = r.Product.ID
		}
		if r.Product.Title != "" {
			productName = r.Product.Title
		}
	}
	buyerID := r.BuyerID.String()
	if r.Buyer != nil && r.Buyer.ID != "" {
		buyerID = r.Buyer.ID
	}
	sellerID := r.SellerID.String()
	if r.Seller != nil && r.Seller.ID != "" {
		sellerID = r.Seller.ID
	}

	name, avatar := "Unknown", ""
	switch r.UserType {
	case RoleBuyer:
		name = r.Seller.DisplayName("Seller")
		if r.Seller != nil {
			avatar = r.Seller.ProfileImage
		}
	case RoleSeller:
		name = r.Buyer.DisplayName("Buyer")
		if r.Buyer != nil {
			avatar = r.Buyer.ProfileImage
		}
	}

	roomID := r.RoomID
	if roomID == "" {
		roomID = RoomID(productID, buyerID, sellerID)
	}

	return ChatSummary{
		ID:                r.ID,
		RoomID:            roomID,
		ProductID:         productID,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		Name:              name,
		Avatar:            avatar,
		ProductName:       productName,
		UserType:          r.UserType,
		LastMessage:       r.LastMessage,
		MessageCount:      r.MessageCount,
		BuyerUnreadCount:  r.BuyerUnreadCount,
		SellerUnreadCount: r.SellerUnreadCount,
		ChatRating:        r.ChatRating,
		IsDealClosed:      r.IsDealClosed,
		ClosedDeal:        r.ClosedDeal,
	}
}
