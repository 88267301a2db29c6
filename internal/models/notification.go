package models

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotificationBid          NotificationType = "bid"
	NotificationChatRating   NotificationType = "chat_rating"
	NotificationDealRequest  NotificationType = "deal_request"
	NotificationDealAccepted NotificationType = "deal_accepted"
	NotificationDealRejected NotificationType = "deal_rejected"
	NotificationProduct      NotificationType = "product"
)

// Known reports whether t is part of the closed set.
func (t NotificationType) Known() bool {
	switch t {
	case NotificationBid, NotificationChatRating, NotificationDealRequest,
		NotificationDealAccepted, NotificationDealRejected, NotificationProduct:
		return true
	}
	return false
}

// IsDeal reports whether t is one of the deal kinds.
func (t NotificationType) IsDeal() bool {
	return t == NotificationDealRequest || t == NotificationDealAccepted || t == NotificationDealRejected
}

// UnifiedNotification is the canonical shape of every notification kind.
type UnifiedNotification struct {
	ID          string           `json:"_id,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Timestamp   int64            `json:"timestamp"`
	Seen        bool             `json:"seen"`

	ProductID string `json:"productId,omitempty"`
	BuyerID   string `json:"buyerId,omitempty"`
	SellerID  string `json:"sellerId,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	DealID    string `json:"dealId,omitempty"`
	BidID     string `json:"bidId,omitempty"`

	Rating        int        `json:"rating,omitempty"`
	RaterName     string     `json:"raterName,omitempty"`
	RatedBy       string     `json:"ratedBy,omitempty"`
	TotalBids     int        `json:"totalBids,omitempty"`
	BidAmount     float64    `json:"bidAmount,omitempty"`
	RequirementID string     `json:"requirementId,omitempty"`
	ProductTitle  string     `json:"productTitle,omitempty"`
	Message       string     `json:"message,omitempty"`
	Action        DealAction `json:"action,omitempty"`
}

// TargetKind tells the view layer where a notification leads.
type TargetKind string

const (
	TargetChat    TargetKind = "chat"
	TargetProduct TargetKind = "product"
	TargetInbox   TargetKind = "inbox"
)

// NotificationTarget is the navigation target resolved for a notification.
type NotificationTarget struct {
	Kind      TargetKind `json:"kind"`
	ProductID string     `json:"productId,omitempty"`
	BuyerID   string     `json:"buyerId,omitempty"`
	SellerID  string     `json:"sellerId,omitempty"`
	RoomID    string     `json:"roomId,omitempty"`
}
