package models

import "time"

// DealStatus is the lifecycle state of a proposed final price.
type DealStatus string

const (
	DealNone                  DealStatus = "none"
	DealWaitingSellerApproval DealStatus = "waiting_seller_approval"
	DealAccepted              DealStatus = "accepted"
	DealRejected              DealStatus = "rejected"
)

// Terminal reports whether no further transition is allowed for this instance.
func (s DealStatus) Terminal() bool {
	return s == DealAccepted || s == DealRejected
}

// DealAction is the seller's answer to a proposal.
type DealAction string

const (
	DealActionAccept DealAction = "accept"
	DealActionReject DealAction = "reject"
)

// Status returns the status reached by the action.
func (a DealAction) Status() (DealStatus, bool) {
	switch a {
	case DealActionAccept:
		return DealAccepted, true
	case DealActionReject:
		return DealRejected, true
	}
	return "", false
}

// DealKey identifies a deal by its conversation triple.
type DealKey struct {
	ProductID string `json:"productId"`
	BuyerID   string `json:"buyerId"`
	SellerID  string `json:"sellerId"`
}

// RoomID returns the canonical room id for the key.
func (k DealKey) RoomID() string {
	return RoomID(k.ProductID, k.BuyerID, k.SellerID)
}

// Complete reports whether every id is set.
func (k DealKey) Complete() bool {
	return k.ProductID != "" && k.BuyerID != "" && k.SellerID != ""
}

// KeyOf returns the deal key of a chat.
func KeyOf(c ChatSummary) DealKey {
	return DealKey{ProductID: c.ProductID, BuyerID: c.BuyerID, SellerID: c.SellerID}
}

// DealClosure is the client view of a deal instance.
type DealClosure struct {
	DealID      string     `json:"_id,omitempty"`
	ProductID   string     `json:"productId,omitempty"`
	BuyerID     string     `json:"buyerId,omitempty"`
	SellerID    string     `json:"sellerId,omitempty"`
	Status      DealStatus `json:"status"`
	FinalBudget float64    `json:"finalBudget"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// CloseDealRequest is the close-deal REST body.
type CloseDealRequest struct {
	ProductID   string  `json:"productId"`
	SellerID    string  `json:"sellerId"`
	BuyerID     string  `json:"buyerId"`
	FinalBudget float64 `json:"finalBudget"`
}

// RespondDealRequest is the respond-close-deal REST body.
type RespondDealRequest struct {
	DealID string     `json:"dealId"`
	Action DealAction `json:"action"`
}

// RateChatRequest is the rate-chat REST body.
type RateChatRequest struct {
	ChatID  string `json:"chatId"`
	Rating  int    `json:"rating"`
	RatedBy string `json:"ratedBy"`
}

// DealEvent is the close_deal_request, close_deal_resolution and deal_closed payload.
type DealEvent struct {
	DealID      string       `json:"dealId"`
	Deal        *DealClosure `json:"deal,omitempty"`
	Action      DealAction   `json:"action,omitempty"`
	Message     string       `json:"message,omitempty"`
	ProductID   FlexID       `json:"productId"`
	BuyerID     FlexID       `json:"buyerId"`
	SellerID    FlexID       `json:"sellerId"`
	RoomID      string       `json:"roomId,omitempty"`
	FinalBudget float64      `json:"finalBudget,omitempty"`
}

// Key returns the deal key, promoting ids from the nested deal when the top
// level ones are absent.
func (e DealEvent) Key() DealKey {
	k := DealKey{ProductID: e.ProductID.String(), BuyerID: e.BuyerID.String(), SellerID: e.SellerID.String()}
	if e.Deal != nil {
		if k.ProductID == "" {
			k.ProductID = e.Deal.ProductID
		}
		if k.BuyerID == "" {
			k.BuyerID = e.Deal.BuyerID
		}
		if k.SellerID == "" {
			k.SellerID = e.Deal.SellerID
		}
	}
	return k
}

// ID returns the deal id from either the top level or the nested deal.
func (e DealEvent) ID() string {
	if e.DealID != "" {
		return e.DealID
	}
	if e.Deal != nil {
		return e.Deal.DealID
	}
	return ""
}

// Room returns the event's room id, deriving the canonical one when absent.
func (e DealEvent) Room() string {
	if e.RoomID != "" {
		return e.RoomID
	}
	return e.Key().RoomID()
}
