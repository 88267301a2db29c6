package notifications

import (
	"errors"

	"marketplace-chat/internal/models"
)

var ErrTargetUnresolved = errors.New("notification target unresolved")

// ResolveTarget works out where a notification leads. Missing or
// inconsistent chat ids are filled from the recent-chat list by product id;
// when that fails the target is the generic inbox.
func ResolveTarget(n models.UnifiedNotification, viewerID string, chats []models.ChatSummary) (models.NotificationTarget, error) {
	switch {
	case n.Type == models.NotificationProduct:
		if n.ProductID == "" {
			return models.NotificationTarget{}, ErrTargetUnresolved
		}
		return models.NotificationTarget{Kind: models.TargetProduct, ProductID: n.ProductID}, nil

	case n.Type == models.NotificationBid:
		key := models.DealKey{ProductID: n.ProductID, BuyerID: n.BuyerID, SellerID: n.SellerID}
		if key.BuyerID == "" {
			key.BuyerID = viewerID
		}
		if !key.Complete() {
			key = fillFromChats(key, chats)
		}
		return chatTarget(key), nil

	case n.Type == models.NotificationChatRating || n.Type.IsDeal():
		key := models.DealKey{ProductID: n.ProductID, BuyerID: n.BuyerID, SellerID: n.SellerID}
		if !key.Complete() || key.BuyerID == key.SellerID {
			key = fillFromChats(key, chats)
			if key.BuyerID == key.SellerID {
				return models.NotificationTarget{Kind: models.TargetInbox}, nil
			}
		}
		return chatTarget(key), nil
	}
	return models.NotificationTarget{Kind: models.TargetInbox}, nil
}

func fillFromChats(key models.DealKey, chats []models.ChatSummary) models.DealKey {
	for _, c := range chats {
		if c.ProductID == key.ProductID {
			return models.KeyOf(c)
		}
	}
	return key
}

func chatTarget(key models.DealKey) models.NotificationTarget {
	if !key.Complete() {
		return models.NotificationTarget{Kind: models.TargetInbox}
	}
	return models.NotificationTarget{
		Kind:      models.TargetChat,
		ProductID: key.ProductID,
		BuyerID:   key.BuyerID,
		SellerID:  key.SellerID,
		RoomID:    key.RoomID(),
	}
}
