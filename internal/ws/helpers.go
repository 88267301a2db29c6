package ws

import (
	"github.com/google/uuid"

	"marketplace-chat/internal/models"
)

func newConnID() string {
	return uuid.NewString()
}

func roomOf(req *models.JoinRoomRequest) string {
	if req == nil {
		return ""
	}
	return models.RoomID(req.ProductID, req.BuyerID, req.SellerID)
}
