package models

import (
	"errors"
	"sort"
)

var (
	// ErrSelfChat is returned when a conversation would put one user on both sides.
	ErrSelfChat = errors.New("cannot chat with yourself")
	// ErrIncompleteKey is returned when product, buyer or seller id is missing.
	ErrIncompleteKey = errors.New("product, buyer and seller ids are required")
)

// RoomID returns the canonical room id for a product conversation. Buyer and
// seller ids are sorted so both parties derive the same id.
func RoomID(productID, buyerID, sellerID string) string {
	ids := []string{buyerID, sellerID}
	sort.Strings(ids)
	return "product_" + productID + "_buyer_" + ids[0] + "_seller_" + ids[1]
}

// Role is the side a user plays in a conversation.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleBuyer {
		return RoleSeller
	}
	return RoleBuyer
}
