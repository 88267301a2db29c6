package notifications

import (
	"sort"
	"strconv"

	"marketplace-chat/internal/models"
)

// GenerateKey returns the identity key two notifications share when they
// describe the same underlying event.
func GenerateKey(n models.UnifiedNotification) string {
	ts := strconv.FormatInt(n.Timestamp, 10)
	switch n.Type {
	case models.NotificationBid:
		ref := n.ID
		if ref == "" {
			ref = n.BidID
		}
		if ref == "" {
			ref = ts
		}
		return "bid-" + n.ProductID + "-" + ref
	case models.NotificationChatRating:
		ref := n.ChatID
		if ref == "" {
			ref = n.ID
		}
		if ref == "" {
			ref = n.RoomID
		}
		return "rating-" + ref + "-" + ts
	case models.NotificationDealRequest, models.NotificationDealAccepted, models.NotificationDealRejected:
		// No timestamp: a later update of the same deal replaces the earlier one.
		return "deal-" + string(n.Type) + "-" + n.ProductID + "-" + n.BuyerID + "-" + n.SellerID
	case models.NotificationProduct:
		return "product-" + n.ProductID + "-" + ts
	}
	ref := n.ID
	if ref == "" {
		ref = ts
	}
	return "generic-" + ref
}

// Deduplicate collapses entries sharing a key, keeping the one with the larger
// timestamp. On equal timestamps the earlier entry in the slice wins and the
// entry is seen if either copy was.
func Deduplicate(list []models.UnifiedNotification) []models.UnifiedNotification {
	index := make(map[string]int, len(list))
	out := make([]models.UnifiedNotification, 0, len(list))
	for _, n := range list {
		key := GenerateKey(n)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, n)
			continue
		}
		switch {
		case n.Timestamp > out[i].Timestamp:
			out[i] = n
		case n.Timestamp == out[i].Timestamp && n.Seen:
			out[i].Seen = true
		}
	}
	return out
}

// Merge puts incoming ahead of existing and deduplicates the result.
func Merge(existing, incoming []models.UnifiedNotification) []models.UnifiedNotification {
	combined := make([]models.UnifiedNotification, 0, len(existing)+len(incoming))
	combined = append(combined, incoming...)
	combined = append(combined, existing...)
	return Deduplicate(combined)
}

// Sort returns a copy ordered newest first. Equal timestamps are ordered by
// key so the result does not depend on input order.
func Sort(list []models.UnifiedNotification) []models.UnifiedNotification {
	out := make([]models.UnifiedNotification, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return GenerateKey(out[i]) < GenerateKey(out[j])
	})
	return out
}
