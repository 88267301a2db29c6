package notifications

import (
	"strconv"
	"strings"
	"time"

	"marketplace-chat/internal/models"
)

// Normalizer converts raw REST or socket payloads into UnifiedNotification.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer builds a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

var defaultNormalizer = NewNormalizer()

// Normalize converts raw with the default normalizer.
func Normalize(raw map[string]any) (models.UnifiedNotification, bool) {
	return defaultNormalizer.Normalize(raw)
}

// derivable lists the fields of which at least one must be present for a
// payload to describe a notification.
var derivable = []string{
	"_id", "type", "title", "description", "message", "productId", "product",
	"buyerId", "sellerId", "roomId", "chatId", "deal", "dealId", "bidId",
	"totalBids", "bidAmount", "latestBid", "rating",
}

// Normalize projects raw onto the canonical shape. It returns false when raw
// carries nothing a notification can be derived from.
func (n *Normalizer) Normalize(raw map[string]any) (models.UnifiedNotification, bool) {
	if !usable(raw) {
		return models.UnifiedNotification{}, false
	}

	title := str(raw, "title")
	kind := DetectType(raw)

	out := models.UnifiedNotification{
		ID:            str(raw, "_id"),
		Type:          kind,
		Title:         title,
		Description:   str(raw, "description"),
		Seen:          boolean(raw, "seen"),
		ProductID:     id(raw["productId"]),
		BuyerID:       id(raw["buyerId"]),
		SellerID:      id(raw["sellerId"]),
		RoomID:        str(raw, "roomId"),
		ChatID:        str(raw, "chatId"),
		DealID:        str(raw, "dealId"),
		BidID:         str(raw, "bidId"),
		Rating:        int(number(raw, "rating")),
		RaterName:     str(raw, "raterName"),
		RatedBy:       id(raw["ratedBy"]),
		TotalBids:     int(number(raw, "totalBids")),
		BidAmount:     number(raw, "bidAmount"),
		RequirementID: id(raw["requirementId"]),
		Message:       str(raw, "message"),
		Action:        models.DealAction(str(raw, "action")),
	}

	if product, ok := raw["product"].(map[string]any); ok {
		if out.ProductID == "" {
			out.ProductID = str(product, "_id")
		}
		out.ProductTitle = str(product, "title")
	}
	if doc, ok := raw["productId"].(map[string]any); ok && out.ProductTitle == "" {
		out.ProductTitle = str(doc, "title")
	}

	if deal, ok := raw["deal"].(map[string]any); ok {
		if out.ProductID == "" {
			out.ProductID = id(deal["productId"])
		}
		if out.BuyerID == "" {
			out.BuyerID = id(deal["buyerId"])
		}
		if out.SellerID == "" {
			out.SellerID = id(deal["sellerId"])
		}
		if out.SellerID == "" {
			if details, ok := deal["sellerDetails"].(map[string]any); ok {
				out.SellerID = id(details["sellerId"])
			}
		}
		if out.RoomID == "" {
			out.RoomID = str(deal, "roomId")
		}
		if out.DealID == "" {
			out.DealID = str(deal, "_id")
		}
	}

	if out.Title == "" {
		out.Title = defaultTitle(kind, out.Rating)
	}
	if out.Description == "" {
		out.Description = out.Message
	}
	if out.Description == "" {
		out.Description = "You have a new notification"
	}

	out.Timestamp = n.timestamp(raw, kind)
	return out, true
}

// DetectType infers the notification kind. An explicit backend type from the
// closed set wins; otherwise the first matching heuristic applies, falling
// back to bid.
func DetectType(raw map[string]any) models.NotificationType {
	if explicit := models.NotificationType(str(raw, "type")); explicit.Known() {
		return explicit
	}
	return detectFromShape(raw)
}

func detectFromShape(raw map[string]any) models.NotificationType {
	title := strings.ToLower(str(raw, "title"))
	action := str(raw, "action")
	_, hasDeal := raw["deal"].(map[string]any)

	if strings.Contains(title, "rated") || has(raw, "chatId") || has(raw, "ratingId") || has(raw, "rating") {
		return models.NotificationChatRating
	}
	if strings.Contains(title, "deal accepted") || strings.Contains(title, "accepted your close deal") ||
		(action == string(models.DealActionAccept) && hasDeal) {
		return models.NotificationDealAccepted
	}
	if strings.Contains(title, "deal rejected") || strings.Contains(title, "rejected your close deal") ||
		(action == string(models.DealActionReject) && hasDeal) {
		return models.NotificationDealRejected
	}
	if strings.Contains(title, "deal") && (strings.Contains(title, "request") || strings.Contains(title, "close")) {
		return models.NotificationDealRequest
	}
	if hasDeal && (action == "" || action == "request" || str(raw, "type") == "request") {
		return models.NotificationDealRequest
	}
	if strings.Contains(title, "bid") || strings.Contains(title, "quote") ||
		has(raw, "totalBids") || has(raw, "bidAmount") || has(raw, "latestBid") || has(raw, "bidId") {
		return models.NotificationBid
	}
	if id(raw["productId"]) != "" && !has(raw, "buyerId") && !has(raw, "sellerId") {
		return models.NotificationProduct
	}
	return models.NotificationBid
}

func defaultTitle(kind models.NotificationType, rating int) string {
	switch kind {
	case models.NotificationChatRating:
		if rating > 0 {
			return "Chat rated " + strconv.Itoa(rating) + " stars"
		}
		return "Chat rated"
	case models.NotificationDealAccepted:
		return "Deal Accepted"
	case models.NotificationDealRejected:
		return "Deal Rejected"
	case models.NotificationDealRequest:
		return "Deal Requested"
	case models.NotificationBid:
		return "New Quote"
	case models.NotificationProduct:
		return "Product Notification"
	}
	return "New Notification"
}

func (n *Normalizer) timestamp(raw map[string]any, kind models.NotificationType) int64 {
	if kind == models.NotificationBid {
		if latest, ok := raw["latestBid"].(map[string]any); ok {
			if ts, ok := epochMillis(latest["date"]); ok {
				return ts
			}
		}
	}
	if ts, ok := epochMillis(raw["timestamp"]); ok {
		return ts
	}
	if ts, ok := epochMillis(raw["createdAt"]); ok {
		return ts
	}
	return n.now().UnixMilli()
}

func usable(raw map[string]any) bool {
	if len(raw) == 0 {
		return false
	}
	for _, key := range derivable {
		if has(raw, key) {
			return true
		}
	}
	return false
}

func has(raw map[string]any, key string) bool {
	v, ok := raw[key]
	return ok && v != nil
}

func str(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// id flattens populated documents ({"_id": ...}) to their bare id.
func id(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any:
		return id(val["_id"])
	}
	return ""
}

func number(raw map[string]any, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func boolean(raw map[string]any, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

func epochMillis(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		if val > 0 {
			return int64(val), true
		}
	case int64:
		if val > 0 {
			return val, true
		}
	case int:
		if val > 0 {
			return int64(val), true
		}
	case string:
		if val == "" {
			return 0, false
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UnixMilli(), true
		}
		if ms, err := strconv.ParseInt(val, 10, 64); err == nil && ms > 0 {
			return ms, true
		}
	case time.Time:
		if !val.IsZero() {
			return val.UnixMilli(), true
		}
	}
	return 0, false
}
