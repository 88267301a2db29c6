package chatstore

import (
	"strconv"

	"marketplace-chat/internal/models"
)

// Thread is the ordered message list of one room.
type Thread struct {
	messages []models.Message
}

// Messages returns a copy of the list.
func (t *Thread) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// AppendOptimistic adds a locally sent message awaiting the server echo.
func (t *Thread) AppendOptimistic(m models.Message) {
	m.IsOptimistic = true
	t.messages = append(t.messages, m)
}

// Reconcile applies a confirmed message. A pending optimistic copy with the
// same text, sender id and sender type is confirmed in place; a message
// already present is ignored. It reports whether m was appended.
func (t *Thread) Reconcile(m models.Message) bool {
	m.IsOptimistic = false
	if m.ID != "" {
		for i := range t.messages {
			if t.messages[i].ID == m.ID && !t.messages[i].IsOptimistic {
				return false
			}
		}
	}
	for i := range t.messages {
		cur := &t.messages[i]
		if cur.IsOptimistic && sameContent(*cur, m) {
			if m.ID != "" {
				cur.ID = m.ID
			}
			if !m.Timestamp.IsZero() {
				cur.Timestamp = m.Timestamp
			}
			if m.Attachment != nil {
				cur.Attachment = m.Attachment
			}
			cur.IsOptimistic = false
			return false
		}
	}
	for _, cur := range t.messages {
		if !cur.IsOptimistic && sameContent(cur, m) && cur.Timestamp.Equal(m.Timestamp) && !m.Timestamp.IsZero() {
			return false
		}
	}
	t.messages = append(t.messages, m)
	return true
}

// Replace swaps in the server history, keeping optimistic messages the
// history does not yet contain.
func (t *Thread) Replace(history []models.HistoryMessage) {
	pending := make([]models.Message, 0)
	for _, m := range t.messages {
		if m.IsOptimistic {
			pending = append(pending, m)
		}
	}

	t.messages = make([]models.Message, 0, len(history)+len(pending))
	for i, h := range history {
		id := h.ID
		if id == "" {
			id = strconv.Itoa(i) + "_" + strconv.FormatInt(h.Timestamp.UnixMilli(), 10)
		}
		t.messages = append(t.messages, models.Message{
			ID:         id,
			Text:       h.Message,
			SenderID:   h.SenderID,
			SenderType: h.SenderType,
			Timestamp:  h.Timestamp,
			Attachment: h.Attachment,
		})
	}
	// Client and server clocks differ, so pending messages match history on
	// content alone. Each history entry absorbs at most one pending message.
	used := make([]bool, len(history))
	for _, p := range pending {
		matched := false
		for i, h := range history {
			if !used[i] && h.Message == p.Text && h.SenderID == p.SenderID && h.SenderType == p.SenderType {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			t.messages = append(t.messages, p)
		}
	}
}

func sameContent(a, b models.Message) bool {
	return a.Text == b.Text && a.SenderID == b.SenderID && a.SenderType == b.SenderType
}
