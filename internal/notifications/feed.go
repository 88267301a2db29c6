package notifications

import (
	"context"
	"log"
	"sync"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/observability"
)

// Backend is the REST collaborator the feed reads from and acknowledges to.
type Backend interface {
	GetBidNotifications(ctx context.Context) ([]map[string]any, error)
	MarkNotificationsSeen(ctx context.Context, ids []string) error
	DeleteNotification(ctx context.Context, id string) error
}

// Feed is the deduplicated, newest-first notification list of one viewer.
type Feed struct {
	backend    Backend
	normalizer *Normalizer
	viewerID   string

	mu          sync.RWMutex
	items       []models.UnifiedNotification
	subscribers map[uint64]func([]models.UnifiedNotification)
	nextSubID   uint64
}

// NewFeed builds an empty feed for viewerID.
func NewFeed(backend Backend, viewerID string) *Feed {
	return &Feed{
		backend:     backend,
		normalizer:  NewNormalizer(),
		viewerID:    viewerID,
		subscribers: make(map[uint64]func([]models.UnifiedNotification)),
	}
}

// Add normalizes and merges raw payloads. It returns how many were usable.
func (f *Feed) Add(raw ...map[string]any) int {
	normalized := make([]models.UnifiedNotification, 0, len(raw))
	for _, r := range raw {
		n, ok := f.normalizer.Normalize(r)
		if !ok {
			continue
		}
		// The rater is not notified about their own rating.
		if n.Type == models.NotificationChatRating && n.RatedBy != "" && n.RatedBy == f.viewerID {
			continue
		}
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		return 0
	}
	f.update(func(items []models.UnifiedNotification) []models.UnifiedNotification {
		return Sort(Merge(items, normalized))
	})
	return len(normalized)
}

// Refresh fetches the persisted notifications and merges them in.
func (f *Feed) Refresh(ctx context.Context) error {
	if f.backend == nil {
		return nil
	}
	raw, err := f.backend.GetBidNotifications(ctx)
	if err != nil {
		return err
	}
	f.Add(raw...)
	return nil
}

// MarkAsSeen marks the given server ids seen locally, then acknowledges them
// upstream. An upstream failure is logged and the local state kept.
func (f *Feed) MarkAsSeen(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	f.update(func(items []models.UnifiedNotification) []models.UnifiedNotification {
		for i := range items {
			if _, ok := set[items[i].ID]; ok && items[i].ID != "" {
				items[i].Seen = true
			}
		}
		return items
	})

	if f.backend == nil {
		return
	}
	if err := f.backend.MarkNotificationsSeen(ctx, ids); err != nil {
		log.Printf("mark notifications seen failed: ids=%v err=%v", ids, err)
	}
}

// MarkLocalSeen marks a notification seen without contacting the backend.
// Socket-only notifications have no server id and match on type and timestamp.
func (f *Feed) MarkLocalSeen(n models.UnifiedNotification) {
	f.update(func(items []models.UnifiedNotification) []models.UnifiedNotification {
		for i := range items {
			if items[i].Type == n.Type && items[i].Timestamp == n.Timestamp {
				items[i].Seen = true
			}
		}
		return items
	})
}

// Open marks n seen the way a click does: through the backend when it has a
// server id, locally otherwise. Product notifications are removed once opened.
func (f *Feed) Open(ctx context.Context, n models.UnifiedNotification) {
	if !n.Seen {
		if n.ID != "" {
			f.MarkAsSeen(ctx, []string{n.ID})
		} else {
			f.MarkLocalSeen(n)
		}
	}
	if n.Type == models.NotificationProduct {
		f.Remove(n)
	}
}

// Remove drops every entry sharing n's key.
func (f *Feed) Remove(n models.UnifiedNotification) {
	key := GenerateKey(n)
	f.update(func(items []models.UnifiedNotification) []models.UnifiedNotification {
		out := items[:0]
		for _, item := range items {
			if GenerateKey(item) != key {
				out = append(out, item)
			}
		}
		return out
	})
}

// Delete removes n locally and, when it is persisted, upstream too.
func (f *Feed) Delete(ctx context.Context, n models.UnifiedNotification) error {
	f.Remove(n)
	if n.ID == "" || f.backend == nil {
		return nil
	}
	return f.backend.DeleteNotification(ctx, n.ID)
}

// Find returns the entry with the given key.
func (f *Feed) Find(key string) (models.UnifiedNotification, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, n := range f.items {
		if GenerateKey(n) == key {
			return n, true
		}
	}
	return models.UnifiedNotification{}, false
}

// List returns a copy of the current list.
func (f *Feed) List() []models.UnifiedNotification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.UnifiedNotification, len(f.items))
	copy(out, f.items)
	return out
}

// UnseenCount counts entries not yet seen.
func (f *Feed) UnseenCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	count := 0
	for _, n := range f.items {
		if !n.Seen {
			count++
		}
	}
	return count
}

// Subscribe registers fn to receive the list after every change.
func (f *Feed) Subscribe(fn func([]models.UnifiedNotification)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSubID
	f.nextSubID++
	f.subscribers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subscribers, id)
	}
}

func (f *Feed) update(mutate func([]models.UnifiedNotification) []models.UnifiedNotification) {
	f.mu.Lock()
	f.items = mutate(f.items)
	snapshot := make([]models.UnifiedNotification, len(f.items))
	copy(snapshot, f.items)
	subs := make([]func([]models.UnifiedNotification), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	observability.SetNotificationsInFeed(len(snapshot))
	for _, fn := range subs {
		fn(snapshot)
	}
}
