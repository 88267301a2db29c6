package chatstore

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"marketplace-chat/internal/models"
)

// Store holds the recent-chats list, the active room, online presence and
// the per-room message threads of one client.
type Store struct {
	mu           sync.RWMutex
	chats        []models.ChatSummary
	activeRoomID string
	threads      map[string]*Thread

	online mapset.Set[string]

	subMu       sync.Mutex
	subscribers map[int]func()
	nextSub     int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		threads:     make(map[string]*Thread),
		online:      mapset.NewSet[string](),
		subscribers: make(map[int]func()),
	}
}

// Subscribe registers fn to be called after every change. The returned func
// removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetRecentChats replaces the list wholesale. The active room is re-zeroed
// for the viewer since it is being read.
func (s *Store) SetRecentChats(viewerID string, chats []models.ChatSummary) {
	s.mu.Lock()
	s.chats = make([]models.ChatSummary, 0, len(chats))
	seen := make(map[string]struct{}, len(chats))
	for _, c := range chats {
		if c.RoomID == "" {
			c.RoomID = models.RoomID(c.ProductID, c.BuyerID, c.SellerID)
		}
		if _, dup := seen[c.RoomID]; dup {
			continue
		}
		seen[c.RoomID] = struct{}{}
		if c.RoomID == s.activeRoomID {
			zeroFor(&c, viewerID)
		}
		s.chats = append(s.chats, c)
	}
	s.mu.Unlock()
	s.notify()
}

// UpdateRecentChat merges patch into the chat with the same room id, or
// prepends a new chat built from it.
func (s *Store) UpdateRecentChat(patch models.ChatPatch) {
	if patch.RoomID == "" {
		return
	}
	s.mu.Lock()
	if i := s.indexLocked(patch.RoomID); i >= 0 {
		s.chats[i] = patch.Apply(s.chats[i])
	} else {
		s.chats = append([]models.ChatSummary{patch.Summary()}, s.chats...)
	}
	s.mu.Unlock()
	s.notify()
}

// EnsureChat returns the chat for c's room, inserting c as a placeholder at
// the head of the list when none exists. Self-chats are refused.
func (s *Store) EnsureChat(c models.ChatSummary) (models.ChatSummary, error) {
	if c.SelfChat() {
		return models.ChatSummary{}, models.ErrSelfChat
	}
	if !models.KeyOf(c).Complete() {
		return models.ChatSummary{}, models.ErrIncompleteKey
	}
	if c.RoomID == "" {
		c.RoomID = models.RoomID(c.ProductID, c.BuyerID, c.SellerID)
	}

	s.mu.Lock()
	if i := s.indexLocked(c.RoomID); i >= 0 {
		existing := s.chats[i]
		s.mu.Unlock()
		return existing, nil
	}
	s.chats = append([]models.ChatSummary{c}, s.chats...)
	s.mu.Unlock()
	s.notify()
	return c, nil
}

// MarkAsRead zeroes the viewer's unread counter for roomID. It reports
// whether a counter changed.
func (s *Store) MarkAsRead(roomID, viewerID string) bool {
	s.mu.Lock()
	i := s.indexLocked(roomID)
	if i < 0 || s.chats[i].UnreadFor(viewerID) == 0 {
		s.mu.Unlock()
		return false
	}
	zeroFor(&s.chats[i], viewerID)
	s.mu.Unlock()
	s.notify()
	return true
}

// SetActiveRoom records the room currently on screen and zeroes the viewer's
// counter for it. An empty roomID clears it.
func (s *Store) SetActiveRoom(roomID, viewerID string) {
	s.mu.Lock()
	s.activeRoomID = roomID
	if i := s.indexLocked(roomID); i >= 0 {
		zeroFor(&s.chats[i], viewerID)
	}
	s.mu.Unlock()
	s.notify()
}

// ActiveRoom returns the room currently on screen, if any.
func (s *Store) ActiveRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeRoomID
}

// ApplyMessage folds an incoming message into the summary and, when the
// room's thread is loaded, into the thread. It reports whether the thread
// grew.
//
// Counters sent by the server win. Otherwise the viewer's counter is zero
// while the room is active, and increments by one when the viewer is the
// recipient. The sender's own counter never increments.
func (s *Store) ApplyMessage(viewerID string, msg models.IncomingMessage) bool {
	roomID := msg.Room()
	if roomID == "" {
		return false
	}

	s.mu.Lock()
	i := s.indexLocked(roomID)
	if i < 0 {
		c := models.ChatSummary{
			RoomID:    roomID,
			ProductID: msg.ProductID,
			BuyerID:   msg.BuyerID,
			SellerID:  msg.SellerID,
		}
		if role, ok := c.RoleOf(viewerID); ok {
			c.UserType = role
		}
		s.chats = append([]models.ChatSummary{c}, s.chats...)
		i = 0
	}

	c := &s.chats[i]
	snap := msg.Snapshot()
	c.LastMessage = &snap
	c.MessageCount++
	if msg.BuyerUnreadCount != nil {
		c.BuyerUnreadCount = *msg.BuyerUnreadCount
	}
	if msg.SellerUnreadCount != nil {
		c.SellerUnreadCount = *msg.SellerUnreadCount
	}

	if role, ok := c.RoleOf(viewerID); ok {
		serverSent := (role == models.RoleBuyer && msg.BuyerUnreadCount != nil) ||
			(role == models.RoleSeller && msg.SellerUnreadCount != nil)
		switch {
		case roomID == s.activeRoomID:
			zeroFor(c, viewerID)
		case serverSent:
		case msg.SenderID != viewerID && msg.SenderType == role.Counterpart():
			incrementFor(c, role)
		}
	}

	grew := false
	if t, ok := s.threads[roomID]; ok {
		grew = t.Reconcile(msg.ToMessage())
	}
	s.mu.Unlock()
	s.notify()
	return grew
}

// ApplyLastMessageUpdate replaces last-message and counters of a known chat.
// Unknown rooms are ignored.
func (s *Store) ApplyLastMessageUpdate(viewerID string, u models.LastMessageUpdate) {
	s.mu.Lock()
	i := s.indexLocked(u.Room())
	if i < 0 {
		s.mu.Unlock()
		return
	}
	c := &s.chats[i]
	if u.LastMessage != nil {
		lm := *u.LastMessage
		c.LastMessage = &lm
	}
	if u.BuyerUnreadCount != nil {
		c.BuyerUnreadCount = *u.BuyerUnreadCount
	}
	if u.SellerUnreadCount != nil {
		c.SellerUnreadCount = *u.SellerUnreadCount
	}
	if c.RoomID == s.activeRoomID {
		zeroFor(c, viewerID)
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyHistory loads a room's history into its thread and reconciles the
// summary with the counters the server reported.
func (s *Store) ApplyHistory(viewerID, roomID string, h models.ChatHistory) {
	s.mu.Lock()
	t, ok := s.threads[roomID]
	if !ok {
		t = &Thread{}
		s.threads[roomID] = t
	}
	t.Replace(h.Messages)

	if i := s.indexLocked(roomID); i >= 0 {
		c := &s.chats[i]
		c.BuyerUnreadCount = h.BuyerUnreadCount
		c.SellerUnreadCount = h.SellerUnreadCount
		if h.LastMessage != nil {
			lm := *h.LastMessage
			c.LastMessage = &lm
		}
		if len(h.Messages) > c.MessageCount {
			c.MessageCount = len(h.Messages)
		}
		if roomID == s.activeRoomID {
			zeroFor(c, viewerID)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// SetDealState records a deal status on roomID's chat.
func (s *Store) SetDealState(roomID string, status models.DealStatus, budget float64) {
	s.mu.Lock()
	i := s.indexLocked(roomID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	c := &s.chats[i]
	if status == models.DealNone {
		c.ClosedDeal = nil
		c.IsDealClosed = false
	} else {
		if budget == 0 && c.ClosedDeal != nil {
			budget = c.ClosedDeal.Budget
		}
		c.ClosedDeal = &models.ClosedDeal{Budget: budget, Status: status}
		c.IsDealClosed = status == models.DealAccepted
	}
	s.mu.Unlock()
	s.notify()
}

// SetRating records the rating given on a chat.
func (s *Store) SetRating(roomID string, rating int) {
	s.mu.Lock()
	if i := s.indexLocked(roomID); i >= 0 {
		s.chats[i].ChatRating = rating
	}
	s.mu.Unlock()
	s.notify()
}

// AppendOptimistic adds a pending local message to the room's thread.
func (s *Store) AppendOptimistic(roomID string, m models.Message) {
	s.mu.Lock()
	t, ok := s.threads[roomID]
	if !ok {
		t = &Thread{}
		s.threads[roomID] = t
	}
	t.AppendOptimistic(m)
	s.mu.Unlock()
	s.notify()
}

// Messages returns the loaded thread of roomID.
func (s *Store) Messages(roomID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[roomID]
	if !ok {
		return nil
	}
	return t.Messages()
}

// Chat returns the summary of roomID with presence filled in.
func (s *Store) Chat(roomID string) (models.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(roomID)
	if i < 0 {
		return models.ChatSummary{}, false
	}
	return s.withPresence(s.chats[i]), true
}

// FindChat looks a chat up by its participants.
func (s *Store) FindChat(key models.DealKey) (models.ChatSummary, bool) {
	if !key.Complete() {
		return models.ChatSummary{}, false
	}
	return s.Chat(key.RoomID())
}

// RecentChats returns a snapshot of the list with presence filled in.
func (s *Store) RecentChats() []models.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatSummary, len(s.chats))
	for i, c := range s.chats {
		out[i] = s.withPresence(c)
	}
	return out
}

// TotalUnread sums the viewer's counters over all chats.
func (s *Store) TotalUnread(viewerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, c := range s.chats {
		total += c.UnreadFor(viewerID)
	}
	return total
}

// SetOnline marks userID as online or offline.
func (s *Store) SetOnline(userID string, online bool) {
	if userID == "" {
		return
	}
	if online {
		s.online.Add(userID)
	} else {
		s.online.Remove(userID)
	}
	s.notify()
}

// IsOnline reports whether userID is online.
func (s *Store) IsOnline(userID string) bool {
	return s.online.Contains(userID)
}

// OnlineUsers returns the current online set.
func (s *Store) OnlineUsers() []string {
	return s.online.ToSlice()
}

func (s *Store) withPresence(c models.ChatSummary) models.ChatSummary {
	switch c.UserType {
	case models.RoleBuyer:
		c.IsOnline = s.online.Contains(c.SellerID)
	case models.RoleSeller:
		c.IsOnline = s.online.Contains(c.BuyerID)
	}
	return c
}

func (s *Store) indexLocked(roomID string) int {
	if roomID == "" {
		return -1
	}
	for i := range s.chats {
		if s.chats[i].RoomID == roomID {
			return i
		}
	}
	return -1
}

func zeroFor(c *models.ChatSummary, viewerID string) {
	role, ok := c.RoleOf(viewerID)
	if !ok {
		return
	}
	if role == models.RoleBuyer {
		c.BuyerUnreadCount = 0
	} else {
		c.SellerUnreadCount = 0
	}
}

func incrementFor(c *models.ChatSummary, role models.Role) {
	if role == models.RoleBuyer {
		c.BuyerUnreadCount++
	} else {
		c.SellerUnreadCount++
	}
}
