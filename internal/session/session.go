package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketplace-chat/internal/chatstore"
	"marketplace-chat/internal/deal"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/notifications"
	"marketplace-chat/internal/telemetry"
	"marketplace-chat/internal/ws"
)

var (
	ErrNoActiveChat        = errors.New("no chat is open")
	ErrRoomNotActive       = errors.New("room is not the open chat")
	ErrUnknownRoom         = errors.New("unknown room")
	ErrNotParticipant      = errors.New("viewer is neither buyer nor seller")
	ErrEmptyMessage        = errors.New("message needs text or an attachment")
	ErrUnknownNotification = errors.New("unknown notification")
)

// Transport is the backend event channel used by a Session.
type Transport interface {
	Connect(ctx context.Context) error
	Identify(userID string) error
	JoinRoom(req models.JoinRoomRequest) error
	LeaveRoom() error
	SendMessage(msg models.OutgoingMessage) error
	SendTyping(req models.TypingRequest, typing bool) error
	MarkAsRead(req models.MarkAsReadRequest) error
	GetChatHistory(ctx context.Context, req models.HistoryRequest) (models.ChatHistory, error)
	GetRecentChats(ctx context.Context, userID string) ([]models.ChatSummary, error)
	UploadAttachment(ctx context.Context, u ws.Upload) (models.Attachment, error)
	SetChatActive(active bool)

	On(event string, fn ws.Handler) func()
	OnReceiveMessage(fn func(models.IncomingMessage)) func()
	OnRecentChatUpdate(fn func(models.ChatPatch)) func()
	OnLastMessageUpdate(fn func(models.LastMessageUpdate)) func()
	OnUserOnline(fn func(models.PresenceEvent)) func()
	OnUserOffline(fn func(models.PresenceEvent)) func()
	OnBidNotifications(fn func([]map[string]any)) func()
	OnProductNotification(fn func(map[string]any)) func()
	OnNewBid(fn func(map[string]any)) func()
	OnChatRating(fn func(map[string]any)) func()
	OnNewMessageNotification(fn func(map[string]any)) func()
	OnCloseDealRequest(fn func(models.DealEvent)) func()
	OnDealResolution(fn func(models.DealEvent)) func()
	OnDealClosed(fn func(models.DealEvent)) func()
}

// Backend is the REST collaborator used for deals and notifications.
type Backend interface {
	deal.Backend
	notifications.Backend
}

// Config wires a Session.
type Config struct {
	ViewerID     string
	Transport    Transport
	Backend      Backend
	Audit        *telemetry.AuditEmitter
	ReadCooldown time.Duration
	// CheckTimeout bounds deal checks triggered by broadcasts.
	CheckTimeout time.Duration
}

// Session is one logged-in user's view of chats, notifications and deals.
type Session struct {
	viewerID     string
	transport    Transport
	store        *chatstore.Store
	feed         *notifications.Feed
	deals        *deal.Machine
	throttle     *chatstore.ReadThrottle
	checkTimeout time.Duration

	mu      sync.Mutex
	active  *models.ChatSummary
	blocked bool
	unsubs  []func()
}

// New builds a session and its store, feed and deal machine.
func New(cfg Config) *Session {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = ws.DefaultRequestTimeout
	}
	s := &Session{
		viewerID:     cfg.ViewerID,
		transport:    cfg.Transport,
		store:        chatstore.New(),
		throttle:     chatstore.NewReadThrottle(cfg.ReadCooldown),
		checkTimeout: cfg.CheckTimeout,
	}
	var dealBackend deal.Backend
	var feedBackend notifications.Backend
	if cfg.Backend != nil {
		dealBackend, feedBackend = cfg.Backend, cfg.Backend
	}
	s.feed = notifications.NewFeed(feedBackend, cfg.ViewerID)
	s.deals = deal.NewMachine(dealBackend, s, s.store, cfg.Audit)
	return s
}

func (s *Session) ViewerID() string { return s.viewerID }
func (s *Session) Store() *chatstore.Store { return s.store }
func (s *Session) Feed() *notifications.Feed { return s.feed }
func (s *Session) Deals() *deal.Machine { return s.deals }

// Start connects, identifies, subscribes to every event and loads the
// initial chats and notifications.
func (s *Session) Start(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := s.transport.Identify(s.viewerID); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	s.subscribe()

	if _, err := s.LoadChats(ctx); err != nil {
		log.Printf("initial recent chats load failed user_id=%s: %v", s.viewerID, err)
	}
	if err := s.feed.Refresh(ctx); err != nil {
		log.Printf("initial notifications load failed user_id=%s: %v", s.viewerID, err)
	}
	return nil
}

// Stop removes every subscription and leaves the open room.
func (s *Session) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.active = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if err := s.transport.LeaveRoom(); err != nil && !errors.Is(err, ws.ErrNotConnected) {
		log.Printf("leave room on stop failed: %v", err)
	}
}

func (s *Session) subscribe() {
	t := s.transport
	unsubs := []func(){
		t.OnReceiveMessage(s.handleMessage),
		t.OnRecentChatUpdate(s.store.UpdateRecentChat),
		t.OnLastMessageUpdate(func(u models.LastMessageUpdate) {
			s.store.ApplyLastMessageUpdate(s.viewerID, u)
		}),
		t.OnUserOnline(func(e models.PresenceEvent) { s.store.SetOnline(e.UserID, true) }),
		t.OnUserOffline(func(e models.PresenceEvent) { s.store.SetOnline(e.UserID, false) }),
		t.OnBidNotifications(func(list []map[string]any) { s.feed.Add(list...) }),
		t.OnProductNotification(func(raw map[string]any) { s.feed.Add(raw) }),
		t.OnNewBid(func(raw map[string]any) { s.feed.Add(raw) }),
		t.OnChatRating(s.handleRating),
		t.OnNewMessageNotification(func(raw map[string]any) {
			log.Printf("new message notification user_id=%s room_id=%v", s.viewerID, raw["roomId"])
		}),
		t.OnCloseDealRequest(func(e models.DealEvent) { s.handleDealEvent(deal.EventRequest, e) }),
		t.OnDealResolution(func(e models.DealEvent) { s.handleDealEvent(deal.EventResolution, e) }),
		t.OnDealClosed(func(e models.DealEvent) { s.handleDealEvent(deal.EventClosed, e) }),
	}
	for _, event := range []string{deal.EventRequest, deal.EventResolution, deal.EventClosed} {
		event := event
		unsubs = append(unsubs, t.On(event, func(data json.RawMessage) { s.dealNotification(event, data) }))
	}

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubs...)
	s.mu.Unlock()
}

// LoadChats refreshes the recent chats from the backend.
func (s *Session) LoadChats(ctx context.Context) ([]models.ChatSummary, error) {
	chats, err := s.transport.GetRecentChats(ctx, s.viewerID)
	if err != nil {
		return nil, err
	}
	s.store.SetRecentChats(s.viewerID, chats)
	return s.store.RecentChats(), nil
}

// ResolveChatID returns the server id of the chat for key, reloading the
// recent chats once when it is not known yet.
func (s *Session) ResolveChatID(ctx context.Context, key models.DealKey) (string, error) {
	if chat, ok := s.store.FindChat(key); ok && chat.Persisted() {
		return chat.ID, nil
	}
	if _, err := s.LoadChats(ctx); err != nil {
		return "", err
	}
	if chat, ok := s.store.FindChat(key); ok && chat.Persisted() {
		return chat.ID, nil
	}
	return "", fmt.Errorf("%w: %s", deal.ErrChatUnresolved, key.RoomID())
}

// OpenInput names the conversation to open.
type OpenInput struct {
	ProductID   string
	BuyerID     string
	SellerID    string
	Name        string
	ProductName string
}

// OpenChat makes the conversation the active one. Unknown conversations get a
// local placeholder. History is applied only if the room is still active
// when it arrives.
func (s *Session) OpenChat(ctx context.Context, in OpenInput) (models.ChatSummary, error) {
	key := models.DealKey{ProductID: in.ProductID, BuyerID: in.BuyerID, SellerID: in.SellerID}
	if !key.Complete() {
		return models.ChatSummary{}, models.ErrIncompleteKey
	}
	if key.BuyerID == key.SellerID {
		s.mu.Lock()
		s.blocked = true
		s.active = nil
		s.mu.Unlock()
		return models.ChatSummary{}, models.ErrSelfChat
	}

	placeholder := models.ChatSummary{
		ProductID:   in.ProductID,
		BuyerID:     in.BuyerID,
		SellerID:    in.SellerID,
		Name:        in.Name,
		ProductName: in.ProductName,
	}
	role, ok := placeholder.RoleOf(s.viewerID)
	if !ok {
		return models.ChatSummary{}, ErrNotParticipant
	}
	placeholder.UserType = role

	chat, err := s.store.EnsureChat(placeholder)
	if err != nil {
		return models.ChatSummary{}, err
	}
	roomID := chat.RoomID

	s.mu.Lock()
	s.active = &chat
	s.blocked = false
	s.mu.Unlock()
	s.store.SetActiveRoom(roomID, s.viewerID)
	s.transport.SetChatActive(true)

	if err := s.transport.JoinRoom(models.JoinRoomRequest{
		UserID:    s.viewerID,
		ProductID: in.ProductID,
		SellerID:  in.SellerID,
		UserType:  role,
		BuyerID:   in.BuyerID,
	}); err != nil {
		return chat, fmt.Errorf("join room %s: %w", roomID, err)
	}

	history, err := s.transport.GetChatHistory(ctx, models.HistoryRequest{
		ProductID: in.ProductID,
		SellerID:  in.SellerID,
		BuyerID:   in.BuyerID,
		UserID:    s.viewerID,
	})
	if err != nil {
		return chat, err
	}

	if s.ActiveRoom() != roomID {
		log.Printf("stale chat history dropped room_id=%s active=%s", roomID, s.ActiveRoom())
		return chat, nil
	}
	serverUnread := history.SellerUnreadCount
	if role == models.RoleBuyer {
		serverUnread = history.BuyerUnreadCount
	}
	s.store.ApplyHistory(s.viewerID, roomID, history)
	if serverUnread > 0 {
		s.sendRead(chat)
	}

	if _, err := s.deals.Check(ctx, key); err != nil {
		log.Printf("deal check on open failed room_id=%s: %v", roomID, err)
	}

	if updated, ok := s.store.Chat(roomID); ok {
		return updated, nil
	}
	return chat, nil
}

// CloseChat clears the active conversation.
func (s *Session) CloseChat() error {
	s.mu.Lock()
	s.active = nil
	s.blocked = false
	s.mu.Unlock()
	s.store.SetActiveRoom("", s.viewerID)
	s.transport.SetChatActive(false)
	return s.transport.LeaveRoom()
}

// ActiveRoom returns the room id of the open chat.
func (s *Session) ActiveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.RoomID
}

// Blocked reports whether the last open attempt was a self-chat.
func (s *Session) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

func (s *Session) activeChat(roomID string) (models.ChatSummary, error) {
	s.mu.Lock()
	active, blocked := s.active, s.blocked
	s.mu.Unlock()
	if blocked {
		return models.ChatSummary{}, models.ErrSelfChat
	}
	if active == nil {
		return models.ChatSummary{}, ErrNoActiveChat
	}
	if roomID != "" && roomID != active.RoomID {
		return models.ChatSummary{}, ErrRoomNotActive
	}
	return *active, nil
}

// SendMessage sends text and an optional attachment to the open chat. The
// message is shown optimistically until the server echo confirms it.
func (s *Session) SendMessage(ctx context.Context, roomID, text string, attachment *models.Attachment) (models.Message, error) {
	chat, err := s.activeChat(roomID)
	if err != nil {
		return models.Message{}, err
	}
	if chat.SelfChat() {
		return models.Message{}, models.ErrSelfChat
	}
	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return models.Message{}, ErrEmptyMessage
	}
	role, ok := chat.RoleOf(s.viewerID)
	if !ok {
		return models.Message{}, ErrNotParticipant
	}

	now := time.Now()
	msg := models.Message{
		ID:           "tmp-" + uuid.NewString(),
		Text:         text,
		SenderID:     s.viewerID,
		SenderType:   role,
		Timestamp:    now,
		Attachment:   attachment,
		IsOptimistic: true,
	}
	s.store.AppendOptimistic(chat.RoomID, msg)
	s.store.UpdateRecentChat(models.ChatPatch{
		RoomID: chat.RoomID,
		LastMessage: &models.LastMessage{
			Message:    text,
			Timestamp:  now,
			SenderID:   s.viewerID,
			SenderType: role,
		},
	})

	if err := s.transport.SendMessage(models.OutgoingMessage{
		ProductID:  chat.ProductID,
		SellerID:   chat.SellerID,
		BuyerID:    chat.BuyerID,
		Message:    text,
		SenderID:   s.viewerID,
		SenderType: role,
		Attachment: attachment,
	}); err != nil {
		return msg, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// Upload validates and uploads an attachment for the open chat.
func (s *Session) Upload(ctx context.Context, roomID string, u ws.Upload) (models.Attachment, error) {
	chat, err := s.activeChat(roomID)
	if err != nil {
		return models.Attachment{}, err
	}
	u.RoomID = chat.RoomID
	return s.transport.UploadAttachment(ctx, u)
}

// SetTyping reports the viewer typing in the open chat.
func (s *Session) SetTyping(roomID string, typing bool) error {
	chat, err := s.activeChat(roomID)
	if err != nil {
		return err
	}
	return s.transport.SendTyping(models.TypingRequest{
		ProductID: chat.ProductID,
		UserID:    s.viewerID,
		SellerID:  chat.SellerID,
		BuyerID:   chat.BuyerID,
	}, typing)
}

// MarkRoomRead zeroes the viewer's unread counter and tells the server,
// at most once per cooldown per room. Nothing is sent when nothing is unread.
func (s *Session) MarkRoomRead(roomID string) (bool, error) {
	chat, ok := s.store.Chat(roomID)
	if !ok {
		return false, ErrUnknownRoom
	}
	if !s.store.MarkAsRead(roomID, s.viewerID) {
		return false, nil
	}
	return s.sendRead(chat), nil
}

func (s *Session) sendRead(chat models.ChatSummary) bool {
	if !s.throttle.Allow(chat.RoomID) {
		return false
	}
	if err := s.transport.MarkAsRead(models.MarkAsReadRequest{
		UserID:    s.viewerID,
		RoomID:    chat.RoomID,
		ProductID: chat.ProductID,
		SellerID:  chat.SellerID,
		BuyerID:   chat.BuyerID,
	}); err != nil {
		log.Printf("mark as read failed room_id=%s: %v", chat.RoomID, err)
		return false
	}
	return true
}

func (s *Session) handleMessage(m models.IncomingMessage) {
	s.store.ApplyMessage(s.viewerID, m)
	roomID := m.Room()
	if roomID == "" || roomID != s.ActiveRoom() || m.SenderID == s.viewerID {
		return
	}
	if chat, ok := s.store.Chat(roomID); ok {
		s.sendRead(chat)
	}
}

func (s *Session) handleRating(raw map[string]any) {
	s.feed.Add(raw)
	n, ok := notifications.Normalize(raw)
	if !ok || n.Rating == 0 {
		return
	}
	key := models.DealKey{ProductID: n.ProductID, BuyerID: n.BuyerID, SellerID: n.SellerID}
	roomID := n.RoomID
	if roomID == "" && key.Complete() {
		roomID = key.RoomID()
	}
	if roomID != "" && n.RatedBy != s.viewerID {
		s.store.SetRating(roomID, n.Rating)
	}
}

func (s *Session) handleDealEvent(event string, e models.DealEvent) {
	if _, changed := s.deals.ApplyEvent(event, e); changed {
		log.Printf("deal event applied event=%s room_id=%s deal_id=%s", event, e.Room(), e.ID())
	}

	key := e.Key()
	if !key.Complete() || e.Room() != s.ActiveRoom() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.checkTimeout)
		defer cancel()
		if _, err := s.deals.Check(ctx, key); err != nil {
			log.Printf("deal check after %s failed room_id=%s: %v", event, key.RoomID(), err)
		}
	}()
}

func (s *Session) dealNotification(event string, data json.RawMessage) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return
	}
	if _, ok := raw["type"]; !ok {
		switch event {
		case deal.EventRequest:
			raw["type"] = string(models.NotificationDealRequest)
		case deal.EventClosed:
			raw["type"] = string(models.NotificationDealAccepted)
		case deal.EventResolution:
			switch models.DealAction(fmt.Sprint(raw["action"])) {
			case models.DealActionAccept:
				raw["type"] = string(models.NotificationDealAccepted)
			case models.DealActionReject:
				raw["type"] = string(models.NotificationDealRejected)
			}
		}
	}
	s.feed.Add(raw)
}

func (s *Session) chatFor(roomID string) (models.ChatSummary, error) {
	chat, ok := s.store.Chat(roomID)
	if !ok {
		return models.ChatSummary{}, ErrUnknownRoom
	}
	return chat, nil
}

// ProposeDeal asks the seller of roomID to close at budget.
func (s *Session) ProposeDeal(ctx context.Context, roomID string, budget float64) (deal.State, error) {
	chat, err := s.chatFor(roomID)
	if err != nil {
		return deal.State{}, err
	}
	return s.deals.Propose(ctx, deal.ProposeInput{
		Key:          models.KeyOf(chat),
		ViewerID:     s.viewerID,
		Budget:       budget,
		MessageCount: chat.MessageCount,
	})
}

// RespondDeal accepts or rejects the pending proposal of roomID.
func (s *Session) RespondDeal(ctx context.Context, roomID string, action models.DealAction) (deal.State, error) {
	chat, err := s.chatFor(roomID)
	if err != nil {
		return deal.State{}, err
	}
	return s.deals.Respond(ctx, deal.RespondInput{
		Key:      models.KeyOf(chat),
		ViewerID: s.viewerID,
		Action:   action,
	})
}

// RateChat rates the conversation of roomID once its deal is accepted.
func (s *Session) RateChat(ctx context.Context, roomID string, rating int) (deal.State, error) {
	chat, err := s.chatFor(roomID)
	if err != nil {
		return deal.State{}, err
	}
	return s.deals.Rate(ctx, deal.RateInput{
		Key:          models.KeyOf(chat),
		ViewerID:     s.viewerID,
		ChatID:       chat.ID,
		Rating:       rating,
		MessageCount: chat.MessageCount,
	})
}

// DealStatus re-reads the deal of roomID from the server.
func (s *Session) DealStatus(ctx context.Context, roomID string) (deal.State, error) {
	chat, err := s.chatFor(roomID)
	if err != nil {
		return deal.State{}, err
	}
	return s.deals.Check(ctx, models.KeyOf(chat))
}

// Messages returns the loaded messages of roomID.
func (s *Session) Messages(roomID string) ([]models.Message, error) {
	if _, err := s.chatFor(roomID); err != nil {
		return nil, err
	}
	return s.store.Messages(roomID), nil
}

// RecentChats returns the chat list with presence filled in.
func (s *Session) RecentChats() []models.ChatSummary {
	return s.store.RecentChats()
}

// TotalUnread sums the viewer's unread counters.
func (s *Session) TotalUnread() int {
	return s.store.TotalUnread(s.viewerID)
}

// Notifications returns the notification feed, newest first.
func (s *Session) Notifications() []models.UnifiedNotification {
	return s.feed.List()
}

// UnseenNotifications counts the feed entries not seen yet.
func (s *Session) UnseenNotifications() int {
	return s.feed.UnseenCount()
}

// MarkNotificationsSeen acknowledges ids locally and on the backend.
func (s *Session) MarkNotificationsSeen(ctx context.Context, ids []string) {
	s.feed.MarkAsSeen(ctx, ids)
}

// OpenNotification marks the notification with the given dedup key seen and
// resolves where it leads.
func (s *Session) OpenNotification(ctx context.Context, key string) (models.NotificationTarget, error) {
	n, ok := s.feed.Find(key)
	if !ok {
		return models.NotificationTarget{}, ErrUnknownNotification
	}
	s.feed.Open(ctx, n)
	return notifications.ResolveTarget(n, s.viewerID, s.store.RecentChats())
}

// DeleteNotification removes the notification with the given dedup key.
func (s *Session) DeleteNotification(ctx context.Context, key string) error {
	n, ok := s.feed.Find(key)
	if !ok {
		return ErrUnknownNotification
	}
	return s.feed.Delete(ctx, n)
}

var _ Transport = (*ws.Client)(nil)
