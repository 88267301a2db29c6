package session

import (
	"context"
	"encoding/json"
	"sync"

	"marketplace-chat/internal/mocks"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/ws"
)

type fakeTransport struct {
	mu         sync.Mutex
	handlers   map[string][]ws.Handler
	identified string
	joins      []models.JoinRoomRequest
	leaves     int
	sent       []models.OutgoingMessage
	reads      []models.MarkAsReadRequest
	chatActive bool
	recent     []models.ChatSummary

	history func(models.HistoryRequest) (models.ChatHistory, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]ws.Handler)}
}

func (f *fakeTransport) push(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	handlers := append([]ws.Handler(nil), f.handlers[event]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (f *fakeTransport) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }

func (f *fakeTransport) Identify(userID string) error {
	f.mu.Lock()
	f.identified = userID
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) JoinRoom(req models.JoinRoomRequest) error {
	f.mu.Lock()
	f.joins = append(f.joins, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) LeaveRoom() error {
	f.mu.Lock()
	f.leaves++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendMessage(msg models.OutgoingMessage) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendTyping(req models.TypingRequest, typing bool) error { return nil }

func (f *fakeTransport) MarkAsRead(req models.MarkAsReadRequest) error {
	f.mu.Lock()
	f.reads = append(f.reads, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) GetChatHistory(ctx context.Context, req models.HistoryRequest) (models.ChatHistory, error) {
	if f.history == nil {
		return models.ChatHistory{}, nil
	}
	return f.history(req)
}

func (f *fakeTransport) GetRecentChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatSummary(nil), f.recent...), nil
}

func (f *fakeTransport) UploadAttachment(ctx context.Context, u ws.Upload) (models.Attachment, error) {
	return models.Attachment{URL: "https://cdn.example/" + u.FileName, FileName: u.FileName}, nil
}

func (f *fakeTransport) SetChatActive(active bool) {
	f.mu.Lock()
	f.chatActive = active
	f.mu.Unlock()
}

func (f *fakeTransport) On(event string, fn ws.Handler) func() {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], fn)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, event)
		f.mu.Unlock()
	}
}

func onTyped[T any](f *fakeTransport, event string, fn func(T)) func() {
	return f.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			fn(v)
		}
	})
}

func (f *fakeTransport) OnReceiveMessage(fn func(models.IncomingMessage)) func() {
	return onTyped(f, ws.EventReceiveMessage, fn)
}
func (f *fakeTransport) OnRecentChatUpdate(fn func(models.ChatPatch)) func() {
	return onTyped(f, ws.EventRecentChatUpdate, fn)
}
func (f *fakeTransport) OnLastMessageUpdate(fn func(models.LastMessageUpdate)) func() {
	return onTyped(f, ws.EventChatLastMessageUpdate, fn)
}
func (f *fakeTransport) OnUserOnline(fn func(models.PresenceEvent)) func() {
	return onTyped(f, ws.EventUserOnline, fn)
}
func (f *fakeTransport) OnUserOffline(fn func(models.PresenceEvent)) func() {
	return onTyped(f, ws.EventUserOffline, fn)
}
func (f *fakeTransport) OnBidNotifications(fn func([]map[string]any)) func() {
	return onTyped(f, ws.EventBidNotificationsList, fn)
}
func (f *fakeTransport) OnProductNotification(fn func(map[string]any)) func() {
	return onTyped(f, ws.EventProductNotification, fn)
}
func (f *fakeTransport) OnNewBid(fn func(map[string]any)) func() {
	return onTyped(f, ws.EventNewBid, fn)
}
func (f *fakeTransport) OnChatRating(fn func(map[string]any)) func() {
	return onTyped(f, ws.EventChatRating, fn)
}
func (f *fakeTransport) OnNewMessageNotification(fn func(map[string]any)) func() {
	return onTyped(f, ws.EventNewMessageNotification, fn)
}
func (f *fakeTransport) OnCloseDealRequest(fn func(models.DealEvent)) func() {
	return onTyped(f, ws.EventCloseDealRequest, fn)
}
func (f *fakeTransport) OnDealResolution(fn func(models.DealEvent)) func() {
	return onTyped(f, ws.EventCloseDealResolution, fn)
}
func (f *fakeTransport) OnDealClosed(fn func(models.DealEvent)) func() {
	return onTyped(f, ws.EventDealClosed, fn)
}

type backendMock struct {
	*mocks.DealBackendMock
	*mocks.NotificationBackendMock
}

func newBackendMock() backendMock {
	return backendMock{&mocks.DealBackendMock{}, &mocks.NotificationBackendMock{}}
}
