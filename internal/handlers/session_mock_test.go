package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketplace-chat/internal/deal"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/session"
	"marketplace-chat/internal/ws"
)

type sessionMock struct {
	mock.Mock
}

func (m *sessionMock) ViewerID() string { return "seller-1" }

func (m *sessionMock) RecentChats() []models.ChatSummary {
	args := m.Called()
	return args.Get(0).([]models.ChatSummary)
}

func (m *sessionMock) TotalUnread() int {
	args := m.Called()
	return args.Int(0)
}

func (m *sessionMock) LoadChats(ctx context.Context) ([]models.ChatSummary, error) {
	args := m.Called(ctx)
	var chats []models.ChatSummary
	if val := args.Get(0); val != nil {
		chats = val.([]models.ChatSummary)
	}
	return chats, args.Error(1)
}

func (m *sessionMock) OpenChat(ctx context.Context, in session.OpenInput) (models.ChatSummary, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.ChatSummary), args.Error(1)
}

func (m *sessionMock) CloseChat() error {
	args := m.Called()
	return args.Error(0)
}

func (m *sessionMock) Messages(roomID string) ([]models.Message, error) {
	args := m.Called(roomID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *sessionMock) SendMessage(ctx context.Context, roomID, text string, attachment *models.Attachment) (models.Message, error) {
	args := m.Called(ctx, roomID, text, attachment)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *sessionMock) Upload(ctx context.Context, roomID string, u ws.Upload) (models.Attachment, error) {
	args := m.Called(ctx, roomID, u)
	return args.Get(0).(models.Attachment), args.Error(1)
}

func (m *sessionMock) SetTyping(roomID string, typing bool) error {
	args := m.Called(roomID, typing)
	return args.Error(0)
}

func (m *sessionMock) MarkRoomRead(roomID string) (bool, error) {
	args := m.Called(roomID)
	return args.Bool(0), args.Error(1)
}

func (m *sessionMock) Notifications() []models.UnifiedNotification {
	args := m.Called()
	return args.Get(0).([]models.UnifiedNotification)
}

func (m *sessionMock) UnseenNotifications() int {
	args := m.Called()
	return args.Int(0)
}

func (m *sessionMock) MarkNotificationsSeen(ctx context.Context, ids []string) {
	m.Called(ctx, ids)
}

func (m *sessionMock) OpenNotification(ctx context.Context, key string) (models.NotificationTarget, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(models.NotificationTarget), args.Error(1)
}

func (m *sessionMock) DeleteNotification(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *sessionMock) ProposeDeal(ctx context.Context, roomID string, budget float64) (deal.State, error) {
	args := m.Called(ctx, roomID, budget)
	return args.Get(0).(deal.State), args.Error(1)
}

func (m *sessionMock) RespondDeal(ctx context.Context, roomID string, action models.DealAction) (deal.State, error) {
	args := m.Called(ctx, roomID, action)
	return args.Get(0).(deal.State), args.Error(1)
}

func (m *sessionMock) RateChat(ctx context.Context, roomID string, rating int) (deal.State, error) {
	args := m.Called(ctx, roomID, rating)
	return args.Get(0).(deal.State), args.Error(1)
}

func (m *sessionMock) DealStatus(ctx context.Context, roomID string) (deal.State, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(deal.State), args.Error(1)
}

type requirementMock struct {
	mock.Mock
}

func (m *requirementMock) GetRequirement(ctx context.Context, id string) (map[string]any, error) {
	args := m.Called(ctx, id)
	var out map[string]any
	if val := args.Get(0); val != nil {
		out = val.(map[string]any)
	}
	return out, args.Error(1)
}
