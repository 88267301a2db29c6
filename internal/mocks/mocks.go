package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"marketplace-chat/internal/models"
)

type NotificationBackendMock struct {
	mock.Mock
}

func (m *NotificationBackendMock) GetBidNotifications(ctx context.Context) ([]map[string]any, error) {
	args := m.Called(ctx)
	var list []map[string]any
	if val := args.Get(0); val != nil {
		list = val.([]map[string]any)
	}
	return list, args.Error(1)
}

func (m *NotificationBackendMock) MarkNotificationsSeen(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *NotificationBackendMock) DeleteNotification(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type DealBackendMock struct {
	mock.Mock
}

func (m *DealBackendMock) CloseDeal(ctx context.Context, req models.CloseDealRequest) (models.DealClosure, error) {
	args := m.Called(ctx, req)
	var closure models.DealClosure
	if val := args.Get(0); val != nil {
		closure = val.(models.DealClosure)
	}
	return closure, args.Error(1)
}

func (m *DealBackendMock) CheckClosedDeal(ctx context.Context, key models.DealKey) (models.DealClosure, error) {
	args := m.Called(ctx, key)
	var closure models.DealClosure
	if val := args.Get(0); val != nil {
		closure = val.(models.DealClosure)
	}
	return closure, args.Error(1)
}

func (m *DealBackendMock) RespondToCloseDeal(ctx context.Context, req models.RespondDealRequest) (models.DealClosure, error) {
	args := m.Called(ctx, req)
	var closure models.DealClosure
	if val := args.Get(0); val != nil {
		closure = val.(models.DealClosure)
	}
	return closure, args.Error(1)
}

func (m *DealBackendMock) RateChat(ctx context.Context, req models.RateChatRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type ChatLookupMock struct {
	mock.Mock
}

func (m *ChatLookupMock) ResolveChatID(ctx context.Context, key models.DealKey) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}
