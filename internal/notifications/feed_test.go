package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/mocks"
	"marketplace-chat/internal/models"
)

func TestFeedAddMergesTwoChannels(t *testing.T) {
	backend := new(mocks.NotificationBackendMock)
	feed := NewFeed(backend, "u1")

	backend.On("GetBidNotifications", mock.Anything).Return([]map[string]any{
		{"_id": "n1", "title": "New Quote", "productId": "p1", "timestamp": 100.0},
		{"_id": "n2", "title": "Back in stock", "productId": "p2", "timestamp": 50.0, "seen": true},
	}, nil).Once()

	require.NoError(t, feed.Refresh(context.Background()))
	feed.Add(map[string]any{"_id": "n1", "title": "New Quote", "productId": "p1", "timestamp": 200.0})

	list := feed.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(200), list[0].Timestamp)
	assert.Equal(t, 1, feed.UnseenCount())
	backend.AssertExpectations(t)
}

func TestFeedSkipsOwnRating(t *testing.T) {
	feed := NewFeed(nil, "u1")

	added := feed.Add(
		map[string]any{"chatId": "c1", "rating": 5.0, "ratedBy": "u1"},
		map[string]any{"chatId": "c2", "rating": 4.0, "ratedBy": "u2"},
	)

	assert.Equal(t, 1, added)
	assert.Len(t, feed.List(), 1)
}

func TestFeedMarkAsSeenIsOptimistic(t *testing.T) {
	backend := new(mocks.NotificationBackendMock)
	feed := NewFeed(backend, "u1")
	feed.Add(map[string]any{"_id": "n1", "title": "New Quote", "productId": "p1", "timestamp": 100.0})

	backend.On("MarkNotificationsSeen", mock.Anything, []string{"n1"}).Return(assert.AnError).Once()
	feed.MarkAsSeen(context.Background(), []string{"n1"})

	assert.Equal(t, 0, feed.UnseenCount())
	backend.AssertExpectations(t)
}

func TestFeedAddSameTimestampMarksSeen(t *testing.T) {
	feed := NewFeed(nil, "u1")
	feed.Add(map[string]any{"_id": "n1", "productId": "p1", "title": "New Bid", "timestamp": 1000.0, "seen": false})
	feed.Add(map[string]any{"_id": "n1", "productId": "p1", "title": "New Bid", "timestamp": 1000.0, "seen": true})

	list := feed.List()
	require.Len(t, list, 1)
	assert.True(t, list[0].Seen)
	assert.Equal(t, 0, feed.UnseenCount())
}

func TestFeedOpenSocketOnlyNotification(t *testing.T) {
	feed := NewFeed(new(mocks.NotificationBackendMock), "u1")
	feed.Add(map[string]any{"title": "Deal Requested", "deal": map[string]any{"productId": "p1"}, "timestamp": 10.0})
	n := feed.List()[0]

	feed.Open(context.Background(), n)

	assert.True(t, feed.List()[0].Seen)
}

func TestFeedOpenRemovesProductNotification(t *testing.T) {
	backend := new(mocks.NotificationBackendMock)
	feed := NewFeed(backend, "u1")
	feed.Add(map[string]any{"_id": "n9", "productId": "p1", "title": "Price drop", "timestamp": 10.0})

	backend.On("MarkNotificationsSeen", mock.Anything, []string{"n9"}).Return(nil).Once()
	feed.Open(context.Background(), feed.List()[0])

	assert.Empty(t, feed.List())
	backend.AssertExpectations(t)
}

func TestFeedDeleteCallsBackendForPersisted(t *testing.T) {
	backend := new(mocks.NotificationBackendMock)
	feed := NewFeed(backend, "u1")
	feed.Add(map[string]any{"_id": "n1", "title": "New Quote", "productId": "p1", "timestamp": 100.0})

	backend.On("DeleteNotification", mock.Anything, "n1").Return(nil).Once()
	require.NoError(t, feed.Delete(context.Background(), feed.List()[0]))

	assert.Empty(t, feed.List())
	backend.AssertExpectations(t)
}

func TestFeedSubscribeAndUnsubscribe(t *testing.T) {
	feed := NewFeed(nil, "u1")
	var seen [][]models.UnifiedNotification
	unsubscribe := feed.Subscribe(func(list []models.UnifiedNotification) {
		seen = append(seen, list)
	})

	feed.Add(map[string]any{"productId": "p1", "title": "Back in stock", "timestamp": 1.0})
	unsubscribe()
	feed.Add(map[string]any{"productId": "p2", "title": "Back in stock", "timestamp": 2.0})

	require.Len(t, seen, 1)
	assert.Len(t, seen[0], 1)
}
