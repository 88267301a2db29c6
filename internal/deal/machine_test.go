package deal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-chat/internal/chatstore"
	"marketplace-chat/internal/mocks"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/telemetry"
)

var key = models.DealKey{ProductID: "p1", BuyerID: "b1", SellerID: "s1"}

func newMachine(t *testing.T) (*Machine, *mocks.DealBackendMock, *mocks.ChatLookupMock, *chatstore.Store) {
	t.Helper()
	backend := new(mocks.DealBackendMock)
	lookup := new(mocks.ChatLookupMock)
	store := chatstore.New()
	store.SetRecentChats("b1", []models.ChatSummary{{
		RoomID: key.RoomID(), ProductID: "p1", BuyerID: "b1", SellerID: "s1", UserType: models.RoleBuyer,
	}})
	return NewMachine(backend, lookup, store, nil), backend, lookup, store
}

func TestProposeMovesToWaiting(t *testing.T) {
	m, backend, _, store := newMachine(t)
	backend.On("CloseDeal", mock.Anything, models.CloseDealRequest{ProductID: "p1", SellerID: "s1", BuyerID: "b1", FinalBudget: 450}).
		Return(models.DealClosure{DealID: "d1", Status: models.DealWaitingSellerApproval, FinalBudget: 450}, nil).Once()

	state, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 450, MessageCount: 3})

	require.NoError(t, err)
	assert.Equal(t, models.DealWaitingSellerApproval, state.Status)
	assert.Equal(t, "d1", state.DealID)
	chat, _ := store.Chat(key.RoomID())
	require.NotNil(t, chat.ClosedDeal)
	assert.Equal(t, models.DealWaitingSellerApproval, chat.ClosedDeal.Status)
	backend.AssertExpectations(t)
}

func TestProposeRollsBackOnFailure(t *testing.T) {
	m, backend, _, store := newMachine(t)
	backend.On("CloseDeal", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 10, MessageCount: 1})

	require.Error(t, err)
	assert.Equal(t, models.DealNone, m.State(key).Status)
	chat, _ := store.Chat(key.RoomID())
	assert.Nil(t, chat.ClosedDeal)
}

func TestProposeValidation(t *testing.T) {
	cases := []struct {
		name string
		in   ProposeInput
		err  error
	}{
		{name: "seller cannot propose", in: ProposeInput{Key: key, ViewerID: "s1", Budget: 10, MessageCount: 1}, err: ErrNotBuyer},
		{name: "zero budget", in: ProposeInput{Key: key, ViewerID: "b1", Budget: 0, MessageCount: 1}, err: ErrInvalidBudget},
		{name: "negative budget", in: ProposeInput{Key: key, ViewerID: "b1", Budget: -5, MessageCount: 1}, err: ErrInvalidBudget},
		{name: "no messages", in: ProposeInput{Key: key, ViewerID: "b1", Budget: 10}, err: ErrNoMessages},
		{name: "self chat", in: ProposeInput{Key: models.DealKey{ProductID: "p1", BuyerID: "u1", SellerID: "u1"}, ViewerID: "u1", Budget: 10, MessageCount: 1}, err: models.ErrSelfChat},
		{name: "missing ids", in: ProposeInput{Key: models.DealKey{ProductID: "p1", BuyerID: "b1"}, ViewerID: "b1", Budget: 10, MessageCount: 1}, err: models.ErrIncompleteKey},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, backend, _, _ := newMachine(t)

			_, err := m.Propose(context.Background(), tc.in)

			assert.ErrorIs(t, err, tc.err)
			backend.AssertNotCalled(t, "CloseDeal", mock.Anything, mock.Anything)
		})
	}
}

func TestProposeRefusedWhilePending(t *testing.T) {
	m, backend, _, _ := newMachine(t)
	backend.On("CloseDeal", mock.Anything, mock.Anything).Return(models.DealClosure{DealID: "d1"}, nil).Once()

	_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 10, MessageCount: 1})
	require.NoError(t, err)
	_, err = m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 20, MessageCount: 1})

	assert.ErrorIs(t, err, ErrDealPending)
	backend.AssertNumberOfCalls(t, "CloseDeal", 1)
}

func TestProposeRefusedWhileFirstInFlight(t *testing.T) {
	m, backend, _, _ := newMachine(t)
	started, release := make(chan struct{}), make(chan struct{})
	backend.On("CloseDeal", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(models.DealClosure{DealID: "d1"}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 10, MessageCount: 1})
		done <- err
	}()
	<-started

	_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 20, MessageCount: 1})
	assert.ErrorIs(t, err, ErrDealPending)

	close(release)
	require.NoError(t, <-done)
	backend.AssertNumberOfCalls(t, "CloseDeal", 1)
}

func TestRespondRefusedWhileFirstInFlight(t *testing.T) {
	m, backend, _, _ := newMachine(t)
	backend.On("CloseDeal", mock.Anything, mock.Anything).Return(models.DealClosure{DealID: "d1"}, nil).Once()
	_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 100, MessageCount: 2})
	require.NoError(t, err)

	started, release := make(chan struct{}), make(chan struct{})
	backend.On("RespondToCloseDeal", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(models.DealClosure{DealID: "d1", Status: models.DealAccepted}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: models.DealActionAccept})
		done <- err
	}()
	<-started

	_, err = m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: models.DealActionReject})
	assert.ErrorIs(t, err, ErrDealBusy)
	assert.True(t, IsConflict(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, models.DealAccepted, m.State(key).Status)
	backend.AssertNumberOfCalls(t, "RespondToCloseDeal", 1)
}

func TestRespondIsTerminal(t *testing.T) {
	m, backend, _, _ := newMachine(t)
	backend.On("CloseDeal", mock.Anything, mock.Anything).Return(models.DealClosure{DealID: "d1"}, nil).Once()
	backend.On("RespondToCloseDeal", mock.Anything, models.RespondDealRequest{DealID: "d1", Action: models.DealActionAccept}).
		Return(models.DealClosure{DealID: "d1", Status: models.DealAccepted}, nil).Once()

	_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 100, MessageCount: 2})
	require.NoError(t, err)

	state, err := m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: models.DealActionAccept})
	require.NoError(t, err)
	assert.Equal(t, models.DealAccepted, state.Status)
	assert.True(t, state.CanRate())

	state, err = m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: models.DealActionReject})
	assert.ErrorIs(t, err, ErrDealResolved)
	assert.Equal(t, models.DealAccepted, state.Status)
	backend.AssertNumberOfCalls(t, "RespondToCloseDeal", 1)
}

func TestRespondRequiresPendingDealAndSeller(t *testing.T) {
	m, backend, _, _ := newMachine(t)

	_, err := m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "b1", Action: models.DealActionAccept})
	assert.ErrorIs(t, err, ErrNotSeller)

	_, err = m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: models.DealActionAccept})
	assert.ErrorIs(t, err, ErrNoPendingDeal)
	backend.AssertNotCalled(t, "RespondToCloseDeal", mock.Anything, mock.Anything)
}

func TestRespondResolvesDealIDThroughCheck(t *testing.T) {
	m, backend, _, _ := newMachine(t)
	m.ApplyEvent(EventRequest, models.DealEvent{ProductID: "p1", BuyerID: "b1", SellerID: "s1", FinalBudget: 80})
	backend.On("CheckClosedDeal", mock.Anything, key).
		Return(models.DealClosure{DealID: "d9", Status: models.DealWaitingSellerApproval, FinalBudget: 80}, nil).Once()
	backend.On("RespondToCloseDeal", mock.Anything, models.RespondDealRequest{DealID: "d9", Action: models.DealActionReject}).
		Return(models.DealClosure{}, nil).Once()

	state, err := m.Respond(context.Background(), RespondInput{Key: key, ViewerID: "s1", Action: models.DealActionReject})

	require.NoError(t, err)
	assert.Equal(t, models.DealRejected, state.Status)
	assert.False(t, state.CanRate())
	backend.AssertExpectations(t)
}

func TestRateResolvesChatID(t *testing.T) {
	m, backend, lookup, store := newMachine(t)
	m.ApplyEvent(EventResolution, models.DealEvent{DealID: "d1", Action: models.DealActionAccept, ProductID: "p1", BuyerID: "b1", SellerID: "s1"})
	lookup.On("ResolveChatID", mock.Anything, key).Return("c42", nil).Once()
	backend.On("RateChat", mock.Anything, models.RateChatRequest{ChatID: "c42", Rating: 4, RatedBy: "b1"}).Return(nil).Once()

	state, err := m.Rate(context.Background(), RateInput{Key: key, ViewerID: "b1", Rating: 4, MessageCount: 5})

	require.NoError(t, err)
	assert.Equal(t, 4, state.Rating)
	chat, _ := store.Chat(key.RoomID())
	assert.Equal(t, 4, chat.ChatRating)

	_, err = m.Rate(context.Background(), RateInput{Key: key, ViewerID: "b1", ChatID: "c42", Rating: 5, MessageCount: 5})
	assert.ErrorIs(t, err, ErrAlreadyRated)
	backend.AssertExpectations(t)
}

func TestRateUnresolvedChat(t *testing.T) {
	m, backend, lookup, _ := newMachine(t)
	m.ApplyEvent(EventClosed, models.DealEvent{DealID: "d1", ProductID: "p1", BuyerID: "b1", SellerID: "s1"})
	lookup.On("ResolveChatID", mock.Anything, key).Return("", errors.New("not found")).Once()

	_, err := m.Rate(context.Background(), RateInput{Key: key, ViewerID: "b1", Rating: 3, MessageCount: 2})

	assert.ErrorIs(t, err, ErrChatUnresolved)
	backend.AssertNotCalled(t, "RateChat", mock.Anything, mock.Anything)
}

func TestRateGuards(t *testing.T) {
	m, _, _, _ := newMachine(t)

	_, err := m.Rate(context.Background(), RateInput{Key: key, ViewerID: "b1", ChatID: "c1", Rating: 6, MessageCount: 1})
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = m.Rate(context.Background(), RateInput{Key: key, ViewerID: "b1", ChatID: "c1", Rating: 3, MessageCount: 1})
	assert.ErrorIs(t, err, ErrRatingLocked)

	_, err = m.Rate(context.Background(), RateInput{Key: key, ViewerID: "b1", ChatID: "c1", Rating: 3})
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestApplyEventIsMonotonic(t *testing.T) {
	m, _, _, _ := newMachine(t)

	state, changed := m.ApplyEvent(EventRequest, models.DealEvent{DealID: "d1", ProductID: "p1", BuyerID: "b1", SellerID: "s1", FinalBudget: 70})
	require.True(t, changed)
	assert.Equal(t, models.DealWaitingSellerApproval, state.Status)

	state, changed = m.ApplyEvent(EventResolution, models.DealEvent{
		Deal:   &models.DealClosure{DealID: "d1", ProductID: "p1", BuyerID: "b1", SellerID: "s1", Status: models.DealRejected},
		Action: models.DealActionReject,
	})
	require.True(t, changed)
	assert.Equal(t, models.DealRejected, state.Status)
	assert.Equal(t, 70.0, state.Budget)

	_, changed = m.ApplyEvent(EventResolution, models.DealEvent{DealID: "d1", Action: models.DealActionAccept, ProductID: "p1", BuyerID: "b1", SellerID: "s1"})
	assert.False(t, changed)
	_, changed = m.ApplyEvent(EventRequest, models.DealEvent{ProductID: "p1", BuyerID: "b1", SellerID: "s1"})
	assert.False(t, changed)
	assert.Equal(t, models.DealRejected, m.State(key).Status)

	state, changed = m.ApplyEvent(EventRequest, models.DealEvent{DealID: "d2", ProductID: "p1", BuyerID: "b1", SellerID: "s1"})
	assert.True(t, changed)
	assert.Equal(t, models.DealWaitingSellerApproval, state.Status)
}

func TestCheckAdoptsServerState(t *testing.T) {
	m, backend, _, _ := newMachine(t)
	backend.On("CheckClosedDeal", mock.Anything, key).Return(models.DealClosure{DealID: "d1", Status: models.DealAccepted, FinalBudget: 300}, nil).Once()
	backend.On("CheckClosedDeal", mock.Anything, key).Return(models.DealClosure{}, nil).Once()

	state, err := m.Check(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, models.DealAccepted, state.Status)
	assert.Equal(t, 300.0, state.Budget)

	state, err = m.Check(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, models.DealNone, state.Status)
}

func TestProposeEmitsAudit(t *testing.T) {
	backend := new(mocks.DealBackendMock)
	pub := new(mocks.PublisherMock)
	m := NewMachine(backend, nil, nil, telemetry.NewAuditEmitter(pub, "chat.audit", "marketplace-chat", "test"))
	backend.On("CloseDeal", mock.Anything, mock.Anything).Return(models.DealClosure{DealID: "d1"}, nil).Once()
	pub.On("Publish", mock.Anything, "chat.audit", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.Payload.Action == telemetry.ActionDealProposed && e.Payload.DealID == "d1"
	})).Return(nil).Once()

	_, err := m.Propose(context.Background(), ProposeInput{Key: key, ViewerID: "b1", Budget: 10, MessageCount: 1})

	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsValidation(ErrInvalidBudget))
	assert.True(t, IsConflict(ErrDealResolved))
	assert.True(t, IsConflict(models.ErrSelfChat))
	assert.False(t, IsValidation(errors.New("upstream")))
}
