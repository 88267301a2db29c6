package deal

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"marketplace-chat/internal/models"
	"marketplace-chat/internal/telemetry"
)

// Backend is the REST collaborator owning deals and ratings.
type Backend interface {
	CloseDeal(ctx context.Context, req models.CloseDealRequest) (models.DealClosure, error)
	CheckClosedDeal(ctx context.Context, key models.DealKey) (models.DealClosure, error)
	RespondToCloseDeal(ctx context.Context, req models.RespondDealRequest) (models.DealClosure, error)
	RateChat(ctx context.Context, req models.RateChatRequest) error
}

// ChatLookup resolves the server id of a chat, refreshing the recent chats
// when it is not known locally.
type ChatLookup interface {
	ResolveChatID(ctx context.Context, key models.DealKey) (string, error)
}

// StateSink mirrors deal state into the chat list.
type StateSink interface {
	SetDealState(roomID string, status models.DealStatus, budget float64)
	SetRating(roomID string, rating int)
}

// State is the local view of the deal for one conversation.
type State struct {
	Key       models.DealKey    `json:"key"`
	Status    models.DealStatus `json:"status"`
	DealID    string            `json:"dealId,omitempty"`
	Budget    float64           `json:"budget,omitempty"`
	Rating    int               `json:"rating,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// CanRate reports whether the rate action is unlocked.
func (s State) CanRate() bool {
	return s.Status == models.DealAccepted && s.Rating == 0
}

// Machine drives none -> waiting_seller_approval -> accepted | rejected per
// conversation. Accepted and rejected are terminal for a deal id.
type Machine struct {
	backend Backend
	lookup  ChatLookup
	sink    StateSink
	audit   *telemetry.AuditEmitter
	now     func() time.Time

	mu       sync.Mutex
	states   map[string]State
	inflight map[string]bool
}

// NewMachine builds a machine. lookup, sink and audit may be nil.
func NewMachine(backend Backend, lookup ChatLookup, sink StateSink, audit *telemetry.AuditEmitter) *Machine {
	return &Machine{
		backend:  backend,
		lookup:   lookup,
		sink:     sink,
		audit:    audit,
		now:      time.Now,
		states:   make(map[string]State),
		inflight: make(map[string]bool),
	}
}

// State returns the current state for key.
func (m *Machine) State(key models.DealKey) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(key)
}

func (m *Machine) stateLocked(key models.DealKey) State {
	if s, ok := m.states[key.RoomID()]; ok {
		return s
	}
	return State{Key: key, Status: models.DealNone}
}

func (m *Machine) set(s State) State {
	m.mu.Lock()
	s = m.setLocked(s)
	m.mu.Unlock()
	m.publish(s)
	return s
}

func (m *Machine) setLocked(s State) State {
	s.UpdatedAt = m.now()
	m.states[s.Key.RoomID()] = s
	return s
}

func (m *Machine) publish(s State) {
	if m.sink != nil {
		m.sink.SetDealState(s.Key.RoomID(), s.Status, s.Budget)
	}
}

// ProposeInput is a buyer's request to close at a final budget.
type ProposeInput struct {
	Key          models.DealKey
	ViewerID     string
	Budget       float64
	MessageCount int
}

// Propose posts the proposal. The waiting status is applied before the call
// and rolled back if it fails, so a concurrent proposal gets ErrDealPending.
func (m *Machine) Propose(ctx context.Context, in ProposeInput) (State, error) {
	if err := guard(in.Key, in.MessageCount); err != nil {
		return State{}, err
	}
	if in.ViewerID != in.Key.BuyerID {
		return State{}, ErrNotBuyer
	}
	if in.Budget <= 0 || math.IsNaN(in.Budget) || math.IsInf(in.Budget, 0) {
		return State{}, ErrInvalidBudget
	}

	m.mu.Lock()
	prev := m.stateLocked(in.Key)
	switch prev.Status {
	case models.DealWaitingSellerApproval:
		m.mu.Unlock()
		return prev, ErrDealPending
	case models.DealAccepted:
		m.mu.Unlock()
		return prev, ErrDealClosed
	}
	waiting := m.setLocked(State{Key: in.Key, Status: models.DealWaitingSellerApproval, Budget: in.Budget, Rating: prev.Rating})
	m.mu.Unlock()
	m.publish(waiting)

	ctx, span := telemetry.StartSpan(ctx, "deal.propose", attribute.String("room_id", in.Key.RoomID()))
	defer span.End()

	closure, err := m.backend.CloseDeal(ctx, models.CloseDealRequest{
		ProductID:   in.Key.ProductID,
		SellerID:    in.Key.SellerID,
		BuyerID:     in.Key.BuyerID,
		FinalBudget: in.Budget,
	})
	if err != nil {
		span.RecordError(err)
		m.set(prev)
		return prev, fmt.Errorf("propose deal: %w", err)
	}

	next := State{Key: in.Key, Status: models.DealWaitingSellerApproval, DealID: closure.DealID, Budget: in.Budget}
	if closure.FinalBudget > 0 {
		next.Budget = closure.FinalBudget
	}
	next = m.set(next)
	m.audit.Emit(ctx, in.ViewerID, telemetry.AuditPayload{
		Action: telemetry.ActionDealProposed,
		Text:   "deal proposed",
		RoomID: in.Key.RoomID(),
		DealID: next.DealID,
		Budget: next.Budget,
	})
	return next, nil
}

// RespondInput is the seller's answer to a pending proposal.
type RespondInput struct {
	Key      models.DealKey
	ViewerID string
	Action   models.DealAction
}

// Respond accepts or rejects the pending proposal. A deal already resolved
// is reported as ErrDealResolved and never transitions again. Only one
// response per conversation is in flight; others get ErrDealBusy.
func (m *Machine) Respond(ctx context.Context, in RespondInput) (State, error) {
	if err := guard(in.Key, -1); err != nil {
		return State{}, err
	}
	if in.ViewerID != in.Key.SellerID {
		return State{}, ErrNotSeller
	}
	status, ok := in.Action.Status()
	if !ok {
		return State{}, ErrInvalidAction
	}

	cur := m.State(in.Key)
	if cur.Status == models.DealWaitingSellerApproval && cur.DealID == "" {
		checked, err := m.Check(ctx, in.Key)
		if err != nil {
			return cur, err
		}
		cur = checked
	}
	switch {
	case cur.Status.Terminal():
		return cur, ErrDealResolved
	case cur.Status != models.DealWaitingSellerApproval:
		return cur, ErrNoPendingDeal
	case cur.DealID == "":
		return cur, ErrDealUnresolved
	}

	room := in.Key.RoomID()
	m.mu.Lock()
	if m.inflight[room] {
		m.mu.Unlock()
		return cur, ErrDealBusy
	}
	if latest := m.stateLocked(in.Key); latest.DealID == cur.DealID && latest.Status.Terminal() {
		m.mu.Unlock()
		return latest, ErrDealResolved
	}
	m.inflight[room] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, room)
		m.mu.Unlock()
	}()

	ctx, span := telemetry.StartSpan(ctx, "deal.respond", attribute.String("deal_id", cur.DealID))
	defer span.End()

	closure, err := m.backend.RespondToCloseDeal(ctx, models.RespondDealRequest{DealID: cur.DealID, Action: in.Action})
	if err != nil {
		span.RecordError(err)
		return cur, fmt.Errorf("respond to deal: %w", err)
	}

	m.mu.Lock()
	latest := m.stateLocked(in.Key)
	m.mu.Unlock()
	if latest.DealID == cur.DealID && latest.Status.Terminal() {
		return latest, ErrDealResolved
	}

	next := cur
	next.Status = status
	if closure.FinalBudget > 0 {
		next.Budget = closure.FinalBudget
	}
	next = m.set(next)

	action := telemetry.ActionDealRejected
	if status == models.DealAccepted {
		action = telemetry.ActionDealAccepted
	}
	m.audit.Emit(ctx, in.ViewerID, telemetry.AuditPayload{
		Action: action,
		Text:   "deal " + string(status),
		RoomID: in.Key.RoomID(),
		DealID: next.DealID,
		Budget: next.Budget,
	})
	return next, nil
}

// RateInput is a rating of a chat whose deal was accepted.
type RateInput struct {
	Key          models.DealKey
	ViewerID     string
	ChatID       string
	Rating       int
	MessageCount int
}

// Rate submits the rating. An unknown chat id is resolved through the
// lookup; if that fails nothing is sent.
func (m *Machine) Rate(ctx context.Context, in RateInput) (State, error) {
	if err := guard(in.Key, in.MessageCount); err != nil {
		return State{}, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return State{}, ErrInvalidRating
	}
	cur := m.State(in.Key)
	if cur.Rating > 0 {
		return cur, ErrAlreadyRated
	}
	if cur.Status != models.DealAccepted {
		return cur, ErrRatingLocked
	}

	chatID := in.ChatID
	if chatID == "" && m.lookup != nil {
		resolved, err := m.lookup.ResolveChatID(ctx, in.Key)
		if err != nil {
			log.Printf("chat id lookup failed room_id=%s: %v", in.Key.RoomID(), err)
		}
		chatID = resolved
	}
	if chatID == "" {
		return cur, ErrChatUnresolved
	}

	ctx, span := telemetry.StartSpan(ctx, "deal.rate", attribute.String("chat_id", chatID))
	defer span.End()

	if err := m.backend.RateChat(ctx, models.RateChatRequest{ChatID: chatID, Rating: in.Rating, RatedBy: in.ViewerID}); err != nil {
		span.RecordError(err)
		return cur, fmt.Errorf("rate chat: %w", err)
	}

	next := cur
	next.Rating = in.Rating
	next.UpdatedAt = m.now()
	m.mu.Lock()
	m.states[in.Key.RoomID()] = next
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetRating(in.Key.RoomID(), in.Rating)
	}

	m.audit.Emit(ctx, in.ViewerID, telemetry.AuditPayload{
		Action: telemetry.ActionChatRated,
		Text:   "chat rated",
		RoomID: in.Key.RoomID(),
		DealID: next.DealID,
		Rating: in.Rating,
	})
	return next, nil
}

// Check re-reads the deal from the server and adopts it.
func (m *Machine) Check(ctx context.Context, key models.DealKey) (State, error) {
	if !key.Complete() {
		return State{}, models.ErrIncompleteKey
	}
	closure, err := m.backend.CheckClosedDeal(ctx, key)
	if err != nil {
		return m.State(key), fmt.Errorf("check deal: %w", err)
	}

	status := closure.Status
	if status == "" {
		status = models.DealNone
	}
	cur := m.State(key)
	next := State{Key: key, Status: status, DealID: closure.DealID, Budget: closure.FinalBudget, Rating: cur.Rating}
	if next.DealID == "" && status != models.DealNone {
		next.DealID = cur.DealID
	}
	return m.set(next), nil
}

// ApplyEvent folds a deal broadcast into local state. Events that would move
// a deal backwards are ignored; a new deal id starts a new instance.
func (m *Machine) ApplyEvent(event string, e models.DealEvent) (State, bool) {
	key := e.Key()
	if !key.Complete() {
		return State{}, false
	}

	var status models.DealStatus
	switch {
	case e.Deal != nil && e.Deal.Status != "":
		status = e.Deal.Status
	case e.Action != "":
		s, ok := e.Action.Status()
		if !ok {
			return State{}, false
		}
		status = s
	case event == EventRequest:
		status = models.DealWaitingSellerApproval
	case event == EventClosed:
		status = models.DealAccepted
	default:
		return State{}, false
	}

	budget := e.FinalBudget
	if budget == 0 && e.Deal != nil {
		budget = e.Deal.FinalBudget
	}

	m.mu.Lock()
	cur := m.stateLocked(key)
	m.mu.Unlock()

	next := State{Key: key, Status: status, DealID: e.ID(), Budget: budget, Rating: cur.Rating}
	if next.DealID == "" {
		next.DealID = cur.DealID
	}
	if next.Budget == 0 {
		next.Budget = cur.Budget
	}
	if !advances(cur, next) {
		return cur, false
	}
	return m.set(next), true
}

// Broadcast event names understood by ApplyEvent.
const (
	EventRequest    = "close_deal_request"
	EventResolution = "close_deal_resolution"
	EventClosed     = "deal_closed"
)

func advances(cur, next State) bool {
	if next.DealID != "" && cur.DealID != "" && next.DealID != cur.DealID {
		return true
	}
	if cur.Status.Terminal() {
		return false
	}
	return rank(next.Status) > rank(cur.Status)
}

func rank(s models.DealStatus) int {
	switch s {
	case models.DealWaitingSellerApproval:
		return 1
	case models.DealAccepted, models.DealRejected:
		return 2
	}
	return 0
}

func guard(key models.DealKey, messageCount int) error {
	if !key.Complete() {
		return models.ErrIncompleteKey
	}
	if key.BuyerID == key.SellerID {
		return models.ErrSelfChat
	}
	if messageCount == 0 {
		return ErrNoMessages
	}
	return nil
}
