package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/deal"
	"marketplace-chat/internal/models"
)

// DealSession is the deal side of a session.
type DealSession interface {
	ProposeDeal(ctx context.Context, roomID string, budget float64) (deal.State, error)
	RespondDeal(ctx context.Context, roomID string, action models.DealAction) (deal.State, error)
	RateChat(ctx context.Context, roomID string, rating int) (deal.State, error)
	DealStatus(ctx context.Context, roomID string) (deal.State, error)
}

// DealHandler drives the deal-closing flow of a room.
type DealHandler struct {
	session DealSession
}

// NewDealHandler builds a DealHandler.
func NewDealHandler(s DealSession) *DealHandler {
	return &DealHandler{session: s}
}

type dealResponse struct {
	deal.State
	CanRate bool `json:"canRate"`
}

func writeDeal(c *gin.Context, status int, s deal.State) {
	c.JSON(status, dealResponse{State: s, CanRate: s.CanRate()})
}

// Status re-reads the deal of room_id.
func (h *DealHandler) Status(c *gin.Context) {
	roomID := c.Query("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room_id is required"})
		return
	}
	state, err := h.session.DealStatus(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err, "deal check failed")
		return
	}
	writeDeal(c, http.StatusOK, state)
}

// Propose asks the seller to close at a final budget.
func (h *DealHandler) Propose(c *gin.Context) {
	var req struct {
		RoomID string  `json:"roomId" binding:"required"`
		Budget float64 `json:"finalBudget"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := h.session.ProposeDeal(c.Request.Context(), req.RoomID, req.Budget)
	if err != nil {
		respondError(c, err, "could not propose deal")
		return
	}
	writeDeal(c, http.StatusCreated, state)
}

// Respond accepts or rejects the pending proposal.
func (h *DealHandler) Respond(c *gin.Context) {
	var req struct {
		RoomID string            `json:"roomId" binding:"required"`
		Action models.DealAction `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := h.session.RespondDeal(c.Request.Context(), req.RoomID, req.Action)
	if err != nil {
		respondError(c, err, "could not respond to deal")
		return
	}
	writeDeal(c, http.StatusOK, state)
}

// Rate rates a chat whose deal was accepted.
func (h *DealHandler) Rate(c *gin.Context) {
	var req struct {
		RoomID string `json:"roomId" binding:"required"`
		Rating int    `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := h.session.RateChat(c.Request.Context(), req.RoomID, req.Rating)
	if err != nil {
		respondError(c, err, "could not rate chat")
		return
	}
	writeDeal(c, http.StatusOK, state)
}
