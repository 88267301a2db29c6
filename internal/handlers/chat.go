package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/api"
	"marketplace-chat/internal/deal"
	"marketplace-chat/internal/models"
	"marketplace-chat/internal/session"
	"marketplace-chat/internal/ws"
)

// ChatSession is the slice of a session the bridge drives.
type ChatSession interface {
	ViewerID() string
	RecentChats() []models.ChatSummary
	TotalUnread() int
	LoadChats(ctx context.Context) ([]models.ChatSummary, error)
	OpenChat(ctx context.Context, in session.OpenInput) (models.ChatSummary, error)
	CloseChat() error
	Messages(roomID string) ([]models.Message, error)
	SendMessage(ctx context.Context, roomID, text string, attachment *models.Attachment) (models.Message, error)
	Upload(ctx context.Context, roomID string, u ws.Upload) (models.Attachment, error)
	SetTyping(roomID string, typing bool) error
	MarkRoomRead(roomID string) (bool, error)
}

// ChatHandler exposes the chat list and the open conversation.
type ChatHandler struct {
	session ChatSession
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(s ChatSession) *ChatHandler {
	return &ChatHandler{session: s}
}

// ListChats returns the recent chats. refresh=true reloads them first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats := h.session.RecentChats()
	if c.Query("refresh") == "true" {
		loaded, err := h.session.LoadChats(c.Request.Context())
		if err != nil {
			respondError(c, err, "failed to load chats")
			return
		}
		chats = loaded
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "totalUnread": h.session.TotalUnread()})
}

// OpenChat makes a conversation the active one.
func (h *ChatHandler) OpenChat(c *gin.Context) {
	var req struct {
		ProductID   string `json:"productId" binding:"required"`
		BuyerID     string `json:"buyerId" binding:"required"`
		SellerID    string `json:"sellerId" binding:"required"`
		Name        string `json:"name"`
		ProductName string `json:"productName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.session.OpenChat(c.Request.Context(), session.OpenInput{
		ProductID:   req.ProductID,
		BuyerID:     req.BuyerID,
		SellerID:    req.SellerID,
		Name:        req.Name,
		ProductName: req.ProductName,
	})
	if err != nil {
		respondError(c, err, "could not open chat")
		return
	}
	messages, err := h.session.Messages(chat.RoomID)
	if err != nil {
		respondError(c, err, "could not load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

// CloseChat clears the active conversation.
func (h *ChatHandler) CloseChat(c *gin.Context) {
	if err := h.session.CloseChat(); err != nil && !errors.Is(err, ws.ErrNotConnected) {
		respondError(c, err, "could not close chat")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetChatMessages returns the loaded thread of a room.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	messages, err := h.session.Messages(c.Param("room_id"))
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// PostChatMessage sends a message to the open conversation.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req struct {
		Message    string             `json:"message"`
		Attachment *models.Attachment `json:"attachment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.session.SendMessage(c.Request.Context(), c.Param("room_id"), req.Message, req.Attachment)
	if err != nil {
		respondError(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostAttachment uploads a multipart file for the open conversation.
func (h *ChatHandler) PostAttachment(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > ws.MaxAttachmentSize {
		respondError(c, ws.ErrAttachmentTooLarge, "")
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, ws.MaxAttachmentSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}

	attachment, err := h.session.Upload(c.Request.Context(), c.Param("room_id"), ws.Upload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		respondError(c, err, "upload failed")
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

// PostTyping reports typing start or stop.
func (h *ChatHandler) PostTyping(c *gin.Context) {
	var req struct {
		Typing bool `json:"typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.SetTyping(c.Param("room_id"), req.Typing); err != nil {
		respondError(c, err, "could not send typing")
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead clears the viewer's unread counter for a room.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	sent, err := h.session.MarkRoomRead(c.Param("room_id"))
	if err != nil {
		respondError(c, err, "could not mark as read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

// respondError maps domain errors to status codes. fallback replaces the
// message of unexpected errors.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusBadGateway && fallback != "" {
		msg = fallback + ": " + msg
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	var upstream *api.StatusError
	if errors.As(err, &upstream) && upstream.Status == http.StatusNotFound {
		return http.StatusNotFound
	}
	switch {
	case errors.Is(err, session.ErrUnknownRoom), errors.Is(err, session.ErrUnknownNotification):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNoActiveChat), errors.Is(err, session.ErrRoomNotActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, ws.ErrAttachmentEmpty),
		errors.Is(err, ws.ErrAttachmentType),
		deal.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ws.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge
	case deal.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, ws.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ws.ErrNotConnected), errors.Is(err, ws.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
