package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/models"
)

// NotificationSession is the notification side of a session.
type NotificationSession interface {
	Notifications() []models.UnifiedNotification
	UnseenNotifications() int
	MarkNotificationsSeen(ctx context.Context, ids []string)
	OpenNotification(ctx context.Context, key string) (models.NotificationTarget, error)
	DeleteNotification(ctx context.Context, key string) error
}

// NotificationHandler exposes the notification feed.
type NotificationHandler struct {
	session NotificationSession
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(s NotificationSession) *NotificationHandler {
	return &NotificationHandler{session: s}
}

// ListNotifications returns the feed, newest first.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.session.Notifications(),
		"unseen":        h.session.UnseenNotifications(),
	})
}

// MarkSeen acknowledges notifications by server id.
func (h *NotificationHandler) MarkSeen(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids := trimmed(req.IDs)
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids must not be empty"})
		return
	}
	h.session.MarkNotificationsSeen(c.Request.Context(), ids)
	c.Status(http.StatusNoContent)
}

// OpenNotification marks a notification seen and returns where it leads.
func (h *NotificationHandler) OpenNotification(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := h.session.OpenNotification(c.Request.Context(), req.Key)
	if err != nil {
		respondError(c, err, "could not open notification")
		return
	}
	c.JSON(http.StatusOK, target)
}

// DeleteNotification removes a notification by its dedup key.
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	if err := h.session.DeleteNotification(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err, "could not delete notification")
		return
	}
	c.Status(http.StatusNoContent)
}
