package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/telemetry"
)

// Session is everything the bridge needs from a logged-in session.
type Session interface {
	ChatSession
	NotificationSession
	DealSession
}

// RouterConfig wires the bridge router.
type RouterConfig struct {
	ServiceName  string
	Token        string
	Session      Session
	Requirements RequirementReader
	Audit        *telemetry.AuditEmitter
	Debug        bool
}

// NewRouter builds the local view bridge.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(RequestIDMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", middleware.BridgeAuth(cfg.Token, cfg.Session.ViewerID()))

	chat := NewChatHandler(cfg.Session)
	api.GET("/chats", chat.ListChats)
	api.POST("/chats/open", chat.OpenChat)
	api.POST("/chats/close", chat.CloseChat)
	api.GET("/chats/:room_id/messages", chat.GetChatMessages)
	api.POST("/chats/:room_id/messages", chat.PostChatMessage)
	api.POST("/chats/:room_id/attachments", chat.PostAttachment)
	api.POST("/chats/:room_id/typing", chat.PostTyping)
	api.POST("/chats/:room_id/read", chat.MarkRead)

	notifications := NewNotificationHandler(cfg.Session)
	api.GET("/notifications", notifications.ListNotifications)
	api.POST("/notifications/seen", notifications.MarkSeen)
	api.POST("/notifications/open", notifications.OpenNotification)
	api.DELETE("/notifications/:key", notifications.DeleteNotification)

	deals := NewDealHandler(cfg.Session)
	api.GET("/deals/status", deals.Status)
	api.POST("/deals/propose", deals.Propose)
	api.POST("/deals/respond", deals.Respond)
	api.POST("/deals/rate", deals.Rate)

	if cfg.Requirements != nil {
		api.GET("/requirements/:id", NewRequirementHandler(cfg.Requirements).GetRequirement)
	}

	RegisterDebugRoutes(api, cfg.Audit, cfg.Debug)
	return router
}
