package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"careerhub/internal/realtime"
	"careerhub/internal/service/auth"
	"careerhub/internal/service/notification"
)

type NotificationHandler struct {
	notifications *notification.Service
	auth          *auth.Service
	hub           *realtime.Hub
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *notification.Service, authService *auth.Service, hub *realtime.Hub, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		auth:          authService,
		hub:           hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 令牌在 query 中校验，不依赖 cookie
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// List GET /notifications?limit=
func (h *NotificationHandler) List(c *gin.Context) {
	list, err := h.notifications.List(c.Request.Context(), CurrentUser(c).ID, intQuery(c, "limit", 0))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"notifications": list})
}

// UnreadCount GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	count, err := h.notifications.MarkRead(c.Request.Context(), CurrentUser(c).ID, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkAllRead POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": updated, "unread_count": 0})
}

// Stream GET /ws/notifications?token=
func (h *NotificationHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.auth.Authenticate(ctx, c.Query("token"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	unread, err := h.notifications.UnreadCount(ctx, u.ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(ctx, conn, u.ID, unread)
}
