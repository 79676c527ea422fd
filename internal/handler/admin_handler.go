package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/service/settings"
	"careerhub/pkg/outbox"
)

type AdminHandler struct {
	settings      *settings.Service
	replayService *outbox.ReplayService
	logger        *zap.Logger
}

func NewAdminHandler(settingsService *settings.Service, replayService *outbox.ReplayService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		settings:      settingsService,
		replayService: replayService,
		logger:        logger,
	}
}

// GetPaymentSettings GET /admin/settings/payments
func (h *AdminHandler) GetPaymentSettings(c *gin.Context) {
	s, err := h.settings.Payments(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"settings": s})
}

// UpdatePaymentSettings PUT /admin/settings/payments
func (h *AdminHandler) UpdatePaymentSettings(c *gin.Context) {
	var in settings.UpdateInput
	if !bindJSON(c, h.logger, &in) {
		return
	}
	s, err := h.settings.UpdatePayments(c.Request.Context(), in)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.logger.Info("Payment settings updated", zap.String("admin_id", CurrentUser(c).ID.String()))
	ok(c, http.StatusOK, gin.H{"settings": s})
}

// ReplayOutboxEvent 重放指定的 Outbox 事件
// POST /admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || eventID <= 0 {
		fail(c, h.logger, apperr.Validation("invalid id parameter"))
		return
	}

	if err := h.replayService.ReplayEvent(c.Request.Context(), eventID); err != nil {
		if errors.Is(err, outbox.ErrEventNotFound) {
			fail(c, h.logger, apperr.NotFound("outbox event not found"))
			return
		}
		h.logger.Error("Failed to replay event", zap.Int64("event_id", eventID), zap.Error(err))
		fail(c, h.logger, apperr.Internal(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
}

// ReplayFailedEvents 重放所有失败的事件
// POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	if limit <= 0 {
		limit = 100
	}

	successCount, err := h.replayService.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		fail(c, h.logger, apperr.Internal(err))
		return
	}
	ok(c, http.StatusOK, gin.H{
		"status":        "completed",
		"success_count": successCount,
		"limit":         limit,
	})
}
