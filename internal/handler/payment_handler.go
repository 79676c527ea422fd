package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/service/escrow"
)

// maxWebhookBody 网关回调体上限
const maxWebhookBody = 1 << 16

type PaymentHandler struct {
	escrow *escrow.Service
	logger *zap.Logger
}

func NewPaymentHandler(escrowService *escrow.Service, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{escrow: escrowService, logger: logger}
}

type fundRequest struct {
	ContractID  uuid.UUID `json:"contract_id" binding:"required"`
	MilestoneID uuid.UUID `json:"milestone_id" binding:"required"`
	Provider    string    `json:"provider"`
}

// FundContract POST /payments/fund-contract
func (h *PaymentHandler) FundContract(c *gin.Context) {
	var req fundRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	res, err := h.escrow.FundMilestone(c.Request.Context(), req.ContractID, req.MilestoneID, CurrentUser(c).ID,
		escrow.FundInput{Provider: req.Provider})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"provider":     res.Provider,
		"checkout_id":  res.CheckoutID,
		"redirect_url": res.RedirectURL,
	})
}

type payoutRequest struct {
	ContractID  uuid.UUID `json:"contract_id" binding:"required"`
	MilestoneID uuid.UUID `json:"milestone_id" binding:"required"`
}

// Payout POST /stripe-connect/payout
func (h *PaymentHandler) Payout(c *gin.Context) {
	var req payoutRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	tx, err := h.escrow.ReleasePayment(c.Request.Context(), req.ContractID, req.MilestoneID, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"transaction":  tx,
		"transfer_id":  tx.TransferID,
		"amount":       tx.GrossAmount,
		"platform_fee": tx.PlatformFee,
		"net_amount":   tx.NetAmount,
	})
}

// provider /stripe-connect/* 固定为 stripe，/connect/:provider/* 取路径参数
func provider(c *gin.Context) string {
	if p := c.Param("provider"); p != "" {
		return p
	}
	return model.ProviderStripe
}

// Onboard POST /stripe-connect/onboard, POST /connect/:provider/onboard
func (h *PaymentHandler) Onboard(c *gin.Context) {
	res, err := h.escrow.Onboard(c.Request.Context(), CurrentUser(c).ID, provider(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"provider":        res.Provider,
		"account":         res.Account,
		"onboarding_url":  res.OnboardingURL,
		"already_enabled": res.AlreadyEnabled,
	})
}

// Status GET /stripe-connect/status, GET /connect/:provider/status
func (h *PaymentHandler) Status(c *gin.Context) {
	acct, err := h.escrow.RefreshAccount(c.Request.Context(), CurrentUser(c).ID, provider(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"account": acct})
}

// Earnings GET /stripe-connect/earnings
func (h *PaymentHandler) Earnings(c *gin.Context) {
	e, err := h.escrow.Earnings(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"totals": e.Totals, "transactions": e.Transactions})
}

// ContractPayments GET /contracts/:id/payments
func (h *PaymentHandler) ContractPayments(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	txs, err := h.escrow.ContractPayments(c.Request.Context(), id, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"transactions": txs})
}

// Webhook POST /webhooks/:provider
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, h.logger, apperr.InvalidRequest("unreadable webhook body"))
		return
	}
	if err := h.escrow.HandleWebhook(c.Request.Context(), c.Param("provider"), payload, c.Request.Header); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"received": true})
}
