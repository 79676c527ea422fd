package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/model"
	"careerhub/internal/service/contract"
)

type ContractHandler struct {
	contracts *contract.Service
	logger    *zap.Logger
}

func NewContractHandler(contracts *contract.Service, logger *zap.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, logger: logger}
}

// Create POST /contracts
func (h *ContractHandler) Create(c *gin.Context) {
	var in contract.CreateDraftInput
	if !bindJSON(c, h.logger, &in) {
		return
	}
	ct, err := h.contracts.CreateDraft(c.Request.Context(), CurrentUser(c).ID, in)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"contract": ct})
}

// List GET /contracts
func (h *ContractHandler) List(c *gin.Context) {
	list, err := h.contracts.ListMine(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"contracts": list})
}

// Get GET /contracts/:id
func (h *ContractHandler) Get(c *gin.Context) {
	h.contractAction(c, h.contracts.Get)
}

// Sign POST /contracts/:id/sign
func (h *ContractHandler) Sign(c *gin.Context) {
	h.contractAction(c, h.contracts.Sign)
}

// Cancel POST /contracts/:id/cancel
func (h *ContractHandler) Cancel(c *gin.Context) {
	h.contractAction(c, h.contracts.Cancel)
}

// Complete POST /contracts/:id/complete
func (h *ContractHandler) Complete(c *gin.Context) {
	h.contractAction(c, h.contracts.Complete)
}

func (h *ContractHandler) contractAction(c *gin.Context, fn func(ctx context.Context, id, actor uuid.UUID) (*model.Contract, error)) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	ct, err := fn(c.Request.Context(), id, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"contract": ct})
}

// AddMilestone POST /contracts/:id/milestones
func (h *ContractHandler) AddMilestone(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	var in contract.MilestoneInput
	if !bindJSON(c, h.logger, &in) {
		return
	}
	m, err := h.contracts.AddMilestone(c.Request.Context(), id, CurrentUser(c).ID, in)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"milestone": m})
}

// SubmitMilestone POST /contracts/:id/milestones/:milestone_id/submit
func (h *ContractHandler) SubmitMilestone(c *gin.Context) {
	h.milestoneAction(c, h.contracts.SubmitMilestone)
}

// ApproveMilestone POST /contracts/:id/milestones/:milestone_id/approve
func (h *ContractHandler) ApproveMilestone(c *gin.Context) {
	h.milestoneAction(c, h.contracts.ApproveMilestone)
}

func (h *ContractHandler) milestoneAction(c *gin.Context, fn func(ctx context.Context, contractID, milestoneID, actor uuid.UUID) (*model.Milestone, error)) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	mid, valid := uuidParam(c, h.logger, "milestone_id")
	if !valid {
		return
	}
	m, err := fn(c.Request.Context(), id, mid, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"milestone": m})
}
