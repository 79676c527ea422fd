package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/service/proposal"
)

type ProposalHandler struct {
	proposals *proposal.Service
	logger    *zap.Logger
}

func NewProposalHandler(proposals *proposal.Service, logger *zap.Logger) *ProposalHandler {
	return &ProposalHandler{proposals: proposals, logger: logger}
}

// Submit POST /jobs/:id/proposals
func (h *ProposalHandler) Submit(c *gin.Context) {
	jobID, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	var in proposal.SubmitInput
	if !bindJSON(c, h.logger, &in) {
		return
	}
	p, err := h.proposals.Submit(c.Request.Context(), jobID, CurrentUser(c).ID, in)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"proposal": p})
}

type submitRequest struct {
	JobID uuid.UUID `json:"job_id" binding:"required"`
	proposal.SubmitInput
}

// SubmitForJob POST /proposals，job_id 在请求体中
func (h *ProposalHandler) SubmitForJob(c *gin.Context) {
	var req submitRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, err := h.proposals.Submit(c.Request.Context(), req.JobID, CurrentUser(c).ID, req.SubmitInput)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"proposal": p})
}

// ListForJob GET /jobs/:id/proposals, GET /proposals/job/:job_id
func (h *ProposalHandler) ListForJob(c *gin.Context) {
	param := "id"
	if c.Param("job_id") != "" {
		param = "job_id"
	}
	jobID, valid := uuidParam(c, h.logger, param)
	if !valid {
		return
	}
	list, err := h.proposals.ListForJob(c.Request.Context(), jobID, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"proposals": list})
}

// ListMine GET /proposals, GET /proposals/my-proposals
func (h *ProposalHandler) ListMine(c *gin.Context) {
	list, err := h.proposals.ListMine(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"proposals": list})
}

// Get GET /proposals/:id
func (h *ProposalHandler) Get(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	p, err := h.proposals.Get(c.Request.Context(), id, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"proposal": p})
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus PATCH|POST /proposals/:id/status
func (h *ProposalHandler) SetStatus(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	var req statusRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	p, contract, err := h.proposals.SetStatus(c.Request.Context(), id, CurrentUser(c).ID, req.Status)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	body := gin.H{"proposal": p}
	if contract != nil {
		body["contract"] = contract
	}
	ok(c, http.StatusOK, body)
}

// Withdraw POST /proposals/:id/withdraw
func (h *ProposalHandler) Withdraw(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	p, err := h.proposals.Withdraw(c.Request.Context(), id, CurrentUser(c).ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"proposal": p})
}
