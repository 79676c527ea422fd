package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"careerhub/internal/service/job"
)

type JobHandler struct {
	jobs   *job.Service
	logger *zap.Logger
}

func NewJobHandler(jobs *job.Service, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// Create POST /jobs
func (h *JobHandler) Create(c *gin.Context) {
	var in job.CreateInput
	if !bindJSON(c, h.logger, &in) {
		return
	}
	j, err := h.jobs.Create(c.Request.Context(), CurrentUser(c).ID, in)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"job": j})
}

// List GET /jobs?limit=&offset=
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobs.ListOpen(c.Request.Context(), intQuery(c, "limit", 0), intQuery(c, "offset", 0))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"jobs": jobs})
}

// Get GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	j, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"job": j})
}

// Close POST /jobs/:id/close
func (h *JobHandler) Close(c *gin.Context) {
	id, valid := uuidParam(c, h.logger, "id")
	if !valid {
		return
	}
	if err := h.jobs.Close(c.Request.Context(), id, CurrentUser(c).ID); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "closed"})
}
