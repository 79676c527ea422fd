package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"careerhub/internal/handler"
	"careerhub/internal/service/auth"
	"careerhub/pkg/otel"
	"careerhub/pkg/rbac"
)

// TierGateJobCreate 发布职位所需的订阅等级门槛
const TierGateJobCreate = "jobs.create"

type Handlers struct {
	Auth          *handler.AuthHandler
	Jobs          *handler.JobHandler
	Proposals     *handler.ProposalHandler
	Contracts     *handler.ContractHandler
	Payments      *handler.PaymentHandler
	Notifications *handler.NotificationHandler
	Admin         *handler.AdminHandler
}

// ReadinessCheck 返回 nil 表示依赖可用
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	AuthService     *auth.Service
	TierGates       map[string][]string
	ProposalLimiter *RateLimiter
	Readiness       map[string]ReadinessCheck
	Logger          *zap.Logger
}

func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), RequestLogger(opts.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", readyz(opts.Readiness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/auth/register", h.Auth.Register)
	r.POST("/auth/login", h.Auth.Login)
	r.GET("/jobs", h.Jobs.List)
	r.GET("/jobs/:id", h.Jobs.Get)
	r.POST("/webhooks/:provider", h.Payments.Webhook)
	// WebSocket 通过 query 参数鉴权
	r.GET("/ws/notifications", h.Notifications.Stream)

	// Protected
	authed := r.Group("/")
	authed.Use(AuthMiddleware(opts.AuthService))
	{
		authed.GET("/auth/me", h.Auth.Me)

		authed.POST("/jobs",
			RequirePermission(rbac.PermissionJobCreate),
			RequireTier(opts.TierGates, TierGateJobCreate),
			h.Jobs.Create)
		authed.POST("/jobs/:id/close", h.Jobs.Close)
		authed.GET("/jobs/:id/proposals", h.Proposals.ListForJob)

		submit := []gin.HandlerFunc{RequirePermission(rbac.PermissionProposalSubmit)}
		if opts.ProposalLimiter != nil {
			submit = append(submit, RateLimit(opts.ProposalLimiter, "proposals"))
		}
		authed.POST("/jobs/:id/proposals", append(submit, h.Proposals.Submit)...)
		authed.POST("/proposals", append(submit, h.Proposals.SubmitForJob)...)

		authed.GET("/proposals", h.Proposals.ListMine)
		authed.GET("/proposals/my-proposals", h.Proposals.ListMine)
		authed.GET("/proposals/job/:job_id", h.Proposals.ListForJob)
		authed.GET("/proposals/:id", h.Proposals.Get)
		authed.PATCH("/proposals/:id/status", h.Proposals.SetStatus)
		authed.POST("/proposals/:id/status", h.Proposals.SetStatus)
		authed.POST("/proposals/:id/withdraw", h.Proposals.Withdraw)

		contracts := authed.Group("/contracts")
		contracts.Use(RequirePermission(rbac.PermissionContractManage))
		{
			contracts.POST("", h.Contracts.Create)
			contracts.GET("", h.Contracts.List)
			contracts.GET("/:id", h.Contracts.Get)
			contracts.POST("/:id/sign", h.Contracts.Sign)
			contracts.POST("/:id/cancel", h.Contracts.Cancel)
			contracts.POST("/:id/complete", h.Contracts.Complete)
			contracts.POST("/:id/milestones", h.Contracts.AddMilestone)
			contracts.POST("/:id/milestones/:milestone_id/submit", h.Contracts.SubmitMilestone)
			contracts.POST("/:id/milestones/:milestone_id/approve", h.Contracts.ApproveMilestone)
			contracts.GET("/:id/payments", h.Payments.ContractPayments)
		}

		payments := authed.Group("/")
		payments.Use(RequirePermission(rbac.PermissionPaymentInitiate))
		{
			payments.POST("/payments/fund-contract", h.Payments.FundContract)
			payments.POST("/stripe-connect/onboard", h.Payments.Onboard)
			payments.GET("/stripe-connect/status", h.Payments.Status)
			payments.POST("/stripe-connect/payout", h.Payments.Payout)
			payments.GET("/stripe-connect/earnings", h.Payments.Earnings)
			payments.POST("/connect/:provider/onboard", h.Payments.Onboard)
			payments.GET("/connect/:provider/status", h.Payments.Status)
		}

		authed.GET("/notifications", h.Notifications.List)
		authed.GET("/notifications/unread-count", h.Notifications.UnreadCount)
		authed.POST("/notifications/:id/read", h.Notifications.MarkRead)
		authed.POST("/notifications/read-all", h.Notifications.MarkAllRead)

		admin := authed.Group("/admin")
		{
			admin.GET("/settings/payments", RequirePermission(rbac.PermissionSettingsRead), h.Admin.GetPaymentSettings)
			admin.PUT("/settings/payments", RequirePermission(rbac.PermissionSettingsWrite), h.Admin.UpdatePaymentSettings)
			admin.POST("/outbox/replay", RequirePermission(rbac.PermissionOutboxReplay), h.Admin.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", RequirePermission(rbac.PermissionOutboxReplay), h.Admin.ReplayFailedEvents)
		}
	}

	return r
}

func readyz(checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
