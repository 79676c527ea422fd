package httpserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/handler"
	"careerhub/internal/service/auth"
	"careerhub/internal/util"
	"careerhub/pkg/logger"
	"careerhub/pkg/metrics"
	"careerhub/pkg/rbac"
	"careerhub/pkg/trace"
)

// AuthMiddleware 校验 Bearer 令牌并把用户写入 context
func AuthMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := authService.Authenticate(c.Request.Context(), util.ExtractToken(c.Request))
		if err != nil {
			handler.Abort(c, err)
			return
		}
		c.Set(handler.ContextUserKey, u)
		c.Next()
	}
}

// RequirePermission 中间件：要求用户角色具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := handler.CurrentUser(c)
		if u == nil {
			handler.Abort(c, apperr.Unauthenticated("user not authenticated"))
			return
		}
		if err := rbac.CheckPermission(u.Role, permission); err != nil {
			handler.Abort(c, apperr.Forbidden(err.Error()))
			return
		}
		c.Next()
	}
}

// RequireTier 订阅等级门槛，gate 未配置时不限制
func RequireTier(gates map[string][]string, gate string) gin.HandlerFunc {
	allowed := gates[gate]
	return func(c *gin.Context) {
		u := handler.CurrentUser(c)
		if u == nil {
			handler.Abort(c, apperr.Unauthenticated("user not authenticated"))
			return
		}
		if !auth.TierAllowed(u.SubscriptionTier, allowed) {
			handler.Abort(c, apperr.Forbidden("your subscription tier does not include this feature"))
			return
		}
		c.Next()
	}
}

// TraceMiddleware 复用或生成 X-Trace-ID
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(trace.HeaderName); id != "" {
			ctx = trace.WithContext(ctx, id)
		}
		ctx, id := trace.Ensure(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.HeaderName, id)
		c.Next()
	}
}

// RequestLogger 结构化访问日志并记录请求延迟
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		l := logger.WithTrace(c.Request.Context(), log)
		switch {
		case status >= 500:
			l.Error("HTTP request", fields...)
		case status >= 400:
			l.Info("HTTP request", fields...)
		default:
			l.Debug("HTTP request", fields...)
		}
	}
}
