package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"careerhub/internal/handler"
	"careerhub/internal/model"
	"careerhub/pkg/rbac"
	"careerhub/pkg/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// engine 以指定用户身份执行 mw
func engine(u *model.User, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u != nil {
			c.Set(handler.ContextUserKey, u)
		}
		c.Next()
	})
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trace_id": trace.FromContext(c.Request.Context())})
	})
	return r
}

func get(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func user(role, tier string) *model.User {
	return &model.User{ID: uuid.New(), Role: role, SubscriptionTier: tier}
}

func TestRequireTier(t *testing.T) {
	gates := map[string][]string{TierGateJobCreate: {model.TierStarter, model.TierPro}}

	rec := get(engine(user(model.RoleUser, model.TierFree), RequireTier(gates, TierGateJobCreate)), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	rec = get(engine(user(model.RoleUser, model.TierPro), RequireTier(gates, TierGateJobCreate)), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 未配置的 gate 不限制
	rec = get(engine(user(model.RoleUser, model.TierFree), RequireTier(gates, "reports.export")), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(engine(nil, RequireTier(gates, TierGateJobCreate)), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	rec := get(engine(user(model.RoleUser, model.TierFree), RequirePermission(rbac.PermissionSettingsWrite)), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(engine(user(model.RoleAdmin, model.TierFree), RequirePermission(rbac.PermissionSettingsWrite)), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTraceMiddleware(t *testing.T) {
	r := engine(nil, TraceMiddleware())

	rec := get(r, http.Header{trace.HeaderName: {"trace-abc"}})
	assert.Equal(t, "trace-abc", rec.Header().Get(trace.HeaderName))
	assert.Contains(t, rec.Body.String(), "trace-abc")

	rec = get(r, nil)
	assert.NotEmpty(t, rec.Header().Get(trace.HeaderName))
}

func TestRateLimiter_LocalFallback(t *testing.T) {
	l := NewRateLimiter(nil, 2, time.Minute, zap.NewNop())
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "proposals:a"))
	assert.True(t, l.Allow(ctx, "proposals:a"))
	assert.False(t, l.Allow(ctx, "proposals:a"))
	assert.True(t, l.Allow(ctx, "proposals:b"), "keys are limited independently")
}

func TestRateLimit_Middleware(t *testing.T) {
	u := user(model.RoleUser, model.TierFree)
	r := engine(u, RateLimit(NewRateLimiter(nil, 1, time.Minute, zap.NewNop()), "proposals"))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	rec := get(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many requests")
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	l := NewRateLimiter(nil, 0, time.Minute, zap.NewNop())
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(context.Background(), "k"))
	}
}
