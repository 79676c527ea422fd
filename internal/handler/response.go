package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/pkg/logger"
)

// ContextUserKey AuthMiddleware 写入的当前用户
const ContextUserKey = "user"

// CurrentUser 返回已认证用户，未经过 AuthMiddleware 时为 nil
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

// ok 成功响应：{"success": true, ...}
func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// fail 错误响应：{"success": false, "detail": "..."}；5xx 记录原始错误
func fail(c *gin.Context, log *zap.Logger, err error) {
	status, detail := apperr.Resolve(err)
	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"success": false, "detail": detail})
}

// Abort 供中间件使用
func Abort(c *gin.Context, err error) {
	status, detail := apperr.Resolve(err)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "detail": detail})
}

func bindJSON(c *gin.Context, log *zap.Logger, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		fail(c, log, apperr.Validation("invalid request body"))
		return false
	}
	return true
}

func uuidParam(c *gin.Context, log *zap.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, log, apperr.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return v
}
