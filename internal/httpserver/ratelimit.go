package httpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"careerhub/internal/apperr"
	"careerhub/internal/handler"
)

// RateLimiter Redis 固定窗口计数；Redis 不可用时退回进程内令牌桶
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: logger,
		local:  make(map[string]*rate.Limiter),
	}
}

// Allow 判断 key 在当前窗口内是否还有额度
func (l *RateLimiter) Allow(ctx context.Context, key string) bool {
	if l.limit <= 0 {
		return true
	}
	if l.rdb != nil {
		allowed, err := l.allowRedis(ctx, key)
		if err == nil {
			return allowed
		}
		l.logger.Warn("Redis rate limit failed, using local limiter", zap.String("key", key), zap.Error(err))
	}
	return l.localLimiter(key).Allow()
}

func (l *RateLimiter) allowRedis(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.limit), nil
}

func (l *RateLimiter) localLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		l.local[key] = lim
	}
	return lim
}

// RateLimit 按当前用户限流
func RateLimit(l *RateLimiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		if u := handler.CurrentUser(c); u != nil {
			key = scope + ":" + u.ID.String()
		}
		if !l.Allow(c.Request.Context(), key) {
			handler.Abort(c, apperr.New(apperr.CodeRateLimited, "too many requests, please slow down", nil))
			return
		}
		c.Next()
	}
}
