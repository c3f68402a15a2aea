package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	redisstore "github.com/MorMundHS-MA/repo-03/internal/storage/redis"
)

// ipLimiter 单个客户端的限流器与最近活跃时间。
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 进程内按 IP 的令牌桶限流。
// 用于 login-server 抵御口令爆破；闲置条目周期回收。
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
}

// NewIPRateLimiter 创建按 IP 限流器。perMinute 为每分钟许可数。
func NewIPRateLimiter(perMinute, burst int) *IPRateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (l *IPRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Cleanup 删除 maxIdle 内无活动的条目。由后台任务周期调用。
func (l *IPRateLimiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// Handler 返回 gin 中间件，超限请求以 429 拒绝。
func (l *IPRateLimiter) Handler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.allow(ip) {
			log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RedisRateLimit 跨实例共享的固定窗口限流。
// register-server 多副本部署时用它统计全局注册频率。
func RedisRateLimit(limiter *redisstore.RateLimiter, max int64, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := limiter.Increment(c.Request.Context(), c.ClientIP(), window)
		if err != nil {
			// 限流器故障时放行，不把 redis 变成注册服务的单点
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count > max {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
