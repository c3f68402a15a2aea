package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MorMundHS-MA/repo-03/internal/domain"
)

// ValidationCache 在 Redis 中缓存成功的令牌校验结果，
// 供多个 chat-server 实例共享。实现 auth.ValidationCache。
//
// 条目 TTL 取配置 TTL 与令牌剩余寿命的较小者，因此缓存命中
// 永远不会认可一个已经过期的令牌。
type ValidationCache struct {
	client *Client
	ttl    time.Duration
}

// NewValidationCache 创建校验缓存。
func NewValidationCache(client *Client, ttl time.Duration) *ValidationCache {
	return &ValidationCache{client: client, ttl: ttl}
}

// Get 查询缓存的校验结果，返回令牌过期时间。
// Redis 故障按缓存未命中处理，调用方会退回远程校验。
func (c *ValidationCache) Get(ctx context.Context, token, pseudonym string) (time.Time, bool) {
	value, err := c.client.rdb.Get(ctx, validationKey(token, pseudonym)).Result()
	if err != nil {
		return time.Time{}, false
	}
	expiry, err := time.Parse(domain.ISO8601, value)
	if err != nil {
		return time.Time{}, false
	}
	if !time.Now().Before(expiry) {
		return time.Time{}, false
	}
	return expiry, true
}

// Put 缓存一次成功的校验结果。写失败只影响性能，不影响正确性。
func (c *ValidationCache) Put(ctx context.Context, token, pseudonym string, expiry time.Time) {
	ttl := c.ttl
	if remaining := time.Until(expiry); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	c.client.rdb.Set(ctx, validationKey(token, pseudonym),
		expiry.Format(domain.ISO8601), ttl)
}

func validationKey(token, pseudonym string) string {
	return fmt.Sprintf("authcache:%s:%s", pseudonym, token)
}

// RateLimiter 基于 Redis 计数器的固定窗口限流，
// 用于登录与注册接口的单 IP 配额。
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器。
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Increment 递增窗口计数并返回当前值。首次递增时设置窗口过期。
func (r *RateLimiter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, "ratelimit:"+key)
	pipe.Expire(ctx, "ratelimit:"+key, window)
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return 0, fmt.Errorf("increment rate limit: %w", err)
	}
	return incr.Val(), nil
}
