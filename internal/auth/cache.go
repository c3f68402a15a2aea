package auth

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ValidationCache 缓存成功的令牌校验结果，键为 (token, pseudonym)。
//
// 实现约束：条目存活不得超过配置的 TTL 窗口，且命中时必须
// 检查令牌自身的过期时间，缓存命中永远不能让一个已过期的
// 令牌通过校验。被取代的令牌最多在一个 TTL 窗口内仍可能命中，
// 这是配置缓存时明确接受的时延。
type ValidationCache interface {
	Get(ctx context.Context, token, pseudonym string) (time.Time, bool)
	Put(ctx context.Context, token, pseudonym string, expiry time.Time)
}

// localCache 进程内实现，基于带 TTL 的 LRU。
type localCache struct {
	entries *lru.LRU[string, time.Time]
}

// NewLocalCache 创建进程内校验缓存。
func NewLocalCache(size int, ttl time.Duration) ValidationCache {
	if size <= 0 {
		size = 4096
	}
	return &localCache{
		entries: lru.NewLRU[string, time.Time](size, nil, ttl),
	}
}

func (c *localCache) Get(ctx context.Context, token, pseudonym string) (time.Time, bool) {
	expiry, ok := c.entries.Get(cacheKey(token, pseudonym))
	if !ok {
		return time.Time{}, false
	}
	// LRU 只保证窗口过期，令牌真实寿命在这里把关
	if !time.Now().Before(expiry) {
		c.entries.Remove(cacheKey(token, pseudonym))
		return time.Time{}, false
	}
	return expiry, true
}

func (c *localCache) Put(ctx context.Context, token, pseudonym string, expiry time.Time) {
	if !time.Now().Before(expiry) {
		return
	}
	c.entries.Add(cacheKey(token, pseudonym), expiry)
}

func cacheKey(token, pseudonym string) string {
	return pseudonym + "\x00" + token
}
