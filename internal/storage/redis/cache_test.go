package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/config"
)

// setupClient 启动 miniredis 并返回连接好的客户端。
func setupClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&config.RedisConfig{Address: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestValidationCache_PutAndGet(t *testing.T) {
	client, _ := setupClient(t)
	cache := NewValidationCache(client, 30*time.Second)
	ctx := context.Background()

	expiry := time.Now().Add(5 * time.Minute)
	cache.Put(ctx, "token-1", "alice", expiry)

	got, ok := cache.Get(ctx, "token-1", "alice")
	require.True(t, ok)
	assert.WithinDuration(t, expiry, got, time.Second)

	// 不同身份不命中
	_, ok = cache.Get(ctx, "token-1", "bob")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "token-2", "alice")
	assert.False(t, ok)
}

func TestValidationCache_EntryExpiresWithWindow(t *testing.T) {
	client, mr := setupClient(t)
	cache := NewValidationCache(client, 30*time.Second)
	ctx := context.Background()

	cache.Put(ctx, "token-1", "alice", time.Now().Add(5*time.Minute))

	// 窗口走完后条目消失，哪怕令牌本身还有效
	mr.FastForward(31 * time.Second)
	_, ok := cache.Get(ctx, "token-1", "alice")
	assert.False(t, ok)
}

func TestValidationCache_TTLClampedToTokenLifetime(t *testing.T) {
	client, mr := setupClient(t)
	cache := NewValidationCache(client, 30*time.Second)
	ctx := context.Background()

	// 令牌只剩 5 秒：条目的 TTL 被压到 5 秒
	cache.Put(ctx, "token-1", "alice", time.Now().Add(5*time.Second))

	mr.FastForward(6 * time.Second)
	_, ok := cache.Get(ctx, "token-1", "alice")
	assert.False(t, ok)
}

func TestValidationCache_NeverCachesExpiredToken(t *testing.T) {
	client, _ := setupClient(t)
	cache := NewValidationCache(client, 30*time.Second)
	ctx := context.Background()

	cache.Put(ctx, "token-1", "alice", time.Now().Add(-time.Second))

	_, ok := cache.Get(ctx, "token-1", "alice")
	assert.False(t, ok)
}

func TestRateLimiter_Increment(t *testing.T) {
	client, mr := setupClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, err := limiter.Increment(ctx, "login:10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// 窗口到期后计数重置
	mr.FastForward(61 * time.Second)
	count, err := limiter.Increment(ctx, "login:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
