package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/config"
	"github.com/MorMundHS-MA/repo-03/internal/domain"
)

// newAuthServer 模拟登录服务的 /auth 端点。
func newAuthServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func grantHandler(t *testing.T, calls *atomic.Int64, expiry time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req authRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Token)
		require.NotEmpty(t, req.Pseudonym)
		json.NewEncoder(w).Encode(authResponse{
			Success: true,
			Expiry:  expiry.Format(domain.ISO8601),
		})
	}
}

func TestGateway_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("令牌机构确认", func(t *testing.T) {
		var calls atomic.Int64
		server := newAuthServer(t, grantHandler(t, &calls, time.Now().Add(10*time.Minute)))

		gateway := NewGateway(config.AuthGatewayConfig{
			LoginURL: server.URL,
			Timeout:  2 * time.Second,
		}, nil, nil, zap.NewNop())

		assert.True(t, gateway.Authenticate(ctx, "tok", "alice"))
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("401 拒绝", func(t *testing.T) {
		server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		gateway := NewGateway(config.AuthGatewayConfig{LoginURL: server.URL, Timeout: 2 * time.Second}, nil, nil, zap.NewNop())

		assert.False(t, gateway.Authenticate(ctx, "tok", "alice"))
	})

	t.Run("200 但 success=false 拒绝", func(t *testing.T) {
		server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(authResponse{Success: false})
		})
		gateway := NewGateway(config.AuthGatewayConfig{LoginURL: server.URL, Timeout: 2 * time.Second}, nil, nil, zap.NewNop())

		assert.False(t, gateway.Authenticate(ctx, "tok", "alice"))
	})

	t.Run("空参数直接拒绝", func(t *testing.T) {
		var calls atomic.Int64
		server := newAuthServer(t, grantHandler(t, &calls, time.Now().Add(10*time.Minute)))
		gateway := NewGateway(config.AuthGatewayConfig{LoginURL: server.URL, Timeout: 2 * time.Second}, nil, nil, zap.NewNop())

		assert.False(t, gateway.Authenticate(ctx, "", "alice"))
		assert.False(t, gateway.Authenticate(ctx, "tok", ""))
		assert.Equal(t, int64(0), calls.Load(), "must not call the auth server")
	})

	t.Run("响应不可解析时不放行", func(t *testing.T) {
		server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		})
		gateway := NewGateway(config.AuthGatewayConfig{LoginURL: server.URL, Timeout: 2 * time.Second}, nil, nil, zap.NewNop())

		assert.False(t, gateway.Authenticate(ctx, "tok", "alice"))
	})

	t.Run("5xx 不放行", func(t *testing.T) {
		server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		gateway := NewGateway(config.AuthGatewayConfig{LoginURL: server.URL, Timeout: 2 * time.Second}, nil, nil, zap.NewNop())

		assert.False(t, gateway.Authenticate(ctx, "tok", "alice"))
	})
}

func TestNewGateway_TimeoutIsAlwaysBounded(t *testing.T) {
	// 配置缺失时退回兜底超时，绝不产生无超时客户端
	gateway := NewGateway(config.AuthGatewayConfig{}, nil, nil, zap.NewNop())
	assert.Equal(t, defaultGatewayTimeout, gateway.client.Timeout)

	gateway = NewGateway(config.AuthGatewayConfig{Timeout: -time.Second}, nil, nil, zap.NewNop())
	assert.Equal(t, defaultGatewayTimeout, gateway.client.Timeout)

	gateway = NewGateway(config.AuthGatewayConfig{Timeout: 2 * time.Second}, nil, nil, zap.NewNop())
	assert.Equal(t, 2*time.Second, gateway.client.Timeout)
}

func TestGateway_FailsClosedOnTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)

	gateway := NewGateway(config.AuthGatewayConfig{
		LoginURL: server.URL,
		Timeout:  50 * time.Millisecond,
	}, nil, nil, zap.NewNop())

	start := time.Now()
	ok := gateway.Authenticate(context.Background(), "tok", "alice")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second, "must give up within the configured timeout")
}

func TestGateway_FailsClosedWhenUnreachable(t *testing.T) {
	// 占用后立刻关闭一个端口，保证没有服务在听
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	gateway := NewGateway(config.AuthGatewayConfig{LoginURL: url, Timeout: time.Second}, nil, nil, zap.NewNop())
	assert.False(t, gateway.Authenticate(context.Background(), "tok", "alice"))
}

func TestGateway_CacheSkipsRemoteCall(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	server := newAuthServer(t, grantHandler(t, &calls, time.Now().Add(10*time.Minute)))

	cache := NewLocalCache(16, time.Minute)
	gateway := NewGateway(config.AuthGatewayConfig{
		LoginURL: server.URL,
		Timeout:  2 * time.Second,
	}, cache, nil, zap.NewNop())

	assert.True(t, gateway.Authenticate(ctx, "tok", "alice"))
	assert.True(t, gateway.Authenticate(ctx, "tok", "alice"))
	assert.Equal(t, int64(1), calls.Load(), "second call must be served from cache")

	// 缓存命中按 (token, pseudonym) 精确匹配
	assert.True(t, gateway.Authenticate(ctx, "tok", "alice"))
	gateway2calls := calls.Load()
	assert.True(t, gateway.Authenticate(ctx, "other", "alice"))
	assert.Equal(t, gateway2calls+1, calls.Load())
}

func TestGateway_FailureIsNeverCached(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	server := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	gateway := NewGateway(config.AuthGatewayConfig{
		LoginURL: server.URL,
		Timeout:  2 * time.Second,
	}, NewLocalCache(16, time.Minute), nil, zap.NewNop())

	assert.False(t, gateway.Authenticate(ctx, "tok", "alice"))
	assert.False(t, gateway.Authenticate(ctx, "tok", "alice"))
	assert.Equal(t, int64(2), calls.Load(), "rejections must not be cached")
}

func TestLocalCache_NeverServesExpiredToken(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache(16, time.Hour)

	// 窗口远未到期，但令牌本身马上过期
	cache.Put(ctx, "tok", "alice", time.Now().Add(30*time.Millisecond))
	_, ok := cache.Get(ctx, "tok", "alice")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = cache.Get(ctx, "tok", "alice")
	assert.False(t, ok, "cache hit must not outlive the token")
}

func TestLocalCache_IgnoresAlreadyExpired(t *testing.T) {
	ctx := context.Background()
	cache := NewLocalCache(16, time.Hour)

	cache.Put(ctx, "tok", "alice", time.Now().Add(-time.Minute))
	_, ok := cache.Get(ctx, "tok", "alice")
	assert.False(t, ok)
}
