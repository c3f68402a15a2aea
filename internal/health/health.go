package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/storage"
	redisstore "github.com/MorMundHS-MA/repo-03/internal/storage/redis"
)

// Checker 聚合服务的存活与就绪检查。
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	log    *zap.Logger
}

// NewChecker 创建健康检查器。redis 可为 nil（未启用缓存/限流）。
func NewChecker(store storage.Store, redis *redisstore.Client, log *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		log:    log,
	}

	c.health.AddReadinessCheck("storage", func() error {
		return c.store.Health()
	})

	if redis != nil {
		c.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return redis.Ping(ctx)
		})
	}

	// goroutine 泄漏当作存活问题暴露
	c.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))

	return c
}

// Handler 返回 /live 与 /ready 端点处理器。
func (c *Checker) Handler() http.Handler {
	return c.health
}
