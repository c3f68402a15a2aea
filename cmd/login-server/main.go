package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MorMundHS-MA/repo-03/internal/auth"
	"github.com/MorMundHS-MA/repo-03/internal/config"
	"github.com/MorMundHS-MA/repo-03/internal/health"
	"github.com/MorMundHS-MA/repo-03/internal/logger"
	"github.com/MorMundHS-MA/repo-03/internal/middleware"
	"github.com/MorMundHS-MA/repo-03/internal/monitoring"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
	"github.com/MorMundHS-MA/repo-03/internal/storage/memory"
	"github.com/MorMundHS-MA/repo-03/internal/storage/postgres"
	httptransport "github.com/MorMundHS-MA/repo-03/internal/transport/http"
)

// main 启动令牌机构服务：POST /login 与 POST /auth。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting login-server",
		zap.String("address", cfg.Server.LoginAddr),
		zap.Duration("token_ttl", cfg.Token.TTL),
	)

	// 没有哈希能力就拒绝启动，不存在明文回退
	hasher, err := auth.NewHasherFromConfig(cfg.Password)
	if err != nil {
		log.Fatal("password hasher configuration invalid", zap.Error(err))
	}

	var store storage.Store
	if cfg.Database.DSN != "" {
		client, err := postgres.NewClient(&cfg.Database, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		store, err = postgres.NewStore(client, log)
		if err != nil {
			log.Fatal("failed to initialize postgres store", zap.Error(err))
		}
		log.Info("using postgres storage")
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	metrics := monitoring.NewMetrics()
	checker := health.NewChecker(store, nil, log)

	authority := auth.NewAuthority(store, cfg.Token.TTL, log)
	loginService, err := auth.NewLoginService(store, authority, hasher, log)
	if err != nil {
		log.Fatal("failed to initialize login service", zap.Error(err))
	}

	rateLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)

	router := httptransport.NewLoginRouter(httptransport.LoginRouterDeps{
		Config:      cfg,
		AuthHandler: httptransport.NewAuthHandler(loginService, authority, metrics, log),
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Checker:     checker,
		Logger:      log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.LoginAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", cfg.Server.LoginAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期令牌 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Token.SweepInterval)
		defer ticker.Stop()

		log.Info("starting expired token sweep task", zap.Duration("interval", cfg.Token.SweepInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("token sweep task stopped")
				return nil
			case <-ticker.C:
				count, err := authority.SweepExpired(groupCtx)
				if err != nil {
					log.Error("failed to sweep expired tokens", zap.Error(err))
				} else if count > 0 {
					metrics.TokensSwept.Add(float64(count))
					log.Info("expired tokens swept", zap.Int("count", count))
				}
			}
		}
	})

	// 定时回收闲置限流条目 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				rateLimiter.Cleanup(30 * time.Minute)
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("login-server exited cleanly")
}
