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
	"github.com/MorMundHS-MA/repo-03/internal/service"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
	"github.com/MorMundHS-MA/repo-03/internal/storage/memory"
	"github.com/MorMundHS-MA/repo-03/internal/storage/postgres"
	redisstore "github.com/MorMundHS-MA/repo-03/internal/storage/redis"
	httptransport "github.com/MorMundHS-MA/repo-03/internal/transport/http"
)

// main 启动注册服务：POST /register 与联系人管理。
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
	log.Info("starting register-server", zap.String("address", cfg.Server.RegisterAddr))

	// 与 login-server 同一条铁律：没有哈希能力就不启动
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

	// 注册限流：配置 redis 时全局共享计数，否则不启用
	var redisClient *redisstore.Client
	var rateLimit gin.HandlerFunc
	if cfg.Redis.Address != "" {
		redisClient, err = redisstore.NewClient(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		rateLimit = middleware.RedisRateLimit(
			redisstore.NewRateLimiter(redisClient),
			int64(cfg.RateLimit.RegisterPerHour),
			time.Hour,
			log,
		)
		log.Info("registration rate limit enabled", zap.Int("per_hour", cfg.RateLimit.RegisterPerHour))
	}

	metrics := monitoring.NewMetrics()
	checker := health.NewChecker(store, redisClient, log)

	registerService, err := service.NewRegisterService(store, hasher, log)
	if err != nil {
		log.Fatal("failed to initialize register service", zap.Error(err))
	}
	gateway := auth.NewGateway(cfg.AuthGateway, nil, metrics, log)

	router := httptransport.NewRegisterRouter(httptransport.RegisterRouterDeps{
		Config:          cfg,
		RegisterHandler: httptransport.NewRegisterHandler(registerService, gateway, log),
		RateLimit:       rateLimit,
		Metrics:         metrics,
		Checker:         checker,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.RegisterAddr,
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
		log.Info("starting HTTP server", zap.String("address", cfg.Server.RegisterAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

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
	log.Info("register-server exited cleanly")
}
