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
	"github.com/MorMundHS-MA/repo-03/internal/monitoring"
	"github.com/MorMundHS-MA/repo-03/internal/service"
	"github.com/MorMundHS-MA/repo-03/internal/storage"
	"github.com/MorMundHS-MA/repo-03/internal/storage/memory"
	"github.com/MorMundHS-MA/repo-03/internal/storage/postgres"
	redisstore "github.com/MorMundHS-MA/repo-03/internal/storage/redis"
	httptransport "github.com/MorMundHS-MA/repo-03/internal/transport/http"
)

// main 启动消息中继服务：PUT /send 与 GET /messages。
// 令牌校验通过 login-server 的 /auth 远程完成。
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
	log.Info("starting chat-server",
		zap.String("address", cfg.Server.ChatAddr),
		zap.String("login_url", cfg.AuthGateway.LoginURL),
	)

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

	// 校验缓存：配置 redis 时跨实例共享，否则进程内 LRU
	var redisClient *redisstore.Client
	var cache auth.ValidationCache
	if cfg.AuthGateway.CacheEnabled {
		if cfg.Redis.Address != "" {
			redisClient, err = redisstore.NewClient(&cfg.Redis, log)
			if err != nil {
				log.Fatal("failed to connect to redis", zap.Error(err))
			}
			defer redisClient.Close()
			cache = redisstore.NewValidationCache(redisClient, cfg.AuthGateway.CacheTTL)
			log.Info("using redis validation cache", zap.Duration("ttl", cfg.AuthGateway.CacheTTL))
		} else {
			cache = auth.NewLocalCache(cfg.AuthGateway.CacheSize, cfg.AuthGateway.CacheTTL)
			log.Info("using in-process validation cache",
				zap.Int("size", cfg.AuthGateway.CacheSize),
				zap.Duration("ttl", cfg.AuthGateway.CacheTTL),
			)
		}
	}

	metrics := monitoring.NewMetrics()
	checker := health.NewChecker(store, redisClient, log)

	gateway := auth.NewGateway(cfg.AuthGateway, cache, metrics, log)
	relay := service.NewRelay(
		service.NewMailboxService(store, log),
		gateway,
		metrics,
		log,
	)

	router := httptransport.NewChatRouter(httptransport.ChatRouterDeps{
		Config:      cfg,
		ChatHandler: httptransport.NewChatHandler(relay, log),
		Metrics:     metrics,
		Checker:     checker,
		Logger:      log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ChatAddr,
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
		log.Info("starting HTTP server", zap.String("address", cfg.Server.ChatAddr))
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
	log.Info("chat-server exited cleanly")
}
