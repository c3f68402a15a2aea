package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/config"
	"github.com/MorMundHS-MA/repo-03/internal/health"
	"github.com/MorMundHS-MA/repo-03/internal/middleware"
	"github.com/MorMundHS-MA/repo-03/internal/monitoring"
)

// newEngine 创建带公共中间件的 gin 实例，三个服务共用。
func newEngine(cfg *config.Config, metrics *monitoring.Metrics, checker *health.Checker, log *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(log))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	if metrics != nil {
		router.Use(middleware.HTTPMetrics(metrics))
	}

	corsConfig := gincors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 放开所有来源时不能同时允许凭证
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	if checker != nil {
		handler := checker.Handler()
		router.GET("/live", gin.WrapH(handler))
		router.GET("/ready", gin.WrapH(handler))
	}
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))
	}

	return router
}

// LoginRouterDeps login-server 路由依赖。
type LoginRouterDeps struct {
	Config      *config.Config
	AuthHandler *AuthHandler
	RateLimiter *middleware.IPRateLimiter
	Metrics     *monitoring.Metrics
	Checker     *health.Checker
	Logger      *zap.Logger
}

// NewLoginRouter 构建 login-server 的路由。
// /login 受按 IP 限流保护；/auth 面向内部服务，不限流。
func NewLoginRouter(deps LoginRouterDeps) *gin.Engine {
	router := newEngine(deps.Config, deps.Metrics, deps.Checker, deps.Logger)

	login := router.Group("/login")
	if deps.RateLimiter != nil {
		login.Use(deps.RateLimiter.Handler(deps.Logger))
	}
	login.POST("", deps.AuthHandler.Login)

	router.POST("/auth", deps.AuthHandler.Validate)

	return router
}

// ChatRouterDeps chat-server 路由依赖。
type ChatRouterDeps struct {
	Config      *config.Config
	ChatHandler *ChatHandler
	Metrics     *monitoring.Metrics
	Checker     *health.Checker
	Logger      *zap.Logger
}

// NewChatRouter 构建 chat-server 的路由。
func NewChatRouter(deps ChatRouterDeps) *gin.Engine {
	router := newEngine(deps.Config, deps.Metrics, deps.Checker, deps.Logger)

	router.PUT("/send", deps.ChatHandler.Send)
	router.GET("/messages/:pseudonym", deps.ChatHandler.Fetch)
	router.GET("/messages/:pseudonym/:cursor", deps.ChatHandler.Fetch)

	return router
}

// RegisterRouterDeps register-server 路由依赖。
type RegisterRouterDeps struct {
	Config          *config.Config
	RegisterHandler *RegisterHandler
	RateLimit       gin.HandlerFunc
	Metrics         *monitoring.Metrics
	Checker         *health.Checker
	Logger          *zap.Logger
}

// NewRegisterRouter 构建 register-server 的路由。
func NewRegisterRouter(deps RegisterRouterDeps) *gin.Engine {
	router := newEngine(deps.Config, deps.Metrics, deps.Checker, deps.Logger)

	register := router.Group("/register")
	if deps.RateLimit != nil {
		register.Use(deps.RateLimit)
	}
	register.POST("", deps.RegisterHandler.Register)

	router.GET("/contacts/:pseudonym", deps.RegisterHandler.Contacts)
	router.POST("/contacts/:pseudonym", deps.RegisterHandler.AddContact)

	return router
}
