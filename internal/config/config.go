package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义三个服务进程的 HTTP 监听地址。
// 默认端口与原部署一致：chat-server :5000 / login-server :5001 /
// register-server :5002。
type ServerConfig struct {
	LoginAddr    string
	ChatAddr     string
	RegisterAddr string
}

// TokenConfig 定义令牌签发参数。
type TokenConfig struct {
	TTL           time.Duration // 令牌有效期，默认 10 分钟
	SweepInterval time.Duration // 过期令牌后台清理周期
}

// AuthGatewayConfig 定义 chat/register 服务访问 login-server 的客户端配置。
type AuthGatewayConfig struct {
	LoginURL     string        // login-server 基地址，如 "http://login-server:5001"
	Timeout      time.Duration // 远程校验超时，超时按认证失败处理（fail-closed）
	CacheEnabled bool          // 是否缓存成功的校验结果
	CacheTTL     time.Duration // 缓存条目最长存活时间（不会超过令牌剩余寿命）
	CacheSize    int           // 缓存最大条目数
}

// PasswordConfig 定义密码哈希配置。
//
// 原系统把哈希算法留作未决问题；这里不做静默回退：
// 未配置哈希方案时 login-server 与 register-server 拒绝启动。
type PasswordConfig struct {
	Hasher     string // 哈希方案，目前支持 "bcrypt"
	BcryptCost int    // bcrypt 代价因子
}

// LogConfig 定义日志系统配置。
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 控制台编码与详细堆栈
	LogFile     string // 日志文件路径，留空只输出到 stdout
}

// DatabaseConfig 定义 PostgreSQL 连接配置。DSN 为空时使用内存存储。
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig 定义 Redis 配置，用于跨实例共享校验缓存与限流计数。
// Address 为空时这两项功能退化为进程内实现。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// RateLimitConfig 定义登录/注册接口的限流参数。
type RateLimitConfig struct {
	LoginPerMinute  int // 单 IP 每分钟登录尝试上限
	LoginBurst      int // 登录限流突发额度
	RegisterPerHour int // 单 IP 每小时注册上限
}

// Config 是三个服务共享的根配置。
type Config struct {
	Server      ServerConfig
	Token       TokenConfig
	AuthGateway AuthGatewayConfig
	Password    PasswordConfig
	Log         LogConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORSOrigins []string
}

// Load 从环境变量和可选的 .env 文件加载配置。
//
// 优先级：系统环境变量 > .env 文件 > 默认值。
// 环境变量前缀 MESSENGER_，如 MESSENGER_DATABASE_DSN。
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("messenger")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.login_addr", "0.0.0.0:5001")
	viper.SetDefault("server.chat_addr", "0.0.0.0:5000")
	viper.SetDefault("server.register_addr", "0.0.0.0:5002")
	viper.SetDefault("token.ttl", "10m")
	viper.SetDefault("token.sweep_interval", "1m")
	viper.SetDefault("auth.login_url", "http://localhost:5001")
	viper.SetDefault("auth.timeout", "5s")
	viper.SetDefault("auth.cache_enabled", false)
	viper.SetDefault("auth.cache_ttl", "30s")
	viper.SetDefault("auth.cache_size", 4096)
	viper.SetDefault("password.hasher", "bcrypt")
	viper.SetDefault("password.bcrypt_cost", 12)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.login_per_minute", 10)
	viper.SetDefault("ratelimit.login_burst", 5)
	viper.SetDefault("ratelimit.register_per_hour", 20)
	viper.SetDefault("cors.allowed_origins", "*")

	tokenTTL, err := time.ParseDuration(viper.GetString("token.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid token.ttl: %w", err)
	}
	sweepInterval, err := time.ParseDuration(viper.GetString("token.sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid token.sweep_interval: %w", err)
	}
	authTimeout, err := time.ParseDuration(viper.GetString("auth.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.timeout: %w", err)
	}
	cacheTTL, err := time.ParseDuration(viper.GetString("auth.cache_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth.cache_ttl: %w", err)
	}

	// 缓存命中不能比令牌真实过期时间多活超过一个 TTL 窗口，
	// 因此缓存 TTL 不允许超过令牌有效期
	if cacheTTL > tokenTTL {
		return nil, fmt.Errorf("auth.cache_ttl (%s) must not exceed token.ttl (%s)", cacheTTL, tokenTTL)
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	hasher := strings.ToLower(strings.TrimSpace(viper.GetString("password.hasher")))
	if hasher == "" {
		// 明文回退是原系统遗留的缺陷，这里视为启动配置错误
		return nil, fmt.Errorf("password.hasher must be configured; refusing to store plaintext credentials")
	}
	if hasher != "bcrypt" {
		return nil, fmt.Errorf("unsupported password.hasher %q", hasher)
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			LoginAddr:    viper.GetString("server.login_addr"),
			ChatAddr:     viper.GetString("server.chat_addr"),
			RegisterAddr: viper.GetString("server.register_addr"),
		},
		Token: TokenConfig{
			TTL:           tokenTTL,
			SweepInterval: sweepInterval,
		},
		AuthGateway: AuthGatewayConfig{
			LoginURL:     strings.TrimRight(viper.GetString("auth.login_url"), "/"),
			Timeout:      authTimeout,
			CacheEnabled: viper.GetBool("auth.cache_enabled"),
			CacheTTL:     cacheTTL,
			CacheSize:    viper.GetInt("auth.cache_size"),
		},
		Password: PasswordConfig{
			Hasher:     hasher,
			BcryptCost: viper.GetInt("password.bcrypt_cost"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			LogFile:     viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute:  viper.GetInt("ratelimit.login_per_minute"),
			LoginBurst:      viper.GetInt("ratelimit.login_burst"),
			RegisterPerHour: viper.GetInt("ratelimit.register_per_hour"),
		},
		CORSOrigins: corsOrigins,
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片。
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件（可选，找不到静默跳过）。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
