package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MorMundHS-MA/repo-03/internal/config"
	"github.com/MorMundHS-MA/repo-03/internal/domain"
	"github.com/MorMundHS-MA/repo-03/internal/monitoring"
)

// defaultGatewayTimeout 远程校验的兜底超时。
// 校验调用必须有界，配置缺失不允许退化为无超时客户端。
const defaultGatewayTimeout = 5 * time.Second

// Gateway 让非 login-server 的进程向令牌机构询问
// "这个 (token, pseudonym) 现在有效吗"。
//
// 所有失败路径（网络错误、超时、非 200 响应、响应不可解析）
// 一律 fail-closed：返回 false，并与"明确无效"区分开记录。
type Gateway struct {
	baseURL string
	client  *http.Client
	cache   ValidationCache
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// authRequest POST /auth 的请求体。
type authRequest struct {
	Token     string `json:"token"`
	Pseudonym string `json:"pseudonym"`
}

// authResponse POST /auth 的成功响应体。
type authResponse struct {
	Success bool   `json:"success"`
	Expiry  string `json:"expire-date"`
}

// NewGateway 创建认证网关客户端。
// cache 可为 nil（未启用缓存）；metrics 可为 nil（测试场景）。
func NewGateway(cfg config.AuthGatewayConfig, cache ValidationCache, metrics *monitoring.Metrics, log *zap.Logger) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &Gateway{
		baseURL: cfg.LoginURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		log:     log,
		metrics: metrics,
	}
}

// Authenticate 校验 (token, pseudonym)，只在得到令牌机构明确
// 确认时返回 true。
func (g *Gateway) Authenticate(ctx context.Context, token, pseudonym string) bool {
	if token == "" || pseudonym == "" {
		return false
	}

	if g.cache != nil {
		if _, ok := g.cache.Get(ctx, token, pseudonym); ok {
			g.countCacheHit()
			return true
		}
	}

	body, err := json.Marshal(authRequest{Token: token, Pseudonym: pseudonym})
	if err != nil {
		g.fail("failed to encode auth request", pseudonym, err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		g.fail("failed to build auth request", pseudonym, err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// 超时或网络故障不等于"令牌无效"，但同样不放行
		g.fail("auth server unreachable", pseudonym, err)
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		g.countOutcome("denied")
		return false
	default:
		g.fail("unexpected auth server status", pseudonym, nil)
		g.log.Warn("auth server returned unexpected status",
			zap.Int("status", resp.StatusCode),
			zap.String("pseudonym", pseudonym),
		)
		return false
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		g.fail("failed to decode auth response", pseudonym, err)
		return false
	}
	if !parsed.Success {
		g.countOutcome("denied")
		return false
	}

	g.countOutcome("ok")

	if g.cache != nil {
		if expiry, err := time.Parse(domain.ISO8601, parsed.Expiry); err == nil {
			g.cache.Put(ctx, token, pseudonym, expiry)
		}
	}
	return true
}

// fail 记录一次非判定性失败（区别于明确的"无效"）。
func (g *Gateway) fail(msg, pseudonym string, err error) {
	g.countOutcome("error")
	if err != nil {
		g.log.Warn(msg, zap.String("pseudonym", pseudonym), zap.Error(err))
	}
}

func (g *Gateway) countOutcome(outcome string) {
	if g.metrics != nil {
		g.metrics.GatewayAuthTotal.WithLabelValues(outcome).Inc()
	}
}

func (g *Gateway) countCacheHit() {
	if g.metrics != nil {
		g.metrics.GatewayCacheHits.Inc()
	}
}
