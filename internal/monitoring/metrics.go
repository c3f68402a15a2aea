package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。使用独立的 Registry，
// 避免多个服务进程（或测试）重复注册全局指标。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 消息指标
	MessagesSent    prometheus.Counter
	MessagesFetched prometheus.Counter
	MessagesPruned  prometheus.Counter

	// 令牌指标
	TokensIssued prometheus.Counter
	TokensSwept  prometheus.Counter

	// 远程校验指标（outcome: ok / denied / error）
	GatewayAuthTotal *prometheus.CounterVec
	GatewayCacheHits prometheus.Counter
}

// NewMetrics 创建监控指标集。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "messenger_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_messages_sent_total",
			Help: "Messages accepted into a mailbox",
		}),
		MessagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_messages_fetched_total",
			Help: "Messages handed to clients",
		}),
		MessagesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_messages_pruned_total",
			Help: "Messages deleted after acknowledgment",
		}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_tokens_issued_total",
			Help: "Login tokens issued",
		}),
		TokensSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_tokens_swept_total",
			Help: "Expired or corrupt tokens removed by the sweeper",
		}),
		GatewayAuthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messenger_gateway_auth_total",
			Help: "Remote token validations by outcome",
		}, []string{"outcome"}),
		GatewayCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messenger_gateway_cache_hits_total",
			Help: "Token validations answered from cache",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MessagesSent,
		m.MessagesFetched,
		m.MessagesPruned,
		m.TokensIssued,
		m.TokensSwept,
		m.GatewayAuthTotal,
		m.GatewayCacheHits,
	)

	return m
}

// HTTPHandler 返回 /metrics 端点处理器。
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
