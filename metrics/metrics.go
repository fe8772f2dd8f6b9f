// Package metrics 提供 core.Recorder 的 Prometheus 实现
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShinyNito/wechatkit/core"
)

const namespace = "wechatkit"

// Metrics 微信 API 与凭证相关指标
type Metrics struct {
	// Tracks outbound WeChat API calls by path and result.
	RequestsTotal *prometheus.CounterVec
	// Measures duration of outbound WeChat API calls.
	RequestDuration *prometheus.HistogramVec
	// Counts credential-rejected retries by path and errcode.
	RetriesTotal *prometheus.CounterVec
	// Tracks remote credential fetches by tenant, name and result.
	FetchesTotal  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	// Gauges the expiry (unix seconds) of the latest credential per tenant and name.
	CredentialExpiry *prometheus.GaugeVec
}

// New 在 reg 上注册全部指标；reg 为 nil 时使用默认注册表
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of WeChat API requests (by path and result).",
			},
			[]string{"path", "result"}, // result = "ok" | "transport_error" | errcode
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Duration of WeChat API requests in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
			},
			[]string{"path"},
		),
		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_retries_total",
				Help:      "Number of requests retried after the credential was rejected.",
			},
			[]string{"path", "errcode"},
		),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_fetches_total",
				Help:      "Number of remote credential fetches.",
			},
			[]string{"tenant", "name", "result"}, // result = "ok" | "error"
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "credential_fetch_duration_seconds",
				Help:      "Duration of remote credential fetches in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tenant", "name"},
		),
		CredentialExpiry: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credential_expiry_timestamp_seconds",
				Help:      "Expiry time (unix seconds) of the most recently fetched credential.",
			},
			[]string{"tenant", "name"},
		),
	}
}

func (m *Metrics) ObserveRequest(path string, errcode int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(path, requestResult(errcode)).Inc()
	m.RequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

func (m *Metrics) IncRetry(path string, errcode int) {
	m.RetriesTotal.WithLabelValues(path, strconv.Itoa(errcode)).Inc()
}

func (m *Metrics) ObserveFetch(tenant, name string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FetchesTotal.WithLabelValues(tenant, name, result).Inc()
	m.FetchDuration.WithLabelValues(tenant, name).Observe(duration.Seconds())
}

// Hook 记录凭证过期时间的回调，可与其他回调组合
func (m *Metrics) Hook() core.UpdateHook {
	return func(_ context.Context, update core.CredentialUpdate) {
		m.CredentialExpiry.WithLabelValues(update.Tenant, update.Name).Set(float64(update.ExpiresAt.Unix()))
	}
}

func requestResult(errcode int) string {
	switch errcode {
	case 0:
		return "ok"
	case -1:
		return "transport_error"
	default:
		return strconv.Itoa(errcode)
	}
}

// Handler 暴露 gatherer 中的指标
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ core.Recorder = (*Metrics)(nil)
