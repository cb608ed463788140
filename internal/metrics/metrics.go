// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordGenerateSuccess(useCase string)
	RecordGenerateFailure(useCase string, reason string)
	RecordGenerateLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordAuthFailure(code string)
	RecordStreamConnected()
	RecordStreamDisconnected()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generateSuccess *prometheus.CounterVec
	generateFail    *prometheus.CounterVec
	generateLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	authFail        *prometheus.CounterVec
	streamConns     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generateSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildman_generate_success_total",
			Help: "構成生成成功の合計数",
		}, []string{"use_case"}),
		generateFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildman_generate_fail_total",
			Help: "構成生成失敗の合計数",
		}, []string{"use_case", "reason"}),
		generateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "buildman_generate_latency_seconds",
			Help:    "構成生成のレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		authFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildman_auth_fail_total",
			Help: "認証失敗のエラーコード別の合計数",
		}, []string{"code"}),
		streamConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buildman_stream_connections",
			Help: "現在接続中のSSEストリーム数",
		}),
	}

	reg.MustRegister(
		c.generateSuccess,
		c.generateFail,
		c.generateLatency,
		c.httpStatus,
		c.authFail,
		c.streamConns,
	)

	return c
}

// RecordGenerateSuccess は構成生成の成功を記録する。
func (c *Collector) RecordGenerateSuccess(useCase string) {
	c.generateSuccess.WithLabelValues(useCase).Inc()
}

// RecordGenerateFailure は構成生成の失敗を記録する。
func (c *Collector) RecordGenerateFailure(useCase string, reason string) {
	c.generateFail.WithLabelValues(useCase, reason).Inc()
}

// RecordGenerateLatency は構成生成のレイテンシを記録する。
func (c *Collector) RecordGenerateLatency(duration time.Duration) {
	c.generateLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAuthFailure は認証失敗をエラーコード別に記録する。
func (c *Collector) RecordAuthFailure(code string) {
	c.authFail.WithLabelValues(code).Inc()
}

// RecordStreamConnected はSSEストリームの接続を記録する。
func (c *Collector) RecordStreamConnected() {
	c.streamConns.Inc()
}

// RecordStreamDisconnected はSSEストリームの切断を記録する。
func (c *Collector) RecordStreamDisconnected() {
	c.streamConns.Dec()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
