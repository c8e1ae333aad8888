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
// ミドルウェア、Session Store、ワーカー、サービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	AuthAttempt(operation, outcome string)
	SessionTransition(state string)
	RecordTrendFetch(success bool)
	RecordSessionsCleaned(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
	authAttempts       *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	trendFetch         *prometheus.CounterVec
	sessionsCleaned    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialburst_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "socialburst_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialburst_auth_attempts_total",
			Help: "認証操作の試行数（操作と結果別）",
		}, []string{"operation", "outcome"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialburst_session_transitions_total",
			Help: "Session Storeの状態遷移数（遷移先の状態別）",
		}, []string{"state"}),
		trendFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialburst_trend_fetch_total",
			Help: "トレンドフィード取得の結果別の数",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socialburst_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.authAttempts,
		c.sessionTransitions,
		c.trendFetch,
		c.sessionsCleaned,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// AuthAttempt は認証操作の結果を記録する。outcomeはsuccessまたはエラー種別。
func (c *Collector) AuthAttempt(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// SessionTransition はSession Storeの状態遷移を記録する。
func (c *Collector) SessionTransition(state string) {
	c.sessionTransitions.WithLabelValues(state).Inc()
}

// RecordTrendFetch はトレンドフィード取得の結果を記録する。
func (c *Collector) RecordTrendFetch(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.trendFetch.WithLabelValues(result).Inc()
}

// RecordSessionsCleaned は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Noop struct{}

func (Noop) RecordHTTPStatus(int)               {}
func (Noop) RecordRequestLatency(time.Duration) {}
func (Noop) AuthAttempt(string, string)         {}
func (Noop) SessionTransition(string)           {}
func (Noop) RecordTrendFetch(bool)              {}
func (Noop) RecordSessionsCleaned(int)          {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
