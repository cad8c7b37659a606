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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordReorder(result string, matched, unmatched int)
	RecordPreview(result string)
	RecordPreviewCacheHit()
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     prometheus.Histogram
	reorders         *prometheus.CounterVec
	reorderRows      *prometheus.CounterVec
	previews         *prometheus.CounterVec
	previewCacheHits prometheus.Counter
	sessionsCleaned  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookmarkman_http_requests_total",
			Help: "メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookmarkman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reorders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookmarkman_reorder_total",
			Help: "結果別の並び替えバッチ数",
		}, []string{"result"}),
		reorderRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookmarkman_reorder_rows_total",
			Help: "並び替えで指定された行数（matched=trueは所有者とIDが一致した行）",
		}, []string{"matched"}),
		previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookmarkman_preview_total",
			Help: "結果別のプレビュー取得数",
		}, []string{"result"}),
		previewCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookmarkman_preview_cache_hits_total",
			Help: "プレビューキャッシュのヒット数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookmarkman_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.reorders,
		c.reorderRows,
		c.previews,
		c.previewCacheHits,
		c.sessionsCleaned,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストのステータスと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// RecordReorder は並び替えの結果と行数を記録する。
func (c *Collector) RecordReorder(result string, matched, unmatched int) {
	c.reorders.WithLabelValues(result).Inc()
	c.reorderRows.WithLabelValues("true").Add(float64(matched))
	c.reorderRows.WithLabelValues("false").Add(float64(unmatched))
}

// RecordPreview はプレビュー取得の結果を記録する。
func (c *Collector) RecordPreview(result string) {
	c.previews.WithLabelValues(result).Inc()
}

// RecordPreviewCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordPreviewCacheHit() {
	c.previewCacheHits.Inc()
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// workerサブコマンドが単独でメトリクスを公開する際に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
