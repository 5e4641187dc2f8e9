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
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(outcome string)
	RecordRedirect(cacheHit bool)
	RecordShortURLCreated()
	RecordNoteDecryptFailure()
	RecordTitleFetch(success bool, duration time.Duration)
	RecordSessionsCleaned(count int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcomes     *prometheus.CounterVec
	redirects        *prometheus.CounterVec
	shortURLsCreated prometheus.Counter
	decryptFail      prometheus.Counter
	titleFetches     *prometheus.CounterVec
	titleLatency     prometheus.Histogram
	sessionsCleaned  prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linknote_auth_outcomes_total",
			Help: "認可判定の結果別の件数",
		}, []string{"outcome"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linknote_redirects_total",
			Help: "短縮URLのリダイレクト数（キャッシュヒット別）",
		}, []string{"cache"}),
		shortURLsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linknote_short_urls_created_total",
			Help: "作成された短縮URLの合計数",
		}),
		decryptFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linknote_note_decrypt_fail_total",
			Help: "ノートの復号失敗（パスワード違い）の合計数",
		}),
		titleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linknote_title_fetch_total",
			Help: "リンク先タイトル取得の結果別の件数",
		}, []string{"result"}),
		titleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linknote_title_fetch_latency_seconds",
			Help:    "リンク先タイトル取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linknote_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linknote_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authOutcomes,
		c.redirects,
		c.shortURLsCreated,
		c.decryptFail,
		c.titleFetches,
		c.titleLatency,
		c.sessionsCleaned,
		c.httpStatus,
	)

	return c
}

// RecordAuthOutcome は認可判定の結果を記録する。
func (c *Collector) RecordAuthOutcome(outcome string) {
	c.authOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRedirect はリダイレクトを記録する。
func (c *Collector) RecordRedirect(cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	c.redirects.WithLabelValues(label).Inc()
}

// RecordShortURLCreated は短縮URLの作成を記録する。
func (c *Collector) RecordShortURLCreated() {
	c.shortURLsCreated.Inc()
}

// RecordNoteDecryptFailure はノートの復号失敗を記録する。
func (c *Collector) RecordNoteDecryptFailure() {
	c.decryptFail.Inc()
}

// RecordTitleFetch はタイトル取得の結果とレイテンシを記録する。
func (c *Collector) RecordTitleFetch(success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	c.titleFetches.WithLabelValues(result).Inc()
	c.titleLatency.Observe(duration.Seconds())
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAuthOutcome(string)             {}
func (Nop) RecordRedirect(bool)                  {}
func (Nop) RecordShortURLCreated()               {}
func (Nop) RecordNoteDecryptFailure()            {}
func (Nop) RecordTitleFetch(bool, time.Duration) {}
func (Nop) RecordSessionsCleaned(int64)          {}
func (Nop) RecordHTTPStatus(int)                 {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 収集エラーがあっても取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
