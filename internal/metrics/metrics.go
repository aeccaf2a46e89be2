// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eternaltwin/etwin/internal/model"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リモートクライアント、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordRemoteFetch(game, operation string, err error, duration time.Duration)
	RecordScraperFailure(game, code string)
	RecordArchiveTouch(store, outcome string)
	RecordSessionRevoked(game string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remoteFetches   *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	scraperFailures *prometheus.CounterVec
	archiveTouches  *prometheus.CounterVec
	sessionsRevoked *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etwin_remote_fetch_total",
			Help: "リモートゲームへのリクエスト数（結果別）",
		}, []string{"game", "operation", "outcome"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etwin_remote_fetch_latency_seconds",
			Help:    "リモートゲームへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"game", "operation"}),
		scraperFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etwin_scraper_failure_total",
			Help: "HTMLスクレイピング失敗の合計数（エラーコード別）",
		}, []string{"game", "code"}),
		archiveTouches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etwin_archive_touch_total",
			Help: "アーカイブへの書き込み数（ストア別）",
		}, []string{"store", "outcome"}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etwin_session_revoked_total",
			Help: "失効したリモートセッションの合計数",
		}, []string{"game"}),
	}

	reg.MustRegister(
		c.remoteFetches,
		c.remoteLatency,
		c.scraperFailures,
		c.archiveTouches,
		c.sessionsRevoked,
	)

	return c
}

// Outcome はエラーをラベル値に変換する。nil は "ok"。
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return model.KindOf(err).String()
}

// RecordRemoteFetch はリモートへのリクエスト結果とレイテンシを記録する。
func (c *Collector) RecordRemoteFetch(game, operation string, err error, duration time.Duration) {
	c.remoteFetches.WithLabelValues(game, operation, Outcome(err)).Inc()
	c.remoteLatency.WithLabelValues(game, operation).Observe(duration.Seconds())
}

// RecordScraperFailure はスクレイピング失敗を記録する。
func (c *Collector) RecordScraperFailure(game, code string) {
	c.scraperFailures.WithLabelValues(game, code).Inc()
}

// RecordArchiveTouch はアーカイブへの書き込みを記録する。outcome は temporal.Outcome の文字列表現。
func (c *Collector) RecordArchiveTouch(store, outcome string) {
	c.archiveTouches.WithLabelValues(store, outcome).Inc()
}

// RecordSessionRevoked はセッションキーの失効を記録する。
func (c *Collector) RecordSessionRevoked(game string) {
	c.sessionsRevoked.WithLabelValues(game).Inc()
}

// Nop は何も記録しないMetricsCollector。テストとメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRemoteFetch(string, string, error, time.Duration) {}
func (Nop) RecordScraperFailure(string, string)                    {}
func (Nop) RecordArchiveTouch(string, string)                      {}
func (Nop) RecordSessionRevoked(string)                            {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
