// Package metrics はプロファイル取り込みと証明書解析のPrometheusメトリクスを提供する。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics は取り込み・解析処理の計測値を保持する。nilレシーバーでは何もしない。
type Metrics struct {
	// 取り込み元（text, json, csv）と結果（imported, duplicate, invalid, failed）ごとのドラフト数
	ImportDrafts *prometheus.CounterVec

	// 取り込み呼び出し全体の処理時間
	ImportLatency *prometheus.HistogramVec

	// 証明書解析の結果（ok, invalid_pem, malformed）
	CertificateParse *prometheus.CounterVec

	// 証明書解析の処理時間
	CertificateParseLatency prometheus.Histogram
}

// New は全メトリクスをデフォルトレジストリに登録して返す。
func New() *Metrics {
	return &Metrics{
		ImportDrafts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "euicc_profile_import_drafts_total",
			Help: "Total profile drafts processed by import source and outcome",
		}, []string{"source", "outcome"}),

		ImportLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "euicc_profile_import_duration_seconds",
			Help:    "Duration of a profile import call by source",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),

		CertificateParse: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "euicc_certificate_parse_total",
			Help: "Total certificate parse attempts by result",
		}, []string{"result"}),

		CertificateParseLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "euicc_certificate_parse_duration_seconds",
			Help:    "Duration of PEM certificate decoding",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
		}),
	}
}

// AddImportOutcome は取り込み結果の件数を加算する。
func (m *Metrics) AddImportOutcome(source, outcome string, n int) {
	if m != nil && n > 0 {
		m.ImportDrafts.WithLabelValues(source, outcome).Add(float64(n))
	}
}

// ObserveImportLatency は取り込み呼び出しの処理時間を記録する。
func (m *Metrics) ObserveImportLatency(source string, d time.Duration) {
	if m != nil {
		m.ImportLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncrementCertificateParse は証明書解析の結果を記録する。
func (m *Metrics) IncrementCertificateParse(result string) {
	if m != nil {
		m.CertificateParse.WithLabelValues(result).Inc()
	}
}

// ObserveCertificateParseLatency は証明書解析の処理時間を記録する。
func (m *Metrics) ObserveCertificateParseLatency(d time.Duration) {
	if m != nil {
		m.CertificateParseLatency.Observe(d.Seconds())
	}
}
