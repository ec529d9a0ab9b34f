package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddImportOutcome("csv", "imported", 3)
		m.ObserveImportLatency("csv", time.Millisecond)
		m.IncrementCertificateParse("ok")
		m.ObserveCertificateParseLatency(time.Microsecond)
	})
}

// New はデフォルトレジストリに登録するため、このパッケージで一度だけ呼ぶ。
func TestMetrics_Record(t *testing.T) {
	m := New()

	m.AddImportOutcome("json", "imported", 2)
	m.AddImportOutcome("json", "duplicate", 1)
	m.AddImportOutcome("json", "invalid", 0)
	m.IncrementCertificateParse("malformed")
	m.ObserveImportLatency("json", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportDrafts.WithLabelValues("json", "imported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportDrafts.WithLabelValues("json", "duplicate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ImportDrafts.WithLabelValues("json", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CertificateParse.WithLabelValues("malformed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ImportLatency))
}
