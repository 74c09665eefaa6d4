package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalqa/gateway/config"
)

func newMonitor() *Monitor {
	return New(config.MetricsConfig{Enabled: true, Path: "/metrics"})
}

func TestRecordRequestAndError(t *testing.T) {
	m := newMonitor()

	m.RecordRequest("chat", 100*time.Millisecond)
	m.RecordRequest("chat", 300*time.Millisecond)
	m.RecordError("chat", "upstream_timeout", 200*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestCounter.WithLabelValues("chat", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCounter.WithLabelValues("chat", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorCounter.WithLabelValues("chat", "upstream_timeout")))

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.TotalErrors)
	assert.InDelta(t, 200.0, s.AvgLatencyMs, 0.001)
}

func TestMonitorsAreIndependent(t *testing.T) {
	a := newMonitor()
	b := newMonitor()

	a.RecordRequest("health", time.Millisecond)

	assert.Equal(t, int64(1), a.Snapshot().TotalRequests)
	assert.Equal(t, int64(0), b.Snapshot().TotalRequests)
}

func TestLatencyWindowIsBounded(t *testing.T) {
	m := newMonitor()
	for i := 0; i < latencyWindow+10; i++ {
		m.RecordRequest("chat", time.Millisecond)
	}

	m.stats.latencyMu.Lock()
	n := len(m.stats.latency)
	m.stats.latencyMu.Unlock()
	assert.LessOrEqual(t, n, latencyWindow)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newMonitor()
	m.RecordRequest("chat", 10*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `legal_gateway_requests_total{operation="chat",outcome="success"} 1`)
}
