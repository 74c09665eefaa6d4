/*
Package monitor - 网关监控

负责：
- Prometheus 指标 (请求数、延迟、错误类别)
- 进程内统计 (总数、平均延迟、运行时长)
- 指标 HTTP 服务
*/
package monitor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/legalqa/gateway/config"
)

// 请求结果
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// 延迟滑动窗口大小
const latencyWindow = 1000

// Monitor 网关监控器
type Monitor struct {
	cfg      config.MetricsConfig
	registry *prometheus.Registry

	// Prometheus 指标
	requestCounter   *prometheus.CounterVec
	latencyHistogram *prometheus.HistogramVec
	errorCounter     *prometheus.CounterVec

	stats *stats
}

// stats 内部统计
type stats struct {
	totalRequests int64
	totalErrors   int64
	startTime     time.Time

	latency   []time.Duration
	latencyMu sync.Mutex
}

// Snapshot 统计快照
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// New 创建监控器，使用独立的 Registry
func New(cfg config.MetricsConfig) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		stats:    &stats{startTime: time.Now()},
	}

	m.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_gateway_requests_total",
			Help: "Total number of gateway operations",
		},
		[]string{"operation", "outcome"},
	)

	m.latencyHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legal_gateway_request_latency_seconds",
			Help:    "Gateway operation latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	m.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_gateway_errors_total",
			Help: "Total number of gateway errors by kind",
		},
		[]string{"operation", "kind"},
	)

	m.registry.MustRegister(
		m.requestCounter,
		m.latencyHistogram,
		m.errorCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry 返回监控器的 Registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus 指标处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve 在独立地址上提供指标，ctx 结束时关闭
func (m *Monitor) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(m.cfg.Path, m.Handler())

	server := &http.Server{
		Addr:              m.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", m.cfg.Addr).Str("path", m.cfg.Path).Msg("Prometheus 指标服务启动")

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// 记录方法
// ============================================================================

// RecordRequest 记录一次成功的操作
func (m *Monitor) RecordRequest(operation string, latency time.Duration) {
	atomic.AddInt64(&m.stats.totalRequests, 1)
	m.requestCounter.WithLabelValues(operation, OutcomeSuccess).Inc()
	m.recordLatency(operation, latency)
}

// RecordError 记录一次失败的操作
func (m *Monitor) RecordError(operation, kind string, latency time.Duration) {
	atomic.AddInt64(&m.stats.totalRequests, 1)
	atomic.AddInt64(&m.stats.totalErrors, 1)
	m.requestCounter.WithLabelValues(operation, OutcomeError).Inc()
	m.errorCounter.WithLabelValues(operation, kind).Inc()
	m.recordLatency(operation, latency)
}

func (m *Monitor) recordLatency(operation string, latency time.Duration) {
	m.latencyHistogram.WithLabelValues(operation).Observe(latency.Seconds())

	m.stats.latencyMu.Lock()
	m.stats.latency = append(m.stats.latency, latency)
	// 保持窗口大小
	if len(m.stats.latency) > latencyWindow {
		m.stats.latency = m.stats.latency[len(m.stats.latency)-latencyWindow/2:]
	}
	m.stats.latencyMu.Unlock()
}

// Snapshot 获取统计快照
func (m *Monitor) Snapshot() Snapshot {
	s := Snapshot{
		TotalRequests: atomic.LoadInt64(&m.stats.totalRequests),
		TotalErrors:   atomic.LoadInt64(&m.stats.totalErrors),
		UptimeSeconds: time.Since(m.stats.startTime).Seconds(),
	}

	m.stats.latencyMu.Lock()
	defer m.stats.latencyMu.Unlock()

	if len(m.stats.latency) > 0 {
		var sum time.Duration
		for _, l := range m.stats.latency {
			sum += l
		}
		s.AvgLatencyMs = float64(sum.Milliseconds()) / float64(len(m.stats.latency))
	}
	return s
}
