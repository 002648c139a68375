package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ChainAgent/internal/web3"
)

const namespace = "chainagent"

// Metrics 汇总服务暴露的 Prometheus 指标。
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	stageLatency *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
}

// New 在给定的 registry 上注册全部指标。传入 nil 时使用独立的 registry。
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_stage_duration_seconds",
			Help:      "Time spent in each submission engine stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"chain", "stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_outcomes_total",
			Help:      "Submission engine outcomes by chain, state and error code.",
		}, []string{"chain", "state", "code"}),
	}
	reg.MustRegister(m.httpRequests, m.httpErrors, m.httpLatency, m.stageLatency, m.outcomes)
	return m
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		m.httpErrors.WithLabelValues(handler, method).Inc()
	}
	m.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveStage 实现 web3.Observer。
func (m *Metrics) ObserveStage(chain string, stage web3.Stage, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(chain, string(stage)).Observe(elapsed.Seconds())
}

// ObserveOutcome 实现 web3.Observer。
func (m *Metrics) ObserveOutcome(outcome web3.Outcome) {
	if m == nil {
		return
	}
	code := string(outcome.Code)
	if code == "" {
		code = "OK"
	}
	m.outcomes.WithLabelValues(outcome.Chain, string(outcome.State), code).Inc()
}

// Handler exposes the metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware 记录请求数、错误数与耗时，handler 作为固定的路由标签。
func (m *Metrics) Middleware(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveHTTPRequest(handler, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

var _ web3.Observer = (*Metrics)(nil)
