// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

type Config struct {
	ServiceName string
	Environment string
}

// Metrics implements extract.Observer and billing.Observer.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
	extractAttempts *prometheus.CounterVec
	extractDuration *prometheus.HistogramVec
	modelCalls      *prometheus.CounterVec
	modelDuration   prometheus.Histogram
	webhookEvents   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New(cfg Config) *Metrics {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "clauseguard"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	constLabels := prometheus.Labels{"service": name, "env": env}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "clauseguard",
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency by route and status.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "clauseguard",
			Name:        "http_requests_in_flight",
			Help:        "HTTP requests currently being served.",
			ConstLabels: constLabels,
		}),
		extractAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clauseguard",
			Name:        "extract_attempts_total",
			Help:        "PDF extraction strategy attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"strategy", "outcome"}),
		extractDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "clauseguard",
			Name:        "extract_attempt_duration_seconds",
			Help:        "Time spent in one extraction strategy.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			ConstLabels: constLabels,
		}, []string{"strategy"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clauseguard",
			Name:        "model_calls_total",
			Help:        "Model calls by result kind.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		modelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "clauseguard",
			Name:        "model_call_duration_seconds",
			Help:        "Model call latency.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
			ConstLabels: constLabels,
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clauseguard",
			Name:        "webhook_events_total",
			Help:        "Billing webhook deliveries by event type and outcome.",
			ConstLabels: constLabels,
		}, []string{"type", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration, m.httpInFlight,
		m.extractAttempts, m.extractDuration,
		m.modelCalls, m.modelDuration,
		m.webhookEvents,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAttempt(strategy string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "ok"
	}
	m.extractAttempts.WithLabelValues(strategy, outcome).Inc()
	m.extractDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// GinMiddleware records request duration and in-flight requests. Unmatched routes share one label.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()
		c.Next()
		m.httpInFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}

// InstrumentAnalyzer counts model calls by result kind.
func (m *Metrics) InstrumentAnalyzer(a llm.Analyzer) llm.Analyzer {
	if m == nil {
		return a
	}
	return &instrumentedAnalyzer{next: a, m: m}
}

type instrumentedAnalyzer struct {
	next llm.Analyzer
	m    *Metrics
}

func (a *instrumentedAnalyzer) Analyze(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()
	res, err := a.next.Analyze(ctx, req)
	a.m.modelDuration.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
		if kind, ok := llm.ModelErrorKindOf(err); ok {
			result = strings.ToLower(string(kind))
		}
	}
	a.m.modelCalls.WithLabelValues(result).Inc()
	return res, err
}
