package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the auth collectors. All methods are nil-safe so services
// can run without instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	loginAttempts      *prometheus.CounterVec
	signupAttempts     *prometheus.CounterVec
	rateLimitRejected  *prometheus.CounterVec
	codeDrawAttempts   prometheus.Histogram
	eventPublishErrors prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		signupAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_signup_attempts_total",
			Help: "Signup attempts by outcome.",
		}, []string{"outcome"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rate_limit_rejections_total",
			Help: "Requests refused by the attempt limiter.",
		}, []string{"action"}),
		codeDrawAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_organization_code_draws",
			Help:    "Draws needed to find a free organization code.",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}),
		eventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_event_publish_errors_total",
			Help: "Auth events that could not be published.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.loginAttempts,
		m.signupAttempts,
		m.rateLimitRejected,
		m.codeDrawAttempts,
		m.eventPublishErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LoginOutcome(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SignupOutcome(outcome string) {
	if m == nil {
		return
	}
	m.signupAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimitRejected.WithLabelValues(action).Inc()
}

func (m *Metrics) CodeDraws(n int) {
	if m == nil {
		return
	}
	m.codeDrawAttempts.Observe(float64(n))
}

func (m *Metrics) EventPublishFailed() {
	if m == nil {
		return
	}
	m.eventPublishErrors.Inc()
}

// Middleware records RPS, latency and in-flight requests per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.httpInFlight.Inc()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpInFlight.Dec()
	}
}
