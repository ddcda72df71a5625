package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be constructed without instrumentation.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authentication metrics
	LoginAttemptsTotal       *prometheus.CounterVec
	RegistrationsTotal       *prometheus.CounterVec
	GatekeeperDecisionsTotal *prometheus.CounterVec
	CaptchaIssuedTotal       prometheus.Counter
	RateLimitedTotal         *prometheus.CounterVec

	// Session store metrics
	SessionStoreOperationsTotal *prometheus.CounterVec
	UsersCreatedTotal           prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_login_attempts_total",
				Help: "Total number of login attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_registrations_total",
				Help: "Total number of local registrations by result",
			},
			[]string{"result"},
		),
		GatekeeperDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_gatekeeper_decisions_total",
				Help: "Total number of gatekeeper decisions by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		CaptchaIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_captcha_issued_total",
				Help: "Total number of captcha challenges issued",
			},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"path"},
		),

		SessionStoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_session_store_operations_total",
				Help: "Total number of session store operations",
			},
			[]string{"operation", "status"},
		),
		UsersCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_users_created_total",
				Help: "Total number of user records created on first login",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.LoginAttemptsTotal,
		m.RegistrationsTotal,
		m.GatekeeperDecisionsTotal,
		m.CaptchaIssuedTotal,
		m.RateLimitedTotal,
		m.SessionStoreOperationsTotal,
		m.UsersCreatedTotal,
	)

	return m
}

// ObserveLogin records a login attempt for provider
func (m *Metrics) ObserveLogin(provider string, success bool) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(provider, resultLabel(success)).Inc()
}

// ObserveRegistration records a registration outcome
func (m *Metrics) ObserveRegistration(success bool) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// ObserveGatekeeper records a gatekeeper decision
func (m *Metrics) ObserveGatekeeper(tier, outcome string) {
	if m == nil {
		return
	}
	m.GatekeeperDecisionsTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveCaptcha records an issued captcha
func (m *Metrics) ObserveCaptcha() {
	if m == nil {
		return
	}
	m.CaptchaIssuedTotal.Inc()
}

// ObserveRateLimited records a request rejected by the rate limiter
func (m *Metrics) ObserveRateLimited(path string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(path).Inc()
}

// ObserveSessionStore records a session store operation
func (m *Metrics) ObserveSessionStore(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SessionStoreOperationsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveUserCreated records a user record created by the directory bridge
func (m *Metrics) ObserveUserCreated() {
	if m == nil {
		return
	}
	m.UsersCreatedTotal.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
