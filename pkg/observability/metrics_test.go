package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.LoginAttemptsTotal)
	assert.NotNil(t, metrics.RegistrationsTotal)
	assert.NotNil(t, metrics.GatekeeperDecisionsTotal)
	assert.NotNil(t, metrics.CaptchaIssuedTotal)

	t.Run("double registration panics", func(t *testing.T) {
		assert.Panics(t, func() { NewMetrics(registry) })
	})
}

func TestMetrics_Observers(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveLogin("google", true)
	metrics.ObserveLogin("google", false)
	metrics.ObserveLogin("google", false)

	expected := `
# HELP portal_login_attempts_total Total number of login attempts by provider and result
# TYPE portal_login_attempts_total counter
portal_login_attempts_total{provider="google",result="failure"} 2
portal_login_attempts_total{provider="google",result="success"} 1
`
	err := testutil.CollectAndCompare(metrics.LoginAttemptsTotal, strings.NewReader(expected))
	assert.NoError(t, err)

	metrics.ObserveRegistration(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RegistrationsTotal.WithLabelValues("success")))

	metrics.ObserveGatekeeper("api", "denied")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GatekeeperDecisionsTotal.WithLabelValues("api", "denied")))

	metrics.ObserveCaptcha()
	metrics.ObserveCaptcha()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CaptchaIssuedTotal))

	metrics.ObserveSessionStore("save", errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionStoreOperationsTotal.WithLabelValues("save", "error")))

	metrics.ObserveUserCreated()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.UsersCreatedTotal))

	metrics.ObserveRateLimited("/captcha")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("/captcha")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.ObserveLogin("local", true)
		metrics.ObserveRegistration(false)
		metrics.ObserveGatekeeper("public", "allowed")
		metrics.ObserveCaptcha()
		metrics.ObserveRateLimited("/")
		metrics.ObserveSessionStore("get", nil)
		metrics.ObserveUserCreated()
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/captcha", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/captcha", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.HTTPRequestDuration))
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.ObserveCaptcha()

	rr := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/public/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "portal_captcha_issued_total 1")
}
