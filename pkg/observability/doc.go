// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful shutdown for the portal.
//
// # Structured Logging
//
// Loggers are logrus loggers with a JSON formatter:
//
//	logger := observability.NewLogger(observability.ParseLevel("info"), os.Stdout)
//	logger.WithField("provider", "slack").Warn("team mismatch")
//
// Request handlers fetch the request-scoped logger, which already carries
// request_id and account_id:
//
//	observability.FromContext(r.Context(), logger).Info("user created")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveLogin("google", true)
//
// A nil *Metrics records nothing, so tests can pass nil freely.
//
// # Health and Shutdown
//
// HealthChecker probes the user database and the redis session backend.
// ShutdownManager drains the HTTP server on SIGINT/SIGTERM and then runs
// registered cleanup functions.
package observability
