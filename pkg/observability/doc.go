// Package observability provides structured logging, Prometheus metrics, and
// health checks.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("addr", addr).Info("starting API server")
//
// # Prometheus Metrics
//
// Metrics register against an explicit registry so tests can use a fresh one:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveDecision(allowed)
//	metrics.EtagConflictsTotal.Inc()
//
// # Health Checks
//
// The health server exposes /health, /health/live, and /health/ready.
// Postgres failing marks the service unhealthy; redis failing only degrades
// it because redis backs the decision cache, not the data path.
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/httputil: request logging middleware
package observability
