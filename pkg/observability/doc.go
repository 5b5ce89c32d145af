// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes, and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("account_id", id).Info("subscription status updated")
//
// Request-scoped loggers carry request_id and user_id:
//
//	observability.FromContext(r.Context()).WithError(err).Error("checkout failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordWebhookEvent("invoice.payment_failed", "applied")
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
package observability
