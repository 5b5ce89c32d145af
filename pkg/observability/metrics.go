package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// Recording helpers are nil-safe so components can run without metrics wiring.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission metrics
	RateLimitRejectionsTotal    *prometheus.CounterVec
	RateLimitBackendErrorsTotal *prometheus.CounterVec
	TokenVerificationsTotal     *prometheus.CounterVec
	AuthorizationDecisionsTotal *prometheus.CounterVec

	// Billing metrics
	WebhookEventsTotal          *prometheus.CounterVec
	SubscriptionUpdatesTotal    *prometheus.CounterVec
	PaymentProviderRequests     *prometheus.CounterVec
	PaymentProviderDuration     *prometheus.HistogramVec
	CustomersCreatedTotal       prometheus.Counter
	ReconcileRunsTotal          *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"policy"},
		),
		RateLimitBackendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_rate_limit_backend_errors_total",
				Help: "Rate limiter backend failures (request allowed)",
			},
			[]string{"backend"},
		),
		TokenVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_token_verifications_total",
				Help: "Bearer token verification outcomes",
			},
			[]string{"outcome"},
		),
		AuthorizationDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_authorization_decisions_total",
				Help: "Business role authorization outcomes",
			},
			[]string{"outcome"},
		),

		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_webhook_events_total",
				Help: "Payment provider webhook events by type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
		SubscriptionUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_subscription_status_updates_total",
				Help: "Account subscription status writes by resulting status",
			},
			[]string{"status", "source"},
		),
		PaymentProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_payment_provider_requests_total",
				Help: "Calls to the payment provider",
			},
			[]string{"operation", "status"},
		),
		PaymentProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_payment_provider_request_duration_seconds",
				Help:    "Payment provider call duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		CustomersCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finance_payment_customers_created_total",
				Help: "Payment provider customers created on first checkout",
			},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_subscription_reconcile_runs_total",
				Help: "Subscription reconciliation runs",
			},
			[]string{"status"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitRejectionsTotal,
		m.RateLimitBackendErrorsTotal,
		m.TokenVerificationsTotal,
		m.AuthorizationDecisionsTotal,
		m.WebhookEventsTotal,
		m.SubscriptionUpdatesTotal,
		m.PaymentProviderRequests,
		m.PaymentProviderDuration,
		m.CustomersCreatedTotal,
		m.ReconcileRunsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsIdle,
		m.DBConnectionsInUse,
	)

	return m
}

func (m *Metrics) RecordRateLimitRejection(policy string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(policy).Inc()
}

func (m *Metrics) RecordRateLimitBackendError(backend string) {
	if m == nil {
		return
	}
	m.RateLimitBackendErrorsTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) RecordTokenVerification(outcome string) {
	if m == nil {
		return
	}
	m.TokenVerificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordAuthorization(outcome string) {
	if m == nil {
		return
	}
	m.AuthorizationDecisionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordSubscriptionUpdate(status, source string) {
	if m == nil {
		return
	}
	m.SubscriptionUpdatesTotal.WithLabelValues(status, source).Inc()
}

// RecordProviderCall records one payment provider call and its latency
func (m *Metrics) RecordProviderCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PaymentProviderRequests.WithLabelValues(operation, status).Inc()
	m.PaymentProviderDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordCustomerCreated() {
	if m == nil {
		return
	}
	m.CustomersCreatedTotal.Inc()
}

func (m *Metrics) RecordReconcileRun(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ReconcileRunsTotal.WithLabelValues(status).Inc()
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the mux route template so path parameters do not
// explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
