package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cacchoeira/FinanceProject/pkg/auth"
	"github.com/cacchoeira/FinanceProject/pkg/billing"
	"github.com/cacchoeira/FinanceProject/pkg/entitlements"
	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/middleware"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
	"github.com/cacchoeira/FinanceProject/pkg/rbac"
)

// BillingService is the billing surface used by the handlers
type BillingService interface {
	CreateCheckoutSession(ctx context.Context, identity *auth.Identity, req billing.CheckoutRequest) (*billing.Session, error)
	CreatePortalSession(ctx context.Context, identity *auth.Identity, req billing.PortalRequest) (*billing.Session, error)
	GetSubscription(ctx context.Context, identity *auth.Identity) (*billing.SubscriptionView, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// EntitlementsService computes what a business may use
type EntitlementsService interface {
	ForBusiness(ctx context.Context, businessID string) (*entitlements.Entitlements, error)
}

// PlanLister lists the plan catalog
type PlanLister interface {
	Plans() []entitlements.Plan
}

// Dependencies are the collaborators the router needs
type Dependencies struct {
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Verifier     auth.Verifier
	RateLimits   *middleware.RateLimitMiddleware
	Roles        rbac.RoleLookup
	Billing      BillingService
	Entitlements EntitlementsService
	Plans        PlanLister
	CORSOrigins  []string
}

// Server represents our API server
type Server struct {
	router     *mux.Router
	handler    http.Handler
	deps       Dependencies
	authn      *middleware.AuthMiddleware
	authorizer *rbac.Authorizer
}

// NewServer creates the API server and registers every route
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:     mux.NewRouter(),
		deps:       deps,
		authn:      middleware.NewAuthMiddleware(deps.Verifier, deps.Metrics),
		authorizer: rbac.NewAuthorizer(deps.Roles, deps.Metrics),
	}
	s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.setupRoutes()

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(deps.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(deps.CORSOrigins),
	}
	if deps.RateLimits != nil {
		chain = append(chain, deps.RateLimits.Handler(middleware.PolicyGeneral))
	}
	s.handler = otelhttp.NewHandler(httputil.Chain(chain...)(s.router), "finance-api")

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	billingHandlers := NewBillingHandlers(s.deps.Billing)
	billingHandlers.RegisterRoutes(s.router, s.authn.Handler)

	authHandlers := NewAuthHandlers()
	authHandlers.RegisterRoutes(s.router, s.authRoute)

	entitlementHandlers := NewEntitlementHandlers(s.deps.Entitlements, s.deps.Plans)
	entitlementHandlers.RegisterRoutes(s.router, s.businessRoute(auth.AllRoles...))
}

// authRoute spends the auth budget before the token is verified
func (s *Server) authRoute(next http.Handler) http.Handler {
	if s.deps.RateLimits == nil {
		return s.authn.Handler(next)
	}
	return httputil.Chain(
		s.deps.RateLimits.Handler(middleware.PolicyAuth),
		s.authn.Handler,
	)(next)
}

func (s *Server) businessRoute(roles ...auth.Role) func(http.Handler) http.Handler {
	return httputil.Chain(s.authn.Handler, s.authorizer.RequireRole(roles...))
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// NewHealthRouter serves liveness, readiness and Prometheus metrics
func NewHealthRouter(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
	if registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	return router
}
