package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/billing"
	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/middleware"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

const (
	// MaxWebhookBytes bounds the raw webhook body
	MaxWebhookBytes = 64 * 1024

	// SignatureHeader carries the provider's webhook signature
	SignatureHeader = "Stripe-Signature"
)

// BillingHandlers handles billing-related HTTP requests
type BillingHandlers struct {
	billingService BillingService
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(billingService BillingService) *BillingHandlers {
	return &BillingHandlers{billingService: billingService}
}

// RegisterRoutes registers billing routes. authn wraps every route except
// the webhook, which authenticates by signature.
func (h *BillingHandlers) RegisterRoutes(router *mux.Router, authn func(http.Handler) http.Handler) {
	router.Handle("/api/billing/checkout", authn(http.HandlerFunc(h.CreateCheckoutSession))).Methods(http.MethodPost)
	router.Handle("/api/billing/portal", authn(http.HandlerFunc(h.CreatePortalSession))).Methods(http.MethodPost)
	router.Handle("/api/billing/subscription", authn(http.HandlerFunc(h.GetSubscription))).Methods(http.MethodGet)

	// Webhooks
	router.Handle("/api/billing/webhook",
		httputil.MaxBytesMiddleware(MaxWebhookBytes)(http.HandlerFunc(h.HandleWebhook))).Methods(http.MethodPost)
}

// CreateCheckoutSession handles POST /api/billing/checkout
func (h *BillingHandlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	session, err := h.billingService.CreateCheckoutSession(r.Context(), middleware.GetIdentity(r.Context()), req)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"url": session.URL})
}

// CreatePortalSession handles POST /api/billing/portal
func (h *BillingHandlers) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	var req billing.PortalRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	session, err := h.billingService.CreatePortalSession(r.Context(), middleware.GetIdentity(r.Context()), req)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"url": session.URL})
}

// GetSubscription handles GET /api/billing/subscription
func (h *BillingHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.billingService.GetSubscription(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	httputil.WriteSuccess(w, view)
}

// HandleWebhook handles POST /api/billing/webhook. The body is read raw so
// the signature covers exactly the bytes the provider sent.
func (h *BillingHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to read webhook body")
		httputil.WriteAPIError(w, apperrors.BadRequest("webhook signature verification failed"))
		return
	}

	if err := h.billingService.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"received": true})
}
