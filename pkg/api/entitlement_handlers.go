package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/rbac"
)

// EntitlementHandlers serves the plan catalog and per-business entitlements
type EntitlementHandlers struct {
	service EntitlementsService
	plans   PlanLister
}

// NewEntitlementHandlers creates a new EntitlementHandlers
func NewEntitlementHandlers(service EntitlementsService, plans PlanLister) *EntitlementHandlers {
	return &EntitlementHandlers{service: service, plans: plans}
}

// RegisterRoutes registers the catalog route and, behind member, the
// business entitlements route.
func (h *EntitlementHandlers) RegisterRoutes(router *mux.Router, member func(http.Handler) http.Handler) {
	router.HandleFunc("/api/plans", h.listPlans).Methods(http.MethodGet)
	router.Handle("/api/businesses/{"+rbac.BusinessIDPathVar+"}/entitlements",
		member(http.HandlerFunc(h.getEntitlements))).Methods(http.MethodGet)
}

func (h *EntitlementHandlers) listPlans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{"plans": h.plans.Plans()})
}

// getEntitlements handles GET /api/businesses/{businessId}/entitlements
func (h *EntitlementHandlers) getEntitlements(w http.ResponseWriter, r *http.Request) {
	businessID := httputil.PathVar(r, rbac.BusinessIDPathVar)

	ent, err := h.service.ForBusiness(r.Context(), businessID)
	if err != nil {
		httputil.WriteAPIError(w, err)
		return
	}

	httputil.WriteSuccess(w, ent)
}
