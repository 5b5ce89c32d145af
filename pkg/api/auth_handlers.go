package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/middleware"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct{}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers() *AuthHandlers {
	return &AuthHandlers{}
}

// RegisterRoutes registers authentication routes behind guard
func (h *AuthHandlers) RegisterRoutes(router *mux.Router, guard func(http.Handler) http.Handler) {
	router.Handle("/api/auth/verify", guard(http.HandlerFunc(h.verify))).Methods(http.MethodPost)
}

// verify handles POST /api/auth/verify and echoes the verified identity
func (h *AuthHandlers) verify(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		httputil.WriteAPIError(w, apperrors.Unauthenticated("authentication required"))
		return
	}

	httputil.WriteSuccess(w, identity)
}
