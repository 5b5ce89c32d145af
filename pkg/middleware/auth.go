package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/auth"
	"github.com/cacchoeira/FinanceProject/pkg/contextkeys"
	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// AuthMiddleware admits requests that carry a bearer token the identity
// service accepts. Missing or malformed credentials answer 401; a token
// the verifier rejects (or any verifier failure) answers 403.
type AuthMiddleware struct {
	verifier auth.Verifier
	metrics  *observability.Metrics
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier auth.Verifier, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, metrics: metrics}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			m.metrics.RecordTokenVerification("missing")
			httputil.WriteAPIError(w, apperrors.Unauthenticated("no token provided"))
			return
		}

		identity, err := m.verify(r.Context(), token)
		if err != nil || identity == nil {
			logger := observability.FromContext(r.Context())
			if err != nil && !errors.Is(err, auth.ErrInvalidToken) {
				logger.WithError(err).Error("token verification failed")
			} else {
				logger.Debug("token rejected by identity service")
			}
			m.metrics.RecordTokenVerification("invalid")
			httputil.WriteAPIError(w, apperrors.InvalidToken("invalid token"))
			return
		}

		m.metrics.RecordTokenVerification("valid")
		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify calls the verifier, converting a panic into an error
func (m *AuthMiddleware) verify(ctx context.Context, token string) (identity *auth.Identity, err error) {
	defer func() {
		if perr := observability.PanicError(recover()); perr != nil {
			identity, err = nil, perr
		}
	}()
	return m.verifier.Verify(ctx, token)
}

// bearerToken parses "Bearer <token>"
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetIdentity extracts the verified identity from a context
func GetIdentity(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}
