package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/auth"
	"github.com/cacchoeira/FinanceProject/pkg/contextkeys"
	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/middleware"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// BusinessIDPathVar is the route variable holding the business id
const BusinessIDPathVar = "businessId"

const maxBodyPeek = 1 << 20

// RoleLookup resolves a user's role on a business
type RoleLookup interface {
	GetBusinessRole(ctx context.Context, userID, businessID string) (auth.Role, error)
}

// Authorizer gates routes on the caller's role for the addressed business.
// Roles are looked up on every request and never cached.
type Authorizer struct {
	roles   RoleLookup
	metrics *observability.Metrics
}

// NewAuthorizer creates a new role authorizer
func NewAuthorizer(roles RoleLookup, metrics *observability.Metrics) *Authorizer {
	return &Authorizer{roles: roles, metrics: metrics}
}

// RequireRole admits the request only if the caller holds one of allowed on
// the business named by the path (or, failing that, the JSON body field
// business_id). A failed lookup, a missing assignment and a disallowed role
// all produce the same 403.
func (a *Authorizer) RequireRole(allowed ...auth.Role) func(http.Handler) http.Handler {
	allowedSet := make(map[auth.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := middleware.GetIdentity(r.Context())
			if identity == nil {
				a.metrics.RecordAuthorization("unauthenticated")
				httputil.WriteAPIError(w, apperrors.Unauthenticated("authentication required"))
				return
			}

			businessID := businessIDFromRequest(r)
			if businessID == "" {
				a.metrics.RecordAuthorization("bad_request")
				httputil.WriteAPIError(w, apperrors.BadRequest("business ID required"))
				return
			}

			logger := observability.FromContext(r.Context()).WithField("business_id", businessID)

			role, err := a.roles.GetBusinessRole(r.Context(), identity.ID, businessID)
			if err != nil {
				if !errors.Is(err, ErrRoleNotFound) {
					logger.WithError(err).Error("business role lookup failed")
				}
				a.metrics.RecordAuthorization("denied")
				httputil.WriteAPIError(w, apperrors.Forbidden("access denied"))
				return
			}

			if _, ok := allowedSet[role]; !ok {
				logger.WithField("role", string(role)).Debug("role not permitted for route")
				a.metrics.RecordAuthorization("denied")
				httputil.WriteAPIError(w, apperrors.Forbidden("access denied"))
				return
			}

			a.metrics.RecordAuthorization("allowed")
			ctx := contextkeys.WithRole(r.Context(), role)
			ctx = contextkeys.WithBusinessID(ctx, businessID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type peekedBody struct {
	io.Reader
	io.Closer
}

// businessIDFromRequest prefers the path variable and falls back to the
// JSON body. Only the first maxBodyPeek bytes are inspected; the handler
// still reads the whole body.
func businessIDFromRequest(r *http.Request) string {
	if id := mux.Vars(r)[BusinessIDPathVar]; id != "" {
		return id
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	original := r.Body
	body, err := io.ReadAll(io.LimitReader(original, maxBodyPeek))
	r.Body = peekedBody{Reader: io.MultiReader(bytes.NewReader(body), original), Closer: original}
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload struct {
		BusinessID string `json:"business_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.BusinessID
}

// GetRole returns the role attached by RequireRole
func GetRole(ctx context.Context) (auth.Role, bool) {
	role, ok := ctx.Value(contextkeys.RoleKey).(auth.Role)
	return role, ok
}
