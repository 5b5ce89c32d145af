// Package contextkeys provides centralized context key definitions
//
// All request-scoped values shared between middleware and handlers are keyed
// here so that producers and consumers agree on the key and the stored type.
//
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, ok := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: billing handlers, rbac.Authorizer
	IdentityKey Key = "identity"

	// RoleKey contains auth.Role for the business addressed by the request
	// Set by: rbac.Authorizer.RequireRole (pkg/rbac/middleware.go)
	// Used by: business-scoped handlers
	RoleKey Key = "business_role"

	// BusinessIDKey contains the business id the role was resolved for
	// Set by: rbac.Authorizer.RequireRole
	BusinessIDKey Key = "business_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Auth middleware after token verification
	// Used by: Logger
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability.LoggerMiddleware
	LoggerKey Key = "logger"
)

// WithIdentity adds the verified identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRole adds the caller's business role to the context
func WithRole(ctx context.Context, role interface{}) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// WithBusinessID adds the business id to the context
func WithBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, BusinessIDKey, businessID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetBusinessID retrieves the business id from context
func GetBusinessID(ctx context.Context) string {
	if businessID, ok := ctx.Value(BusinessIDKey).(string); ok {
		return businessID
	}
	return ""
}
