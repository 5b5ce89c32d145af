package auth

import (
	"context"
	"errors"
	"strings"
)

// Identity is a verified principal. It lives only for the duration of a
// request and is never persisted.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Role is a user's role on one business
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// AllRoles lists every built-in role, most privileged first
var AllRoles = []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

// ParseRole normalizes a stored role string. Unknown values are returned
// as-is so that deployments can introduce custom roles.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// ErrInvalidToken is returned by verifiers when the identity service rejects the token
var ErrInvalidToken = errors.New("invalid or expired token")

// Verifier resolves a bearer token into an identity. Implementations must
// be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface
type VerifierFunc func(ctx context.Context, token string) (*Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}
