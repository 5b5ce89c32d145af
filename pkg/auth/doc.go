// Package auth verifies bearer tokens against an external identity service.
//
// Two verifier families are provided:
//
//   - UserEndpointVerifier asks a GoTrue-style identity service for the
//     user behind the token (GET /auth/v1/user).
//   - OIDCVerifier checks ID tokens locally against the issuer's JWKS, or
//     resolves access tokens through the provider's userinfo endpoint.
//
// Verifiers return an *Identity or an error; they never mutate local state.
// The HTTP admission middleware lives in pkg/middleware.
package auth
