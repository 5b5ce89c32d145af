// Package api wires the HTTP surface of the finance service.
//
// Every request passes through, in order: request id and logger,
// access log, panic recovery, CORS, the general rate limit, and then the
// route's own chain. Authenticated routes add token verification; the
// entitlements route adds a role check on the addressed business.
//
//	POST /api/billing/checkout                      auth
//	POST /api/billing/portal                        auth
//	GET  /api/billing/subscription                  auth
//	POST /api/billing/webhook                       signature only
//	POST /api/auth/verify                           auth rate limit, auth
//	GET  /api/plans                                 public
//	GET  /api/businesses/{businessId}/entitlements  auth, any role
//
// Health probes and /metrics are served by a separate router on the
// health port (NewHealthRouter).
package api
